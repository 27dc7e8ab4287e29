package cli

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/classify"
	"github.com/kitchencompanion/kitchencompanion/internal/geo"
	"github.com/kitchencompanion/kitchencompanion/internal/knowledge"
	"github.com/kitchencompanion/kitchencompanion/internal/llm"
	"github.com/kitchencompanion/kitchencompanion/internal/rag"
	"github.com/kitchencompanion/kitchencompanion/internal/tools"
	"github.com/kitchencompanion/kitchencompanion/internal/turn"
	"github.com/kitchencompanion/kitchencompanion/internal/units"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

// storeDir resolves the knowledge store directory.
func (e *env) storeDir() string {
	return knowledge.Discover(e.cfg.Knowledge.Path, os.Getenv("KITCHEN_VECTORSTORE_PATH"))
}

func (e *env) manager() *knowledge.Manager {
	return knowledge.NewManager(e.storeDir(), e.log)
}

// watch starts the store watcher when enabled. It stops with ctx.
func (e *env) watch(ctx context.Context, m *knowledge.Manager) {
	if !e.cfg.Knowledge.Watch {
		return
	}
	w := knowledge.NewWatcher(m, 0)
	go func() {
		if err := w.Run(ctx); err != nil {
			e.log.Warn("store watcher stopped", zap.Error(err))
		}
	}()
}

func (e *env) embedder() (llm.Embedder, error) {
	return llm.NewEmbedder(llm.OptionsFromConfig(e.cfg))
}

func (e *env) providers() (llm.Generator, llm.Embedder, error) {
	opts := llm.OptionsFromConfig(e.cfg)
	gen, err := llm.NewGenerator(opts)
	if err != nil {
		return nil, nil, err
	}
	emb, err := llm.NewEmbedder(opts)
	if err != nil {
		return nil, nil, err
	}
	return gen, emb, nil
}

func (e *env) synthesizer(gen llm.Generator, emb llm.Embedder) *rag.Synthesizer {
	return rag.New(gen, emb, rag.WithLogger(e.log), rag.WithMaxTokens(e.cfg.LLM.MaxTokens))
}

func (e *env) classifier() *classify.Classifier {
	return classify.New(e.cfg.Classifier.MinLength, classify.NewVocabulary(e.cfg.Classifier.Vocabulary...))
}

func (e *env) controller(ans turn.Answerer, src rag.StoreSource, pool *worker.Pool) *turn.Controller {
	var trunc turn.Truncator
	if tok, err := turn.NewTokenizer(); err != nil {
		e.log.Warn("notes token budget disabled", zap.Error(err))
	} else {
		trunc = tok
	}
	cfg := turn.Config{
		K:        e.cfg.Knowledge.TopK,
		Timeout:  e.cfg.Turn.RetrievalTimeout.Duration,
		MaxNotes: e.cfg.Turn.NotesMaxTokens,
	}
	return turn.NewController(e.classifier(), ans, src, pool, cfg, trunc, e.log)
}

// toolbox wires the kitchen tools. ans may be nil when no generator is
// configured; ask_cookbook then reports that no cookbook is available.
func (e *env) toolbox(ans tools.Answerer, src rag.StoreSource, pool *worker.Pool) *tools.Toolbox {
	return &tools.Toolbox{
		Units:    units.Default(),
		Geo:      geo.NewFromConfig(e.cfg.Geo, e.log),
		Location: &geo.UserLocation{},
		Answerer: ans,
		Store:    src,
		Pool:     pool,
		K:        e.cfg.Knowledge.TopK,
		Log:      e.log,
	}
}
