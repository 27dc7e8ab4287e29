// Package ingest turns cookbook text files into a knowledge store artifact.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitchencompanion/kitchencompanion/internal/knowledge"
	"github.com/kitchencompanion/kitchencompanion/internal/llm"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
)

var (
	// ErrNoEmbedder is returned when no embedding provider is configured.
	ErrNoEmbedder = errors.New("ingest: an embedding provider is required")
	// ErrNothingToIngest is returned when the inputs hold no text.
	ErrNothingToIngest = errors.New("ingest: no cookbook text found")
	// ErrModelMismatch is returned when merging into a store embedded with
	// a different model.
	ErrModelMismatch = errors.New("ingest: existing store uses a different embedding model")
)

// Defaults for Options.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// passageNamespace scopes deterministic passage IDs.
var passageNamespace = uuid.MustParse("7b3f6c1e-2a4d-5e8f-9a0b-c1d2e3f40516")

// Options control one ingestion run.
type Options struct {
	ChunkSize   int
	// Overlap of zero means DefaultOverlap; negative disables overlap.
	Overlap     int
	BatchSize   int
	Concurrency int
	// Merge keeps passages already in the store. Passages from a source
	// being ingested again are replaced.
	Merge bool
	// Progress receives the number of passages embedded by each finished
	// batch. It may be called from several goroutines.
	Progress func(delta int)
}

// Summary reports what an ingestion run did.
type Summary struct {
	Dir        string
	Documents  int
	Added      int
	Kept       int
	Replaced   int
	EmbedModel string
	Dimension  int
	Skipped    []error
}

// Total is the number of passages in the written store.
func (s Summary) Total() int { return s.Added + s.Kept }

// Ingester embeds passages and writes stores.
type Ingester struct {
	emb llm.Embedder
	log *zap.Logger
}

// New creates an Ingester.
func New(emb llm.Embedder, log *zap.Logger) *Ingester {
	return &Ingester{emb: emb, log: logging.OrNop(log).Named("ingest")}
}

// Chunks splits documents into passages with IDs derived from their
// source, position and text, so re-ingesting a file yields the same IDs.
func Chunks(docs []Document, size, overlap int) []knowledge.Passage {
	var out []knowledge.Passage
	for _, d := range docs {
		for i, c := range ChunkText(d.Text, d.Markdown, size, overlap) {
			p := knowledge.Passage{
				ID:      passageID(d.Source, i, c.Text),
				Text:    c.Text,
				Source:  d.Source,
				Ordinal: i,
			}
			if c.Section != "" {
				p.Metadata = map[string]string{"section": c.Section}
			}
			out = append(out, p)
		}
	}
	return out
}

func passageID(source string, ordinal int, text string) string {
	return uuid.NewSHA1(passageNamespace, []byte(source+"\x00"+strconv.Itoa(ordinal)+"\x00"+text)).String()
}

// Ingest scans paths, embeds their passages and writes the store in dir.
func (in *Ingester) Ingest(ctx context.Context, dir string, paths []string, opts Options) (Summary, error) {
	if in.emb == nil {
		return Summary{}, ErrNoEmbedder
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap == 0 {
		opts.Overlap = DefaultOverlap
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	scan := Scan(paths)
	sum := Summary{Dir: dir, Documents: len(scan.Documents), Skipped: scan.Errors, EmbedModel: in.emb.Model()}
	for _, err := range scan.Errors {
		in.log.Warn("skipped input", zap.Error(err))
	}

	passages := Chunks(scan.Documents, opts.ChunkSize, opts.Overlap)
	if len(passages) == 0 {
		return sum, ErrNothingToIngest
	}

	var existing []knowledge.Record
	if opts.Merge {
		recs, bopts, err := knowledge.ReadRecords(dir)
		if err != nil {
			return sum, fmt.Errorf("ingest: read existing store: %w", err)
		}
		if len(recs) > 0 && bopts.EmbedModel != "" && bopts.EmbedModel != in.emb.Model() {
			return sum, fmt.Errorf("%w: store has %q, embedder is %q", ErrModelMismatch, bopts.EmbedModel, in.emb.Model())
		}
		existing = recs
	}

	vecs, err := in.embed(ctx, passages, opts)
	if err != nil {
		return sum, err
	}
	dim := len(vecs[0])
	sum.Dimension = dim

	fresh := make(map[string]bool, len(scan.Documents))
	for _, d := range scan.Documents {
		fresh[d.Source] = true
	}
	records := make([]knowledge.Record, 0, len(existing)+len(passages))
	for _, r := range existing {
		if fresh[r.Passage.Source] {
			sum.Replaced++
			continue
		}
		if len(r.Embedding) != dim {
			return sum, fmt.Errorf("%w: store dimension %d, embedder dimension %d", ErrModelMismatch, len(r.Embedding), dim)
		}
		records = append(records, r)
		sum.Kept++
	}
	for i, p := range passages {
		records = append(records, knowledge.Record{Passage: p, Embedding: vecs[i]})
	}
	sum.Added = len(passages)

	if err := knowledge.Build(dir, records, knowledge.BuildOptions{EmbedModel: in.emb.Model(), Dimension: dim}); err != nil {
		return sum, fmt.Errorf("ingest: %w", err)
	}
	in.log.Info("store written",
		zap.String("dir", dir),
		zap.Int("documents", sum.Documents),
		zap.Int("added", sum.Added),
		zap.Int("kept", sum.Kept),
		zap.Int("replaced", sum.Replaced))
	return sum, nil
}

// embed runs batches concurrently and returns one vector per passage.
func (in *Ingester) embed(ctx context.Context, passages []knowledge.Passage, opts Options) ([][]float32, error) {
	vecs := make([][]float32, len(passages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(passages); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(passages))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, p := range passages[start:end] {
				texts = append(texts, p.Text)
			}
			out, err := in.emb.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("ingest: embed passages %d-%d: %w", start, end-1, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("ingest: embedder returned %d vectors for %d passages", len(out), len(texts))
			}
			copy(vecs[start:end], out)
			if opts.Progress != nil {
				opts.Progress(len(texts))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vecs[0])
	if dim == 0 {
		return nil, errors.New("ingest: embedder returned empty vectors")
	}
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("ingest: passage %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return vecs, nil
}
