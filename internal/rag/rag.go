// Package rag answers cooking questions grounded in the cookbook store.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/knowledge"
	"github.com/kitchencompanion/kitchencompanion/internal/llm"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
)

var (
	// ErrStoreUnavailable is returned when no store is loaded.
	ErrStoreUnavailable = errors.New("rag: knowledge store unavailable")
	// ErrRetrievalFailed is the neutral signal for any downstream failure.
	ErrRetrievalFailed = errors.New("rag: could not retrieve")
)

// DefaultK is the number of passages retrieved per question.
const DefaultK = 3

// Result is a synthesized answer with the passages it was grounded on.
type Result struct {
	AnswerText     string
	SourcePassages []knowledge.Match
	RetrievedAt    time.Time
}

// Empty reports whether the result carries nothing worth injecting.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.AnswerText) == "" || len(r.SourcePassages) == 0
}

// StoreSource yields a refreshed store handle and its release func.
// *knowledge.Manager satisfies it.
type StoreSource interface {
	Acquire() (*knowledge.Store, func())
}

const systemPrompt = "You answer cooking questions using only the cookbook excerpts provided. " +
	"If the excerpts do not cover the question, say you don't have that in the cookbook. " +
	"Be concise and practical."

// Synthesizer retrieves passages and asks the generator for an answer.
type Synthesizer struct {
	gen       llm.Generator
	emb       llm.Embedder
	maxTokens int
	log       *zap.Logger
}

// Option customises a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) { s.log = logging.OrNop(l) }
}

// WithMaxTokens bounds the answer length.
func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) { s.maxTokens = n }
}

// New creates a Synthesizer. emb may be nil, in which case passages are
// ranked lexically against the question.
func New(gen llm.Generator, emb llm.Embedder, opts ...Option) *Synthesizer {
	s := &Synthesizer{gen: gen, emb: emb, maxTokens: 512, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("rag")
	return s
}

// AnswerFrom acquires the current store from src for the duration of the call.
func (s *Synthesizer) AnswerFrom(ctx context.Context, src StoreSource, question string, k int) (Result, error) {
	store, release := src.Acquire()
	defer release()
	return s.Answer(ctx, store, question, k)
}

// Answer retrieves the k passages nearest to question and synthesizes an
// answer from them at temperature 0. A nil store yields ErrStoreUnavailable;
// an empty store yields an empty Result and no error. Every other failure
// is reported as ErrRetrievalFailed.
func (s *Synthesizer) Answer(ctx context.Context, store *knowledge.Store, question string, k int) (Result, error) {
	if store == nil {
		return Result{}, ErrStoreUnavailable
	}
	if k <= 0 {
		k = DefaultK
	}
	res := Result{RetrievedAt: time.Now()}
	if store.VectorCount() == 0 {
		return res, nil
	}

	matches, err := s.retrieve(ctx, store, question, k)
	if err != nil {
		s.log.Warn("retrieval failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	res.SourcePassages = matches
	if len(matches) == 0 {
		return res, nil
	}

	answer, err := s.gen.Generate(ctx, llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleReference, Content: formatPassages(matches)},
			{Role: llm.RoleUser, Content: question},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		s.log.Warn("synthesis failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}
	res.AnswerText = strings.TrimSpace(answer)

	s.log.Debug("answered",
		zap.Int("passages", len(matches)),
		zap.Int("answer_len", len(res.AnswerText)))
	return res, nil
}

func (s *Synthesizer) retrieve(ctx context.Context, store *knowledge.Store, question string, k int) ([]knowledge.Match, error) {
	if s.emb == nil {
		return store.SearchText(question, k), nil
	}
	// Vectors from another model live in a different space.
	if m := store.EmbedModel(); m != "" && m != s.emb.Model() {
		s.log.Debug("embed model mismatch, ranking lexically",
			zap.String("store_model", m), zap.String("embedder", s.emb.Model()))
		return store.SearchText(question, k), nil
	}

	vecs, err := s.emb.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors", len(vecs))
	}
	return store.Search(ctx, vecs[0], k)
}

func formatPassages(matches []knowledge.Match) string {
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d]", i+1)
		if m.Passage.Source != "" {
			fmt.Fprintf(&b, " (%s", m.Passage.Source)
			if m.Passage.Page > 0 {
				fmt.Fprintf(&b, ", p. %d", m.Passage.Page)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(m.Passage.Text))
	}
	return b.String()
}
