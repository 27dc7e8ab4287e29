// Package turn decides, per conversational turn, whether to consult the
// cookbook and injects the resulting notes into the turn's context.
package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/classify"
	"github.com/kitchencompanion/kitchencompanion/internal/llm"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
	"github.com/kitchencompanion/kitchencompanion/internal/rag"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

// State of a turn in the injection state machine.
type State int

const (
	Received State = iota
	Classified
	Retrieving
	Injected
	Skipped
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Classified:
		return "classified"
	case Retrieving:
		return "retrieving"
	case Injected:
		return "injected"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// NotesHeader starts every injected reference message.
const NotesHeader = "**Chef's Notes (from cookbook):**"

// Skip reasons recorded on a turn.
const (
	ReasonIneligible  = "ineligible"
	ReasonUnavailable = "store_unavailable"
	ReasonFailed      = "retrieval_failed"
	ReasonEmpty       = "empty_result"
	ReasonCancelled   = "cancelled"
	ReasonTimeout     = "timeout"
)

// Turn is one user utterance with the context it is answered in.
type Turn struct {
	UserUtterance string
	PriorContext  []llm.Message
	// InjectedContext holds at most one reference message.
	InjectedContext []llm.Message

	State      State
	SkipReason string
	Result     *rag.Result
}

// Messages returns the context sequence for generating the reply: prior
// context, the user message, then any injected notes.
func (t *Turn) Messages() []llm.Message {
	out := make([]llm.Message, 0, len(t.PriorContext)+1+len(t.InjectedContext))
	out = append(out, t.PriorContext...)
	out = append(out, llm.Message{Role: llm.RoleUser, Content: t.UserUtterance})
	return append(out, t.InjectedContext...)
}

// Classifier gates retrieval.
type Classifier interface {
	Classify(utterance string) classify.Result
}

// Answerer produces a retrieval-augmented answer from a store source.
type Answerer interface {
	AnswerFrom(ctx context.Context, src rag.StoreSource, question string, k int) (rag.Result, error)
}

// Truncator limits the size of injected notes.
type Truncator interface {
	Truncate(s string, maxTokens int) string
}

// Config tunes a Controller.
type Config struct {
	K        int
	Timeout  time.Duration
	MaxNotes int
}

// Controller runs the per-turn state machine. Calls to OnUserTurnCompleted
// are serialised so turn N finishes or is cancelled before turn N+1 is
// classified.
type Controller struct {
	cls  Classifier
	ans  Answerer
	src  rag.StoreSource
	pool *worker.Pool
	cfg  Config
	tok  Truncator
	log  *zap.Logger

	mu sync.Mutex
}

// NewController wires a controller. tok may be nil.
func NewController(cls Classifier, ans Answerer, src rag.StoreSource, pool *worker.Pool, cfg Config, tok Truncator, log *zap.Logger) *Controller {
	if cfg.K <= 0 {
		cfg.K = rag.DefaultK
	}
	return &Controller{
		cls:  cls,
		ans:  ans,
		src:  src,
		pool: pool,
		cfg:  cfg,
		tok:  tok,
		log:  logging.OrNop(log).Named("turn"),
	}
}

// OnUserTurnCompleted classifies t, retrieves notes when eligible and
// appends them to t.InjectedContext. It always returns Injected or Skipped
// and never fails the turn. Cancelling ctx abandons an in-flight retrieval.
func (c *Controller) OnUserTurnCompleted(ctx context.Context, t *Turn) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transition(t, Received)

	verdict := c.cls.Classify(t.UserUtterance)
	c.transition(t, Classified, zap.String("rule", verdict.Rule), zap.String("term", verdict.Term))
	if verdict.Decision != classify.Eligible {
		return c.skip(t, ReasonIneligible)
	}

	c.transition(t, Retrieving)
	rctx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	question := t.UserUtterance
	res, err := worker.Do(rctx, c.pool, func(ctx context.Context) (rag.Result, error) {
		return c.ans.AnswerFrom(ctx, c.src, question, c.cfg.K)
	})

	// A result that lands after cancellation is never injected.
	switch {
	case ctx.Err() != nil:
		return c.skip(t, ReasonCancelled)
	case rctx.Err() != nil:
		return c.skip(t, ReasonTimeout)
	case errors.Is(err, rag.ErrStoreUnavailable):
		return c.skip(t, ReasonUnavailable)
	case err != nil:
		c.log.Debug("retrieval degraded", zap.Error(err))
		return c.skip(t, ReasonFailed)
	case res.Empty():
		return c.skip(t, ReasonEmpty)
	}

	t.Result = &res
	t.InjectedContext = []llm.Message{{Role: llm.RoleReference, Content: c.notes(res)}}
	c.transition(t, Injected, zap.Int("passages", len(res.SourcePassages)))
	return Injected
}

func (c *Controller) notes(res rag.Result) string {
	body := strings.TrimSpace(res.AnswerText)
	if c.tok != nil && c.cfg.MaxNotes > 0 {
		body = c.tok.Truncate(body, c.cfg.MaxNotes)
	}
	return NotesHeader + "\n" + body
}

func (c *Controller) skip(t *Turn, reason string) State {
	t.SkipReason = reason
	t.InjectedContext = nil
	c.transition(t, Skipped, zap.String("reason", reason))
	return Skipped
}

func (c *Controller) transition(t *Turn, s State, fields ...zap.Field) {
	t.State = s
	c.log.Debug("turn "+s.String(), fields...)
}
