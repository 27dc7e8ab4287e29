// Package session runs a text conversation with the assistant: one line
// per turn, cookbook notes injected by the turn controller, and slash
// commands for the kitchen tools.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/geo"
	"github.com/kitchencompanion/kitchencompanion/internal/llm"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
	"github.com/kitchencompanion/kitchencompanion/internal/tools"
	"github.com/kitchencompanion/kitchencompanion/internal/turn"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

var (
	// ErrInterrupted is returned when a turn is cancelled before its reply.
	ErrInterrupted = errors.New("session: turn interrupted")
	// ErrReply is returned when the generator fails to produce a reply.
	ErrReply = errors.New("session: reply failed")
)

// DefaultSystemPrompt is used when Options.System is empty.
const DefaultSystemPrompt = "You are a kitchen assistant. Answer cooking questions clearly and practically, " +
	"in a few sentences. When Chef's Notes from the cookbook are provided, rely on them first " +
	"and say that the advice comes from the cookbook."

// DefaultMaxHistory bounds the messages carried between turns.
const DefaultMaxHistory = 20

// TurnHandler is satisfied by *turn.Controller.
type TurnHandler interface {
	OnUserTurnCompleted(ctx context.Context, t *turn.Turn) turn.State
}

// State is everything scoped to one conversation. Nothing in it is shared
// with other sessions.
type State struct {
	ID        string
	StartedAt time.Time
	Location  *geo.UserLocation

	mu       sync.Mutex
	history  []llm.Message
	lastTurn *turn.Turn
}

// History returns a copy of the carried messages.
func (s *State) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// LastTurn returns the most recent completed conversational turn.
func (s *State) LastTurn() *turn.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTurn
}

func (s *State) record(t *turn.Turn, reply string, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Content: t.UserUtterance},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	if limit > 0 && len(s.history) > limit {
		s.history = append([]llm.Message(nil), s.history[len(s.history)-limit:]...)
	}
	s.lastTurn = t
}

// Options wires a Session.
type Options struct {
	Controller  TurnHandler
	Generator   llm.Generator
	Tools       *tools.Toolbox
	Pool        *worker.Pool
	System      string
	MaxTokens   int
	Temperature float64
	MaxHistory  int
	Logger      *zap.Logger
}

// Session is one conversation.
type Session struct {
	*State

	ctrl  TurnHandler
	gen   llm.Generator
	tools *tools.Toolbox
	pool  *worker.Pool
	opts  Options
	log   *zap.Logger
}

// New starts a session with a fresh State. The toolbox is copied and bound
// to the session's own location.
func New(opts Options) *Session {
	if opts.System == "" {
		opts.System = DefaultSystemPrompt
	}
	if opts.MaxHistory == 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	st := &State{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Location:  &geo.UserLocation{},
	}
	s := &Session{
		State: st,
		ctrl:  opts.Controller,
		gen:   opts.Generator,
		pool:  opts.Pool,
		opts:  opts,
	}
	if opts.Tools != nil {
		tb := *opts.Tools
		tb.Location = st.Location
		if tb.Pool == nil {
			tb.Pool = opts.Pool
		}
		s.tools = &tb
	}
	s.log = logging.OrNop(opts.Logger).Named("session").With(zap.String("session", st.ID))
	return s
}

// Reply is the outcome of one turn.
type Reply struct {
	Text string
	// Turn is nil for slash commands.
	Turn *turn.Turn
}

// Turn handles one user line. Lines starting with "/" run a command;
// anything else is a conversational turn.
func (s *Session) Turn(ctx context.Context, line string) (Reply, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "/") {
		text, err := s.command(ctx, line)
		return Reply{Text: text}, err
	}
	return s.converse(ctx, line)
}

func (s *Session) converse(ctx context.Context, utterance string) (Reply, error) {
	t := &turn.Turn{UserUtterance: utterance, PriorContext: s.History()}
	state := turn.Skipped
	if s.ctrl != nil {
		state = s.ctrl.OnUserTurnCompleted(ctx, t)
	}
	if ctx.Err() != nil {
		return Reply{Turn: t}, ErrInterrupted
	}
	s.log.Debug("turn classified", zap.Stringer("state", state), zap.String("skip_reason", t.SkipReason))

	if s.gen == nil {
		return Reply{Turn: t}, fmt.Errorf("%w: no generator configured", ErrReply)
	}
	req := llm.Request{
		System:      s.opts.System,
		Messages:    t.Messages(),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
	text, err := worker.Do(ctx, s.pool, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, req)
	})
	switch {
	case ctx.Err() != nil:
		return Reply{Turn: t}, ErrInterrupted
	case err != nil:
		s.log.Warn("generate failed", zap.Error(err))
		return Reply{Turn: t}, fmt.Errorf("%w: %v", ErrReply, err)
	}

	text = strings.TrimSpace(text)
	s.record(t, text, s.opts.MaxHistory)
	return Reply{Text: text, Turn: t}, nil
}

// UserMessage maps a Turn error to what the user sees.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInterrupted):
		return "(interrupted)"
	case errors.Is(err, ErrReply):
		return "Sorry, I couldn't come up with an answer just now. Try again."
	default:
		return tools.Message(err)
	}
}
