package turn

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kitchencompanion/kitchencompanion/internal/classify"
	"github.com/kitchencompanion/kitchencompanion/internal/config"
	"github.com/kitchencompanion/kitchencompanion/internal/knowledge"
	"github.com/kitchencompanion/kitchencompanion/internal/llm"
	"github.com/kitchencompanion/kitchencompanion/internal/llm/llmtest"
	"github.com/kitchencompanion/kitchencompanion/internal/rag"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type answerFunc func(ctx context.Context, question string, k int) (rag.Result, error)

func (f answerFunc) AnswerFrom(ctx context.Context, _ rag.StoreSource, question string, k int) (rag.Result, error) {
	return f(ctx, question, k)
}

type nilSource struct{}

func (nilSource) Acquire() (*knowledge.Store, func()) { return nil, func() {} }

func found(text string) rag.Result {
	return rag.Result{
		AnswerText:     text,
		SourcePassages: []knowledge.Match{{Passage: knowledge.Passage{ID: "p1", Text: text}, Score: 1}},
		RetrievedAt:    time.Now(),
	}
}

func newController(t *testing.T, ans Answerer, cfg Config) *Controller {
	t.Helper()
	pool := worker.New(2, nil)
	t.Cleanup(pool.Close)
	cls := classify.New(classify.DefaultMinLength, classify.NewVocabulary(config.DefaultVocabulary...))
	return NewController(cls, ans, nilSource{}, pool, cfg, nil, nil)
}

func TestController_InjectsNotes(t *testing.T) {
	var gotK int
	c := newController(t, answerFunc(func(_ context.Context, q string, k int) (rag.Result, error) {
		gotK = k
		return found("Salt the steak 45 minutes ahead."), nil
	}), Config{})

	turn := &Turn{
		UserUtterance: "How do I season a steak?",
		PriorContext:  []llm.Message{{Role: llm.RoleAssistant, Content: "Hello chef!"}},
	}
	state := c.OnUserTurnCompleted(context.Background(), turn)

	assert.Equal(t, Injected, state)
	assert.Equal(t, Injected, turn.State)
	assert.Equal(t, rag.DefaultK, gotK)
	require.Len(t, turn.InjectedContext, 1)
	assert.Equal(t, llm.RoleReference, turn.InjectedContext[0].Role)
	assert.True(t, strings.HasPrefix(turn.InjectedContext[0].Content, NotesHeader+"\n"))
	assert.Contains(t, turn.InjectedContext[0].Content, "45 minutes")
	require.NotNil(t, turn.Result)

	// Injected notes come after the user message.
	msgs := turn.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleAssistant, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleReference, msgs[2].Role)
}

func TestController_IneligibleSkipsWithoutRetrieval(t *testing.T) {
	var calls atomic.Int32
	c := newController(t, answerFunc(func(context.Context, string, int) (rag.Result, error) {
		calls.Add(1)
		return found("x"), nil
	}), Config{})

	for _, u := range []string{"ok thanks", "What's the weather like today?", "salt"} {
		turn := &Turn{UserUtterance: u}
		assert.Equal(t, Skipped, c.OnUserTurnCompleted(context.Background(), turn), u)
		assert.Equal(t, ReasonIneligible, turn.SkipReason)
		assert.Empty(t, turn.InjectedContext)
	}
	assert.Zero(t, calls.Load())
}

func TestController_DegradedResultsSkip(t *testing.T) {
	tests := []struct {
		name   string
		res    rag.Result
		err    error
		reason string
	}{
		{"unavailable", rag.Result{}, rag.ErrStoreUnavailable, ReasonUnavailable},
		{"failed", rag.Result{}, rag.ErrRetrievalFailed, ReasonFailed},
		{"other error", rag.Result{}, errors.New("boom"), ReasonFailed},
		{"empty", rag.Result{RetrievedAt: time.Now()}, nil, ReasonEmpty},
		{"blank answer", rag.Result{AnswerText: "  ", SourcePassages: found("x").SourcePassages}, nil, ReasonEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, answerFunc(func(context.Context, string, int) (rag.Result, error) {
				return tt.res, tt.err
			}), Config{})
			turn := &Turn{UserUtterance: "How do I season a steak?"}
			assert.Equal(t, Skipped, c.OnUserTurnCompleted(context.Background(), turn))
			assert.Equal(t, tt.reason, turn.SkipReason)
			assert.Empty(t, turn.InjectedContext)
		})
	}
}

func TestController_MissingStoreAlwaysSkips(t *testing.T) {
	m := knowledge.NewManager(filepath.Join(t.TempDir(), "absent"), nil)
	defer m.Close()

	_, err := knowledge.Load(m.Dir())
	require.ErrorIs(t, err, knowledge.ErrNotFound)

	pool := worker.New(1, nil)
	defer pool.Close()
	cls := classify.New(classify.DefaultMinLength, classify.NewVocabulary(config.DefaultVocabulary...))
	c := NewController(cls, rag.New(&llmtest.MockGenerator{}, nil), m, pool, Config{}, nil, nil)

	for i := 0; i < 3; i++ {
		turn := &Turn{UserUtterance: "How do I roast vegetables?"}
		assert.Equal(t, Skipped, c.OnUserTurnCompleted(context.Background(), turn))
		assert.Equal(t, ReasonUnavailable, turn.SkipReason)
	}
}

func TestController_CancelDiscardsLateResult(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	c := newController(t, answerFunc(func(ctx context.Context, _ string, _ int) (rag.Result, error) {
		close(started)
		<-finish
		return found("too late"), nil
	}), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	turn := &Turn{UserUtterance: "How long do I boil pasta?"}
	go func() { done <- c.OnUserTurnCompleted(ctx, turn) }()

	<-started
	cancel()

	select {
	case s := <-done:
		assert.Equal(t, Skipped, s)
	case <-time.After(2 * time.Second):
		t.Fatal("controller blocked after cancellation")
	}
	close(finish)

	assert.Equal(t, ReasonCancelled, turn.SkipReason)
	assert.Empty(t, turn.InjectedContext)
}

func TestController_TimeoutSkips(t *testing.T) {
	c := newController(t, answerFunc(func(ctx context.Context, _ string, _ int) (rag.Result, error) {
		<-ctx.Done()
		return rag.Result{}, ctx.Err()
	}), Config{Timeout: 20 * time.Millisecond})

	turn := &Turn{UserUtterance: "What temperature to bake bread?"}
	start := time.Now()
	assert.Equal(t, Skipped, c.OnUserTurnCompleted(context.Background(), turn))
	assert.Equal(t, ReasonTimeout, turn.SkipReason)
	assert.Less(t, time.Since(start), time.Second)
}

func TestController_TurnsAreSerialised(t *testing.T) {
	var inFlight, peak atomic.Int32
	c := newController(t, answerFunc(func(context.Context, string, int) (rag.Result, error) {
		n := inFlight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return found("notes"), nil
	}), Config{})

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			c.OnUserTurnCompleted(context.Background(), &Turn{UserUtterance: "How do I chop an onion?"})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int32(1), peak.Load())
}

type fixedTruncator struct{}

func (f fixedTruncator) Truncate(s string, maxTokens int) string {
	if len(s) > maxTokens {
		return s[:maxTokens]
	}
	return s
}

func TestController_TruncatesNotes(t *testing.T) {
	pool := worker.New(1, nil)
	defer pool.Close()
	cls := classify.New(classify.DefaultMinLength, classify.NewVocabulary("stir"))
	ans := answerFunc(func(context.Context, string, int) (rag.Result, error) {
		return found("abcdefghijklmnop"), nil
	})
	c := NewController(cls, ans, nilSource{}, pool, Config{MaxNotes: 4}, fixedTruncator{}, nil)

	turn := &Turn{UserUtterance: "how long should I stir"}
	require.Equal(t, Injected, c.OnUserTurnCompleted(context.Background(), turn))
	assert.Equal(t, NotesHeader+"\nabcd", turn.InjectedContext[0].Content)
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Received: "received", Classified: "classified", Retrieving: "retrieving",
		Injected: "injected", Skipped: "skipped", State(99): "unknown",
	} {
		assert.Equal(t, want, s.String())
	}
}

func TestTokenizer(t *testing.T) {
	tok, err := NewTokenizer()
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}

	assert.Zero(t, tok.Count(""))
	long := "This is a fairly long string that should have more than five tokens in total."
	assert.Greater(t, tok.Count(long), 5)
	assert.Less(t, len(tok.Truncate(long, 5)), len(long))
	assert.Equal(t, long, tok.Truncate(long, 0))
	assert.Equal(t, "short", tok.Truncate("short", 100))
}
