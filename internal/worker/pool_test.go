package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDo_ReturnsResult(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	v, err := Do(context.Background(), p, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Do(context.Background(), p, func(context.Context) (int, error) { return 0, errors.New("nope") })
	assert.EqualError(t, err, "nope")
}

func TestDo_BoundsConcurrency(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Do(context.Background(), p, func(context.Context) (struct{}, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Equal(t, 2, p.Size())
}

func TestDo_CancelReturnsImmediately(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(context.Context) (string, error) {
			close(started)
			<-release
			return "late", nil
		})
		errCh <- err
	}()

	<-started
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
	close(release)
	p.Wait()
}

func TestDo_AcquireRespectsContext(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	block := make(chan struct{})
	require.NoError(t, p.Go(context.Background(), func(context.Context) { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, p, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}

func TestDo_RecoversPanic(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	_, err := Do(context.Background(), p, func(context.Context) (int, error) { panic("kaboom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// The slot was released.
	v, err := Do(context.Background(), p, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestClose_RejectsNewTasks(t *testing.T) {
	p := New(1, nil)
	p.Close()
	assert.ErrorIs(t, p.Go(context.Background(), func(context.Context) {}), ErrClosed)
	_, err := Do(context.Background(), p, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_MinimumSize(t *testing.T) {
	p := New(0, nil)
	defer p.Close()
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, 0, p.Active())
}
