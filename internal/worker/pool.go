// Package worker runs blocking calls off the session loop on a bounded
// set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kitchencompanion/kitchencompanion/internal/logging"
)

// ErrClosed is returned by Do and Go after Close.
var ErrClosed = errors.New("worker: pool closed")

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	size   int64
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	closed atomic.Bool
	active atomic.Int64
	log    *zap.Logger
}

// New creates a pool running at most size tasks at once.
func New(size int, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
		log:  logging.OrNop(log).Named("worker"),
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return int(p.size) }

// Active returns the number of running tasks.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Go starts fn on the pool. It blocks until a slot is free and fails when
// ctx ends first or the pool is closed.
func (p *Pool) Go(ctx context.Context, fn func(context.Context)) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	p.active.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("task panicked", zap.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
	return nil
}

// Do runs fn on p and waits for its result. When ctx ends first Do returns
// ctx.Err() at once; fn keeps running with a cancelled context and its
// result is dropped.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	ch := make(chan result, 1)

	err := p.Go(ctx, func(ctx context.Context) {
		var r result
		defer func() {
			if rec := recover(); rec != nil {
				r = result{err: fmt.Errorf("worker: task panicked: %v", rec)}
			}
			ch <- r
		}()
		r.v, r.err = fn(ctx)
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close rejects further tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.closed.Store(true)
	p.wg.Wait()
}

// Wait blocks until every started task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
