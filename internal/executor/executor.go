// Package executor runs render jobs on a bounded, process-wide worker pool.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrShutdown is returned for work submitted after Shutdown, or left pending
// by Shutdown(false).
var ErrShutdown = errors.New("executor shut down")

// Task is one unit of work. It receives the context given to Submit.
type Task func(ctx context.Context) error

// Future reports the outcome of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the task has finished or was abandoned.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task ends or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task error. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

type pool struct {
	sem   *semaphore.Weighted
	limit int
}

// Executor bounds how many tasks run at once. The pool behind it is built
// on first use and rebuilt after Resize.
type Executor struct {
	mu     sync.Mutex
	limit  int
	pool   *pool
	closed bool
	wg     sync.WaitGroup

	// abandon cancels every task still waiting for a slot.
	abandon context.Context
	cancel  context.CancelFunc

	logger *zap.Logger
}

// New returns an executor running at most limit tasks at a time. A limit
// below one is treated as one.
func New(limit int, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		limit:   max(1, limit),
		abandon: ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Limit returns the limit the next pool will be built with.
func (e *Executor) Limit() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limit
}

func (e *Executor) poolLocked() *pool {
	if e.pool == nil {
		e.pool = &pool{sem: semaphore.NewWeighted(int64(e.limit)), limit: e.limit}
		e.logger.Debug("worker pool created", zap.Int("limit", e.limit))
	}
	return e.pool
}

// Submit queues task. The returned future resolves with the task's error,
// with ctx.Err() if ctx ends before a slot frees up, or with ErrShutdown.
func (e *Executor) Submit(ctx context.Context, task Task) *Future {
	f := newFuture()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.resolve(ErrShutdown)
		return f
	}
	p := e.poolLocked()
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		wait, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(e.abandon, cancel)
		err := p.sem.Acquire(wait, 1)
		stop()
		cancel()
		if err != nil {
			if e.abandon.Err() != nil && ctx.Err() == nil {
				err = ErrShutdown
			}
			f.resolve(err)
			return
		}
		defer p.sem.Release(1)
		f.resolve(e.run(ctx, task))
	}()
	return f
}

func (e *Executor) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render task panicked", zap.Any("panic", r))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Resize changes the limit. The current pool is detached without waiting:
// its running and queued tasks finish under the old limit, and the next
// Submit builds a fresh pool with n slots.
func (e *Executor) Resize(n int) {
	n = max(1, n)
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == e.limit {
		return
	}
	e.logger.Info("worker pool resized", zap.Int("from", e.limit), zap.Int("to", n))
	e.limit = n
	e.pool = nil
}

// Shutdown refuses further work. With wait it blocks until every queued
// and running task has finished; without it, queued tasks resolve with
// ErrShutdown and running ones are left to finish on their own.
func (e *Executor) Shutdown(wait bool) {
	e.mu.Lock()
	e.closed = true
	e.pool = nil
	e.mu.Unlock()

	if !wait {
		e.cancel()
		return
	}
	e.wg.Wait()
	e.cancel()
}
