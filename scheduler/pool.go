package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wippyai/wasm-jit/errors"
)

// Task is a unit of fire-and-forget work. Nothing is reported back to the
// submitter.
type Task interface {
	Run(ctx context.Context)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context)

func (f TaskFunc) Run(ctx context.Context) { f(ctx) }

// Pool runs tasks on at most Workers goroutines at a time. Submit never
// blocks: each task gets its own goroutine, which waits for a worker slot.
type Pool struct {
	ctx       context.Context
	group     errgroup.Group
	sem       *semaphore.Weighted
	workers   int
	submitted atomic.Uint64
	completed atomic.Uint64
	running   atomic.Int64
	mu        sync.RWMutex
	closed    bool

	// pending counts tasks whose goroutine has not returned. Wait blocks on
	// it instead of the errgroup, whose Wait must not overlap a Go call.
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int
}

// New creates a pool. workers <= 0 uses GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		ctx:     context.Background(),
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
	p.idle = sync.NewCond(&p.pendingMu)
	return p
}

// Submit enqueues t and returns at once.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.Closed(errors.PhaseSchedule, "scheduler")
	}

	p.submitted.Add(1)
	p.pendingMu.Lock()
	p.pending++
	p.pendingMu.Unlock()

	p.group.Go(func() error {
		defer p.done()

		// Background context: Acquire cannot fail.
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return err
		}
		defer p.sem.Release(1)

		p.running.Add(1)
		defer p.running.Add(-1)

		t.Run(p.ctx)
		p.completed.Add(1)
		return nil
	})
	return nil
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Stats returns submitted, completed and currently running task counts.
func (p *Pool) Stats() (submitted, completed uint64, running int64) {
	return p.submitted.Load(), p.completed.Load(), p.running.Load()
}

func (p *Pool) done() {
	p.pendingMu.Lock()
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.pendingMu.Unlock()
}

// Wait blocks until no submitted task is left. It may be called while other
// goroutines keep submitting; it then returns at some moment the pool is
// idle.
func (p *Pool) Wait() {
	p.pendingMu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.pendingMu.Unlock()
}

// Close stops accepting tasks and waits for the submitted ones, or until ctx
// is done. Running tasks are never interrupted.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	// No Go call can follow closed being set, so the group can be waited on.
	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
