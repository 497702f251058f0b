// ABOUTME: Bounded worker pool for detached background tasks
// ABOUTME: Recovers panics, logs failures, and drains queued work on shutdown

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Func is a unit of background work. The context is cancelled when the pool
// is forced to stop.
type Func func(ctx context.Context) error

type task struct {
	id       string
	name     string
	fn       Func
	queuedAt time.Time
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	tasks  chan task
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New starts a pool with the given number of workers and queue size.
// Non-positive values fall back to one worker and an unbuffered queue.
func New(logger *slog.Logger, workers, queueSize int) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan task, queueSize),
		group:  &errgroup.Group{},
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "worker"),
	}

	for range workers {
		p.group.Go(func() error {
			for t := range p.tasks {
				p.run(t)
			}
			return nil
		})
	}
	return p
}

// Submit queues fn without blocking. It returns false when the queue is full
// or the pool is shutting down.
func (p *Pool) Submit(name string, fn Func) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("task rejected, pool closed", "task", name)
		return false
	}

	t := task{id: uuid.New().String(), name: name, fn: fn, queuedAt: time.Now()}
	select {
	case p.tasks <- t:
		p.logger.Debug("task queued", "task", name, "task_id", t.id)
		return true
	default:
		p.logger.Warn("task dropped, queue full", "task", name, "queue_size", cap(p.tasks))
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. If ctx
// expires first, running tasks see their context cancelled and ctx.Err() is
// returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run(t task) {
	logger := p.logger.With("task", t.name, "task_id", t.id)
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		return t.fn(p.ctx)
	}()

	if err != nil {
		logger.Warn("task failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("task finished",
		"duration", time.Since(start),
		"queue_wait", start.Sub(t.queuedAt))
}
