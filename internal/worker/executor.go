// Package worker runs fire-and-forget tasks on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Queued    int    `json:"queued"`
}

// Executor accepts tasks until Close. Task failures and panics are logged
// and counted, never propagated.
type Executor struct {
	tasks   chan task
	group   *errgroup.Group
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool

	submitted, completed, failed, rejected atomic.Uint64
}

// NewExecutor starts workers goroutines reading from a queue of buffer
// tasks. Each task gets at most timeout to finish; zero means no limit.
func NewExecutor(log *slog.Logger, workers, buffer int, timeout time.Duration) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	e := &Executor{
		tasks:   make(chan task, buffer),
		group:   &errgroup.Group{},
		log:     log,
		timeout: timeout,
	}
	for range workers {
		e.group.Go(e.loop)
	}
	return e
}

// Submit queues fn without blocking. It reports false when the executor
// is closed or the queue is full.
func (e *Executor) Submit(name string, fn func(ctx context.Context) error) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.rejected.Add(1)
		return false
	}
	select {
	case e.tasks <- task{name: name, fn: fn}:
		e.submitted.Add(1)
		return true
	default:
		e.rejected.Add(1)
		e.log.Warn("task_rejected", "task", name, "reason", "queue full")
		return false
	}
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()
	_ = e.group.Wait()
}

func (e *Executor) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Rejected:  e.rejected.Load(),
		Queued:    len(e.tasks),
	}
}

func (e *Executor) loop() error {
	for t := range e.tasks {
		if err := e.run(t); err != nil {
			e.failed.Add(1)
			e.log.Error("task_failed", "task", t.name, "error", err)
			continue
		}
		e.completed.Add(1)
	}
	return nil
}

func (e *Executor) run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return t.fn(ctx)
}
