// Package worker provides the bounded-concurrency task executor shared by
// every probing stage. At most N tasks are in flight at once, each task runs
// under its own deadline, and results come back in submission order no matter
// which tasks finish first.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reconward/reconward/internal/logger"
)

// DefaultTaskTimeout applies when a task carries no timeout of its own.
const DefaultTaskTimeout = 3 * time.Second

// Task is one unit of work: a hostname to resolve, a (host, port) pair to
// probe. Immutable once submitted; exactly one Result is produced for it.
type Task[T any] struct {
	Key     string
	Timeout time.Duration
	Fn      func(ctx context.Context) (T, error)
}

// Result is the single outcome of a task. TimedOut means the task exceeded
// its deadline and was detached; Err carries any captured error, including
// recovered panics and run-level cancellation for tasks never started.
type Result[T any] struct {
	Key      string
	Value    T
	Err      error
	TimedOut bool
	Duration time.Duration
}

// Pool is a reusable bounded executor. It holds no per-run state: Execute may
// be called repeatedly, but stages use it sequentially, never concurrently.
type Pool struct {
	Workers int
	Logger  *logger.Logger
}

// New returns a pool with the given concurrency bound.
func New(workers int, log *logger.Logger) Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return Pool{Workers: workers, Logger: log.WithComponent("worker-pool")}
}

// Execute runs tasks with at most p.Workers in flight and returns one result
// per task, index-aligned with the submission order. Cancelling ctx stops
// dispatching new tasks; in-flight tasks settle or time out, and tasks that
// never started are marked with the context error so len(results) always
// equals len(tasks).
func Execute[T any](ctx context.Context, p Pool, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	start := time.Now()
	settled := make([]bool, len(tasks))
	indexes := make(chan int)

	go func() {
		defer close(indexes)
		for i := range tasks {
			select {
			case indexes <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = runOne(ctx, tasks[i])
				settled[i] = true
			}
		}()
	}
	wg.Wait()

	// Tasks the feeder never dispatched because the run was cancelled.
	for i := range results {
		if !settled[i] {
			results[i] = Result[T]{Key: tasks[i].Key, Err: ctx.Err()}
		}
	}

	if p.Logger != nil {
		timeouts, failures := 0, 0
		for i := range results {
			if results[i].TimedOut {
				timeouts++
			} else if results[i].Err != nil {
				failures++
			}
		}
		p.Logger.Debugw("Task batch completed",
			"tasks", len(tasks),
			"workers", workers,
			"timeouts", timeouts,
			"failures", failures,
			"duration_ms", time.Since(start).Milliseconds())
	}

	return results
}

// runOne executes a single task under its deadline. The task function runs in
// its own goroutine; if the deadline passes first, the goroutine is detached
// rather than force-killed (the buffered channel lets it finish and be
// discarded) and the result is marked as a timeout, never success.
func runOne[T any](ctx context.Context, t Task[T]) Result[T] {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{zero, fmt.Errorf("task %s panicked: %v", t.Key, r)}
			}
		}()
		v, err := t.Fn(tctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return Result[T]{Key: t.Key, Value: o.value, Err: o.err, Duration: time.Since(start)}
	case <-tctx.Done():
		return Result[T]{
			Key:      t.Key,
			Err:      tctx.Err(),
			TimedOut: ctx.Err() == nil, // deadline, not run-level cancel
			Duration: time.Since(start),
		}
	}
}
