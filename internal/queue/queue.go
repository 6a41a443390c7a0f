// Package queue schedules page-fetch tasks with bounded parallelism, a
// per-task deadline, and settled-batch result collection.
package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// ErrTaskTimeout is returned when a task does not settle within the per-task
// deadline. The underlying call is not forcibly stopped; its result is
// discarded.
var ErrTaskTimeout = eris.New("task timed out")

// Task produces a value or an error.
type Task[T any] func(ctx context.Context) (T, error)

// Result is the settled outcome of one task.
type Result[T any] struct {
	Value T
	Err   error
}

// Config controls the queue bounds.
type Config struct {
	// MaxConcurrent is the number of tasks allowed in flight. Default: 5.
	MaxConcurrent int
	// TaskTimeout is the per-task deadline. Default: 30s.
	TaskTimeout time.Duration
}

// DefaultConfig returns the bounds used for page fetches.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 5, TaskTimeout: 30 * time.Second}
}

// Queue runs tasks with at most MaxConcurrent in flight. The in-flight bound
// is shared across Add, AddAll and AddAllSettled callers.
type Queue[T any] struct {
	cfg Config
	sem chan struct{}
}

// New creates a queue with the given bounds.
func New[T any](cfg Config) *Queue[T] {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	return &Queue[T]{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Add runs a single task once a slot is free and returns its outcome.
func (q *Queue[T]) Add(ctx context.Context, task Task[T]) (T, error) {
	var zero T
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, eris.Wrap(ctx.Err(), "queue: wait for slot")
	}
	defer func() { <-q.sem }()

	return q.runWithTimeout(ctx, task)
}

// AddAll runs tasks concurrently and fails fast: the first error cancels the
// remaining tasks and is returned. Results are ordered by task index.
func (q *Queue[T]) AddAll(ctx context.Context, tasks []Task[T]) ([]T, error) {
	results := make([]T, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			val, err := q.Add(gctx, task)
			if err != nil {
				return err
			}
			results[i] = val
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AddAllSettled runs tasks concurrently and collects every outcome. A failing
// task never aborts the batch; its error is captured in its slot. Results are
// ordered by task index.
func (q *Queue[T]) AddAllSettled(ctx context.Context, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))

	g := new(errgroup.Group)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			val, err := q.Add(ctx, task)
			results[i] = Result[T]{Value: val, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runWithTimeout races the task against the per-task deadline. On timeout the
// task keeps running on its (now cancelled) context but its eventual result
// is discarded.
func (q *Queue[T]) runWithTimeout(ctx context.Context, task Task[T]) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, q.cfg.TaskTimeout)
	defer cancel()

	done := make(chan Result[T], 1)
	go func() {
		val, err := task(tctx)
		done <- Result[T]{Value: val, Err: err}
	}()

	var zero T
	select {
	case res := <-done:
		return res.Value, res.Err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, eris.Wrap(ctx.Err(), "queue: task cancelled")
		}
		return zero, ErrTaskTimeout
	}
}
