package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdd_ReturnsTaskResult(t *testing.T) {
	q := New[int](DefaultConfig())
	val, err := q.Add(context.Background(), func(_ context.Context) (int, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 7 {
		t.Errorf("expected 7, got %d", val)
	}
}

func TestAdd_BoundsConcurrency(t *testing.T) {
	q := New[struct{}](Config{MaxConcurrent: 2, TaskTimeout: time.Second})

	var running, peak atomic.Int32
	var mu sync.Mutex
	updatePeak := func(v int32) {
		mu.Lock()
		defer mu.Unlock()
		if v > peak.Load() {
			peak.Store(v)
		}
	}

	tasks := make([]Task[struct{}], 8)
	for i := range tasks {
		tasks[i] = func(_ context.Context) (struct{}, error) {
			updatePeak(running.Add(1))
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}
	}

	q.AddAllSettled(context.Background(), tasks)
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 tasks in flight, saw %d", peak.Load())
	}
}

func TestAddAll_FailFast(t *testing.T) {
	q := New[int](Config{MaxConcurrent: 1, TaskTimeout: time.Second})

	boom := errors.New("boom")
	tasks := []Task[int]{
		func(_ context.Context) (int, error) { return 0, boom },
		func(ctx context.Context) (int, error) {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return 2, nil
		},
	}

	_, err := q.AddAll(context.Background(), tasks)
	if err == nil {
		t.Fatal("expected fail-fast error")
	}
}

func TestAddAllSettled_CollectsAllOutcomes(t *testing.T) {
	q := New[string](DefaultConfig())

	fail := errors.New("page 2 unavailable")
	tasks := []Task[string]{
		func(_ context.Context) (string, error) { return "one", nil },
		func(_ context.Context) (string, error) { return "", fail },
		func(_ context.Context) (string, error) { return "three", nil },
	}

	results := q.AddAllSettled(context.Background(), tasks)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Value != "one" {
		t.Errorf("result 0: got (%q, %v)", results[0].Value, results[0].Err)
	}
	if !errors.Is(results[1].Err, fail) {
		t.Errorf("result 1: expected captured error, got %v", results[1].Err)
	}
	if results[2].Err != nil || results[2].Value != "three" {
		t.Errorf("result 2: got (%q, %v)", results[2].Value, results[2].Err)
	}
}

func TestAdd_TimesOutSlowTask(t *testing.T) {
	q := New[int](Config{MaxConcurrent: 1, TaskTimeout: 20 * time.Millisecond})

	_, err := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		select {
		case <-time.After(time.Second):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("expected ErrTaskTimeout, got %v", err)
	}
}

func TestAdd_TimeoutFreesSlot(t *testing.T) {
	q := New[int](Config{MaxConcurrent: 1, TaskTimeout: 10 * time.Millisecond})

	_, _ = q.Add(context.Background(), func(_ context.Context) (int, error) {
		time.Sleep(50 * time.Millisecond) // ignores cancellation
		return 0, nil
	})

	// The abandoned task must not hold the slot.
	val, err := q.Add(context.Background(), func(_ context.Context) (int, error) {
		return 9, nil
	})
	if err != nil {
		t.Fatalf("unexpected error after timeout: %v", err)
	}
	if val != 9 {
		t.Errorf("expected 9, got %d", val)
	}
}

func TestAdd_ContextCancelled(t *testing.T) {
	q := New[int](Config{MaxConcurrent: 1, TaskTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Add(ctx, func(_ context.Context) (int, error) { return 1, nil })
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
