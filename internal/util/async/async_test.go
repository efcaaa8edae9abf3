package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	results := Run(context.Background(), 4, nil)
	if len(results) != 0 {
		t.Errorf("Expected no results, got: %d", len(results))
	}
}

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	tasks := []Task{
		{Name: "a", Func: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "b", Func: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "c", Func: func(context.Context) error { ran.Add(1); return nil }},
	}

	results := Run(context.Background(), 2, tasks)

	if ran.Load() != 3 {
		t.Errorf("Expected 3 tasks to run, got: %d", ran.Load())
	}
	for i, r := range results {
		if r.Name != tasks[i].Name {
			t.Errorf("Result %d: expected name %q, got %q", i, tasks[i].Name, r.Name)
		}
		if !r.Started {
			t.Errorf("Result %d: expected Started", i)
		}
		if r.Err != nil {
			t.Errorf("Result %d: expected no error, got: %v", i, r.Err)
		}
	}
}

func TestRun_ResultsInInputOrder(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	tasks := []Task{
		{Name: "slow", Func: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}},
		{Name: "fails", Func: func(context.Context) error { return wantErr }},
		{Name: "fast", Func: func(context.Context) error { return nil }},
	}

	results := Run(context.Background(), 3, tasks)

	if results[0].Name != "slow" || results[1].Name != "fails" || results[2].Name != "fast" {
		t.Errorf("Results out of input order: %+v", results)
	}
	if !errors.Is(results[1].Err, wantErr) {
		t.Errorf("Expected task error preserved, got: %v", results[1].Err)
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("Expected succeeding tasks to report nil errors")
	}
}

func TestRun_RespectsLimit(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	running, peak := 0, 0

	task := func(context.Context) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Name: "t", Func: task}
	}

	Run(context.Background(), 2, tasks)

	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, observed: %d", peak)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	results := Run(ctx, 1, []Task{
		{Name: "never", Func: func(context.Context) error { ran = true; return nil }},
	})

	if ran {
		t.Error("Expected task not to run after cancellation")
	}
	if results[0].Started {
		t.Error("Expected Started=false for a task never attempted")
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", results[0].Err)
	}
}

func TestRun_CancelMidway(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	tasks := []Task{
		{Name: "first", Func: func(context.Context) error {
			started.Add(1)
			cancel()
			time.Sleep(10 * time.Millisecond)
			return nil
		}},
		{Name: "second", Func: func(context.Context) error {
			started.Add(1)
			return nil
		}},
	}

	results := Run(ctx, 1, tasks)

	if started.Load() != 1 {
		t.Errorf("Expected only the first task to start, got: %d", started.Load())
	}
	if results[0].Err != nil {
		t.Errorf("Expected in-flight task to finish, got: %v", results[0].Err)
	}
	if results[1].Started {
		t.Error("Expected the second task to be skipped")
	}
	if !errors.Is(results[1].Err, context.Canceled) {
		t.Errorf("Expected context.Canceled for the skipped task, got: %v", results[1].Err)
	}
}

func TestRun_ZeroLimitClampedToOne(t *testing.T) {
	t.Parallel()

	results := Run(context.Background(), 0, []Task{
		{Name: "only", Func: func(context.Context) error { return nil }},
	})

	if !results[0].Started || results[0].Err != nil {
		t.Errorf("Expected the task to run with a clamped limit, got: %+v", results[0])
	}
}
