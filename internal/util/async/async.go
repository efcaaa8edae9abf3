// Package async runs independent tasks on a bounded worker pool and
// reports a per-task outcome.
package async

import (
	"context"
	"sync"
)

// Task is a named unit of work.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result pairs a task with its outcome. Err is ctx.Err() for tasks that
// were never started because the context was cancelled first.
type Result struct {
	Name    string
	Err     error
	Started bool
}

// Run executes the tasks with at most limit running concurrently and
// returns results in input order. Once the context is cancelled no new
// task starts, but tasks already running are allowed to finish.
func Run(ctx context.Context, limit int, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, task := range tasks {
		results[i].Name = task.Name

		select {
		case <-ctx.Done():
			results[i].Err = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		// Re-check after acquiring a slot: a long-running phase may be
		// cancelled while this task waited for a worker.
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			<-sem
			continue
		}

		wg.Add(1)
		results[i].Started = true
		go func(i int, t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i].Err = t.Func(ctx)
		}(i, task)
	}

	wg.Wait()
	return results
}
