// Package engine executes a deletion plan phase by phase against the
// provider, or simulates it without mutating anything.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imamik/teardown/internal/aws"
	"github.com/imamik/teardown/internal/graph"
	"github.com/imamik/teardown/internal/observe"
	"github.com/imamik/teardown/internal/plan"
	"github.com/imamik/teardown/internal/resource"
	"github.com/imamik/teardown/internal/util/async"
	"github.com/imamik/teardown/internal/util/retry"
)

// Status is the terminal state of one resource.
type Status string

const (
	StatusDeleted   Status = "deleted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusSimulated Status = "simulated"
)

// RunStatus summarises the whole run.
type RunStatus string

const (
	RunSucceeded       RunStatus = "succeeded"
	RunPartiallyFailed RunStatus = "partially-failed"
	RunCancelled       RunStatus = "cancelled"
	RunSimulated       RunStatus = "simulated"
)

// Outcome records how a single resource ended up.
type Outcome struct {
	Status   Status
	Attempts int
	Reason   string
	Err      error
}

// Result collects per-resource outcomes. Resources that never reached a
// terminal state (a cancelled run) have no outcome.
type Result struct {
	mu       sync.Mutex
	outcomes map[resource.Key]Outcome
	Run      RunStatus
}

func newResult() *Result {
	return &Result{outcomes: make(map[resource.Key]Outcome)}
}

// Outcome returns the recorded outcome for the key.
func (r *Result) Outcome(k resource.Key) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[k]
	return o, ok
}

// Counts returns the number of resources per terminal status.
func (r *Result) Counts() map[Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int)
	for _, o := range r.outcomes {
		counts[o.Status]++
	}
	return counts
}

// Failed reports whether any resource ended up failed.
func (r *Result) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.Status == StatusFailed {
			return true
		}
	}
	return false
}

func (r *Result) set(k resource.Key, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[k] = o
}

// Options configures a run.
type Options struct {
	Parallelism  int
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Observer     observe.Observer
}

func (o *Options) normalize() {
	if o.Parallelism < 1 {
		o.Parallelism = 4
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 15 * time.Second
	}
	if o.Observer == nil {
		o.Observer = observe.Discard{}
	}
}

// Execute walks the plan. Phases run strictly in order; resources within a
// phase run on a bounded worker pool since they are independent by
// construction. A failed resource blocks its transitive dependents but
// not its siblings. In dry-run mode no mutating provider call is ever
// issued.
func Execute(ctx context.Context, p plan.Plan, g *graph.Graph, provider aws.Mutator, opts Options) *Result {
	opts.normalize()
	result := newResult()

	if p.Mode == plan.DryRun {
		simulate(p, result, opts.Observer)
		return result
	}

	// blockedBy maps a resource to the failed resource it depends on.
	blockedBy := make(map[resource.Key]resource.Key)
	var mu sync.Mutex
	cancelled := false

	for i, phase := range p.Phases {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		phaseName := fmt.Sprintf("phase %d/%d", i+1, len(p.Phases))
		opts.Observer.Event(observe.Event{Type: observe.EventPhaseStarted, Phase: phaseName})

		var tasks []async.Task
		var handles []resource.Handle
		for _, h := range phase {
			mu.Lock()
			blocker, blocked := blockedBy[h.Key()]
			mu.Unlock()
			if blocked {
				result.set(h.Key(), Outcome{
					Status: StatusSkipped,
					Reason: fmt.Sprintf("blocked by failed %s", blocker),
				})
				opts.Observer.Event(observe.Event{
					Type:     observe.EventResourceSkipped,
					Phase:    phaseName,
					Resource: h.Key().String(),
					Message:  fmt.Sprintf("blocked by %s", blocker),
				})
				continue
			}
			handles = append(handles, h)
			tasks = append(tasks, deleteTask(h, provider, result, phaseName, opts))
		}

		results := async.Run(ctx, opts.Parallelism, tasks)
		phaseFailed := false
		for j, res := range results {
			h := handles[j]
			switch {
			case !res.Started:
				// Never attempted: the run was cancelled first. The
				// resource stays pending.
				cancelled = true
			case res.Err == nil:
				// Outcome already recorded by the task.
			case isCancellation(res.Err):
				cancelled = true
			default:
				phaseFailed = true
				mu.Lock()
				for _, dep := range g.Dependents(h.Key()) {
					if _, ok := blockedBy[dep]; !ok {
						blockedBy[dep] = h.Key()
					}
				}
				mu.Unlock()
			}
		}

		if cancelled {
			opts.Observer.Event(observe.Event{Type: observe.EventPhaseFailed, Phase: phaseName, Message: "cancelled"})
			break
		}
		if phaseFailed {
			opts.Observer.Event(observe.Event{Type: observe.EventPhaseFailed, Phase: phaseName})
		} else {
			opts.Observer.Event(observe.Event{Type: observe.EventPhaseCompleted, Phase: phaseName})
		}
	}

	switch {
	case cancelled:
		result.Run = RunCancelled
	case result.Failed():
		result.Run = RunPartiallyFailed
	default:
		result.Run = RunSucceeded
	}
	return result
}

// deleteTask builds the worker task for one resource: retry transient
// failures up to the attempt budget, treat not-found as success, fail
// immediately on permanent errors.
func deleteTask(h resource.Handle, provider aws.Mutator, result *Result, phaseName string, opts Options) async.Task {
	return async.Task{
		Name: h.Key().String(),
		Func: func(ctx context.Context) error {
			attempts := 0
			op := func(ctx context.Context) error {
				attempts++
				if attempts > 1 {
					opts.Observer.Event(observe.Event{
						Type:     observe.EventResourceRetrying,
						Phase:    phaseName,
						Resource: h.Key().String(),
						Fields:   map[string]string{"attempt": fmt.Sprintf("%d", attempts)},
					})
				}

				var err error
				if h.Kind == resource.KindInstanceProfile {
					opts.Observer.Event(observe.Event{Type: observe.EventResourceDetaching, Phase: phaseName, Resource: h.Key().String()})
					err = provider.Detach(ctx, h)
				} else {
					opts.Observer.Event(observe.Event{Type: observe.EventResourceDeleting, Phase: phaseName, Resource: h.Key().String()})
					err = provider.Delete(ctx, h)
				}
				if err == nil {
					return nil
				}
				if errors.Is(err, aws.ErrNotFound) {
					// Already gone: idempotent success.
					return nil
				}
				if aws.IsPermanent(err) {
					return retry.Fatal(err)
				}
				return err
			}

			err := retry.Do(ctx, op,
				retry.WithMaxAttempts(opts.MaxAttempts),
				retry.WithInitialDelay(opts.InitialDelay),
				retry.WithMaxDelay(opts.MaxDelay),
			)
			// Record the outcome here so the engine loop only has to
			// handle blocking and cancellation.
			switch {
			case err == nil:
				result.set(h.Key(), Outcome{Status: StatusDeleted, Attempts: attempts})
				opts.Observer.Event(observe.Event{Type: observe.EventResourceDeleted, Phase: phaseName, Resource: h.Key().String()})
			case isCancellation(err):
				// No terminal outcome; the run reports Cancelled.
			default:
				result.set(h.Key(), Outcome{Status: StatusFailed, Attempts: attempts, Err: err, Reason: err.Error()})
				opts.Observer.Event(observe.Event{
					Type:     observe.EventResourceFailed,
					Phase:    phaseName,
					Resource: h.Key().String(),
					Message:  err.Error(),
				})
			}
			return err
		},
	}
}

func simulate(p plan.Plan, result *Result, obs observe.Observer) {
	for i, phase := range p.Phases {
		phaseName := fmt.Sprintf("phase %d/%d", i+1, len(p.Phases))
		for _, h := range phase {
			result.set(h.Key(), Outcome{Status: StatusSimulated})
			obs.Event(observe.Event{
				Type:     observe.EventResourceSimulated,
				Phase:    phaseName,
				Resource: h.Key().String(),
			})
		}
	}
	result.Run = RunSimulated
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
