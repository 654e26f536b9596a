package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// ErrRunaway indicates the iteration bound was exceeded. The instance
// is marked failed with reason "runaway_loop".
var ErrRunaway = errors.New("runaway loop: iteration bound exceeded")

// ErrCancelled indicates the instance was cancelled before the next
// node began. In-flight node work is discarded.
var ErrCancelled = errors.New("workflow cancelled")

// NodeError wraps a failure inside a named node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// CheckpointSaver persists instance snapshots and exposes the stored
// status so the engine can observe cooperative cancellation.
type CheckpointSaver interface {
	// Save writes the instance and its serialized state payload.
	Save(inst *models.WorkflowInstance, data json.RawMessage) error
	// Status returns the stored status for a thread id.
	Status(threadID string) (models.WorkflowStatus, error)
}

// RunConfig carries the per-run wiring for one execution.
type RunConfig struct {
	// Instance is the workflow instance the engine mutates as it runs.
	Instance *models.WorkflowInstance
	// Saver persists checkpoints; required.
	Saver CheckpointSaver
	// Concurrency bounds fan-out workers. Zero means DefaultConcurrency.
	Concurrency int
	// DebugLog is an optional logging function.
	DebugLog func(format string, args ...any)
}

// DefaultConcurrency bounds fan-out workers when RunConfig does not.
const DefaultConcurrency = 4

// Start executes the graph from its entry node with the given initial
// state. The instance's CurrentStep and CompletedSteps are maintained
// by the engine; a checkpoint is written before the first node and
// after every completed node.
func (c *Compiled[S]) Start(ctx context.Context, run RunConfig, initial S) (S, error) {
	run.Instance.Status = models.StatusRunning
	run.Instance.CurrentStep = c.entry
	if err := save(run, initial); err != nil {
		return initial, err
	}
	return c.run(ctx, run, initial)
}

// Resume continues execution from the node recorded as the instance's
// CurrentStep rather than from the entry node.
func (c *Compiled[S]) Resume(ctx context.Context, run RunConfig, state S) (S, error) {
	cur := run.Instance.CurrentStep
	if cur != END && !c.HasNode(cur) {
		return state, fmt.Errorf("cannot resume: unknown step %q", cur)
	}
	run.Instance.Status = models.StatusRunning
	if err := save(run, state); err != nil {
		return state, err
	}
	return c.run(ctx, run, state)
}

func (c *Compiled[S]) run(ctx context.Context, run RunConfig, state S) (S, error) {
	inst := run.Instance
	debugf := run.DebugLog
	if debugf == nil {
		debugf = func(string, ...any) {}
	}
	maxSteps := inst.MaxIterations * len(c.nodes)

	for {
		cur := inst.CurrentStep

		// Cooperative cancellation: takes effect before the next node.
		// Checked ahead of END so a cancel written while the final node
		// was in flight still wins over completion.
		if stored, err := run.Saver.Status(inst.ThreadID); err == nil && stored == models.StatusCancelled {
			inst.Status = models.StatusCancelled
			debugf("[engine] %s cancelled before %s", inst.ThreadID, cur)
			return state, ErrCancelled
		}

		if cur == END {
			inst.Status = models.StatusCompleted
			if err := save(run, state); err != nil {
				return state, err
			}
			debugf("[engine] %s completed after %d steps", inst.ThreadID, len(inst.CompletedSteps))
			return state, nil
		}

		if err := ctx.Err(); err != nil {
			inst.Status = models.StatusFailed
			inst.ErrorCount++
			inst.LastError = err.Error()
			saveFailure(run, state, debugf)
			return state, fmt.Errorf("run aborted before %s: %w", cur, err)
		}

		if maxSteps > 0 && len(inst.CompletedSteps) >= maxSteps {
			inst.Status = models.StatusFailed
			inst.ErrorCount++
			inst.LastError = fmt.Sprintf("runaway_loop: %d steps exceed %d iterations over %d nodes",
				len(inst.CompletedSteps), inst.MaxIterations, len(c.nodes))
			saveFailure(run, state, debugf)
			return state, ErrRunaway
		}

		fn, ok := c.nodes[cur]
		if !ok {
			inst.Status = models.StatusFailed
			inst.LastError = fmt.Sprintf("unknown step %q", cur)
			saveFailure(run, state, debugf)
			return state, fmt.Errorf("unknown step %q", cur)
		}

		debugf("[engine] %s running %s", inst.ThreadID, cur)
		next, err := fn(ctx, state)
		if err != nil {
			inst.Status = models.StatusFailed
			inst.ErrorCount++
			inst.LastError = err.Error()
			saveFailure(run, state, debugf)
			return state, &NodeError{Node: cur, Err: err}
		}
		state = next
		inst.CompletedSteps = append(inst.CompletedSteps, cur)

		var nextStep string
		if fo, isFan := c.fanouts[cur]; isFan {
			state, err = c.runFanOut(ctx, run, fo, state)
			if err != nil {
				inst.Status = models.StatusFailed
				inst.ErrorCount++
				inst.LastError = err.Error()
				saveFailure(run, state, debugf)
				return state, &NodeError{Node: fo.Worker, Err: err}
			}
			inst.CompletedSteps = append(inst.CompletedSteps, fo.Worker)
			nextStep = fo.Join
		} else if ce, isCond := c.conditional[cur]; isCond {
			nextStep = ce.router(state)
			if !ce.candidates[nextStep] {
				inst.Status = models.StatusFailed
				inst.LastError = fmt.Sprintf("router on %s returned unknown candidate %q", cur, nextStep)
				saveFailure(run, state, debugf)
				return state, fmt.Errorf("router on %s returned unknown candidate %q", cur, nextStep)
			}
		} else {
			nextStep = c.edges[cur]
		}

		inst.CurrentStep = nextStep
		if err := save(run, state); err != nil {
			return state, err
		}
	}
}

// runFanOut runs the fan-out workers concurrently, bounded by the run's
// concurrency limit, then folds every successful result into the shared
// state on this goroutine. The fold is the single accumulation point;
// workers never touch shared state.
func (c *Compiled[S]) runFanOut(ctx context.Context, run RunConfig, fo FanOut[S], state S) (S, error) {
	items := fo.Split(state)
	if len(items) == 0 {
		return state, fmt.Errorf("fan-out produced no work items")
	}

	limit := run.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	workerFn := c.nodes[fo.Worker]
	results := make(chan S, len(items))
	errs := make(chan error, len(items))
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item S) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, err := workerFn(ctx, item)
			if err != nil {
				errs <- err
				return
			}
			results <- out
		}(item)
	}
	wg.Wait()
	close(results)
	close(errs)

	required := len(items)
	if fo.MinResults > 0 {
		required = fo.MinResults
	}
	if len(results) < required {
		var first error
		for err := range errs {
			first = err
			break
		}
		return state, fmt.Errorf("%d of %d workers succeeded (need %d): %w",
			len(results), len(items), required, first)
	}

	for out := range results {
		state = fo.Merge(state, out)
	}
	return state, nil
}

// saveFailure persists a failure checkpoint on a path that is already
// returning an error. The original error stays the caller's error; a
// write failure here is logged so the stale stored status is traceable.
func saveFailure[S any](run RunConfig, state S, debugf func(format string, args ...any)) {
	if err := save(run, state); err != nil {
		debugf("[engine] %s: failure checkpoint not written: %v", run.Instance.ThreadID, err)
	}
}

func save[S any](run RunConfig, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := run.Saver.Save(run.Instance, data); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
