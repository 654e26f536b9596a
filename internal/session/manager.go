// Package session manages workflow instance lifecycles: starting,
// resuming, cancelling, and inspecting runs, with one writer per
// thread id at a time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/internal/workflows"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// ErrNotFound indicates no workflow exists for a thread id.
var ErrNotFound = state.ErrNotFound

// ErrTerminal indicates an operation that needs a live workflow hit
// one that already finished.
var ErrTerminal = errors.New("workflow already in a terminal state")

// DefaultMaxIterations bounds graph loop passes per instance.
const DefaultMaxIterations = 25

// Manager owns workflow lifecycles. All execution for a given thread
// id is serialized through a per-thread mutex; concurrent calls for
// different threads proceed in parallel.
type Manager struct {
	store    state.CheckpointStore
	registry *workflows.Registry

	maxIterations int
	concurrency   int
	debugLog      func(format string, args ...any)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxIterations overrides the per-instance loop bound.
func WithMaxIterations(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

// WithConcurrency bounds fan-out workers per run.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithDebugLog sets an optional debug logging function.
func WithDebugLog(fn func(format string, args ...any)) Option {
	return func(m *Manager) { m.debugLog = fn }
}

// NewManager builds a Manager over a checkpoint store and a workflow
// registry.
func NewManager(store state.CheckpointStore, registry *workflows.Registry, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		locks:         make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// threadLock returns the mutex serializing execution for one thread.
func (m *Manager) threadLock(threadID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[threadID] = lock
	}
	return lock
}

// releaseThreadLock drops a thread's mutex from the map once the
// instance is terminal, so the map does not grow for the life of the
// process. Terminal instances never execute again (ContinueWorkflow
// rejects them), so a late caller getting a fresh mutex is harmless.
func (m *Manager) releaseThreadLock(threadID string) {
	m.mu.Lock()
	delete(m.locks, threadID)
	m.mu.Unlock()
}

// saver adapts the checkpoint store to the engine's saver interface.
type saver struct {
	store state.CheckpointStore
}

func (s saver) Save(inst *models.WorkflowInstance, data json.RawMessage) error {
	return s.store.SaveCheckpoint(&state.Checkpoint{Instance: *inst, Data: data})
}

func (s saver) Status(threadID string) (models.WorkflowStatus, error) {
	cp, err := s.store.GetCheckpoint(threadID)
	if err != nil {
		return "", err
	}
	return cp.Instance.Status, nil
}

// StartWorkflow creates a new instance of the given type and executes
// its graph to completion, failure, or cancellation. The returned
// instance reflects the final persisted state; engine errors other
// than cancellation are returned alongside it.
func (m *Manager) StartWorkflow(ctx context.Context, userID string, typ models.WorkflowType, initial map[string]any) (*models.WorkflowInstance, error) {
	def, err := m.registry.Get(typ)
	if err != nil {
		return nil, err
	}

	inst := &models.WorkflowInstance{
		WorkflowID:    uuid.New().String(),
		ThreadID:      uuid.New().String(),
		UserID:        userID,
		Type:          typ,
		MaxIterations: m.maxIterations,
	}

	lock := m.threadLock(inst.ThreadID)
	lock.Lock()
	defer func() {
		lock.Unlock()
		if inst.Status.Terminal() {
			m.releaseThreadLock(inst.ThreadID)
		}
	}()

	runErr := def.Start(ctx, m.runConfig(inst), initial)
	if errors.Is(runErr, engine.ErrCancelled) {
		return inst, nil
	}
	return inst, runErr
}

// ContinueWorkflow resumes a paused or failed workflow from its last
// checkpoint, optionally folding new caller input into the state.
// Completed and cancelled workflows cannot be continued.
func (m *Manager) ContinueWorkflow(ctx context.Context, threadID string, newInput map[string]any) (*models.WorkflowInstance, error) {
	lock := m.threadLock(threadID)
	lock.Lock()

	cp, err := m.store.GetCheckpoint(threadID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	inst := cp.Instance
	defer func() {
		lock.Unlock()
		if inst.Status.Terminal() {
			m.releaseThreadLock(threadID)
		}
	}()

	switch inst.Status {
	case models.StatusCompleted, models.StatusCancelled:
		return &inst, fmt.Errorf("%w: %s is %s", ErrTerminal, threadID, inst.Status)
	case models.StatusRunning:
		return &inst, fmt.Errorf("workflow %s is already running", threadID)
	}

	def, err := m.registry.Get(inst.Type)
	if err != nil {
		return &inst, err
	}

	runErr := def.Resume(ctx, m.runConfig(&inst), cp.Data, newInput)
	if errors.Is(runErr, engine.ErrCancelled) {
		return &inst, nil
	}
	return &inst, runErr
}

// CancelWorkflow marks a workflow cancelled. A running instance stops
// before its next node. Cancelling an already-terminal workflow is a
// no-op, so retries are safe.
func (m *Manager) CancelWorkflow(threadID string) error {
	cp, err := m.store.GetCheckpoint(threadID)
	if err != nil {
		return err
	}
	if cp.Instance.Status.Terminal() {
		return nil
	}
	return m.store.UpdateStatus(threadID, models.StatusCancelled, "")
}

// Status is a point-in-time view of one workflow instance.
type Status struct {
	Instance models.WorkflowInstance
	// Progress is the share of distinct graph nodes completed, 0-100.
	Progress int
	// TotalEstimatedSteps is the graph's node count, 0 when the type
	// is unknown to the registry.
	TotalEstimatedSteps int
	// CanContinue reports whether ContinueWorkflow would accept the
	// instance: paused and failed runs can be resumed, everything
	// else cannot.
	CanContinue bool
}

// GetWorkflowStatus returns the stored instance plus a progress
// estimate. Progress counts distinct completed nodes against the
// graph's node count, so loop passes do not inflate it.
func (m *Manager) GetWorkflowStatus(threadID string) (*Status, error) {
	cp, err := m.store.GetCheckpoint(threadID)
	if err != nil {
		return nil, err
	}
	return m.status(cp), nil
}

// status derives the exposed status view from a checkpoint.
func (m *Manager) status(cp *state.Checkpoint) *Status {
	inst := cp.Instance
	st := &Status{
		Instance:    inst,
		CanContinue: inst.Status == models.StatusPaused || inst.Status == models.StatusFailed,
	}
	if def, err := m.registry.Get(inst.Type); err == nil {
		st.TotalEstimatedSteps = def.StepCount()
	}

	if inst.Status == models.StatusCompleted {
		st.Progress = 100
		return st
	}
	if st.TotalEstimatedSteps == 0 {
		return st
	}

	distinct := make(map[string]bool)
	for _, step := range inst.CompletedSteps {
		distinct[step] = true
	}
	st.Progress = len(distinct) * 100 / st.TotalEstimatedSteps
	if st.Progress > 100 {
		st.Progress = 100
	}
	return st
}

// GetWorkflowData returns the raw checkpointed state payload for a
// thread id.
func (m *Manager) GetWorkflowData(threadID string) (json.RawMessage, error) {
	cp, err := m.store.GetCheckpoint(threadID)
	if err != nil {
		return nil, err
	}
	return cp.Data, nil
}

// ListWorkflows returns the status view of every workflow for a user,
// newest first.
func (m *Manager) ListWorkflows(userID string) ([]Status, error) {
	cps, err := m.store.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(cps))
	for _, cp := range cps {
		out = append(out, *m.status(cp))
	}
	return out, nil
}

func (m *Manager) runConfig(inst *models.WorkflowInstance) engine.RunConfig {
	return engine.RunConfig{
		Instance:    inst,
		Saver:       saver{store: m.store},
		Concurrency: m.concurrency,
		DebugLog:    m.debugLog,
	}
}
