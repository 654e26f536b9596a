package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// ErrUnknownType indicates a workflow type with no registered definition.
var ErrUnknownType = errors.New("unknown workflow type")

// Definition is one registered workflow graph. The session manager
// talks to definitions through this interface; the concrete state type
// stays inside each definition.
type Definition interface {
	// Type returns the workflow type this definition implements.
	Type() models.WorkflowType
	// NodeNames returns the graph's node names in registration order.
	NodeNames() []string
	// HasNode reports whether the graph declares the named node.
	HasNode(name string) bool
	// StepCount returns the estimated total steps, used for progress.
	StepCount() int
	// Start builds the initial state from caller data and executes the
	// graph from its entry node.
	Start(ctx context.Context, run engine.RunConfig, initial map[string]any) error
	// Resume decodes a checkpointed state, merges any new caller input,
	// and continues from the instance's current step.
	Resume(ctx context.Context, run engine.RunConfig, data json.RawMessage, newInput map[string]any) error
}

// def adapts a compiled generic graph to the Definition interface.
type def[S any] struct {
	typ      models.WorkflowType
	compiled *engine.Compiled[S]
	// fromInitial builds the starting state from caller data.
	fromInitial func(initial map[string]any, inst *models.WorkflowInstance) (S, error)
	// mergeInput folds continue-time caller input into a decoded state.
	mergeInput func(s S, input map[string]any) S
}

func (d *def[S]) Type() models.WorkflowType { return d.typ }
func (d *def[S]) NodeNames() []string       { return d.compiled.NodeNames() }
func (d *def[S]) HasNode(name string) bool  { return d.compiled.HasNode(name) }
func (d *def[S]) StepCount() int            { return d.compiled.NodeCount() }

func (d *def[S]) Start(ctx context.Context, run engine.RunConfig, initial map[string]any) error {
	state, err := d.fromInitial(initial, run.Instance)
	if err != nil {
		return fmt.Errorf("build %s state: %w", d.typ, err)
	}
	_, err = d.compiled.Start(ctx, run, state)
	return err
}

func (d *def[S]) Resume(ctx context.Context, run engine.RunConfig, data json.RawMessage, newInput map[string]any) error {
	var state S
	if len(data) > 0 {
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("decode %s state: %w", d.typ, err)
		}
	}
	if d.mergeInput != nil && len(newInput) > 0 {
		state = d.mergeInput(state, newInput)
	}
	_, err := d.compiled.Resume(ctx, run, state)
	return err
}

// Registry holds the built-in workflow definitions. It is constructed
// explicitly with its dependencies and passed where needed; there is no
// package-level instance.
type Registry struct {
	defs  map[models.WorkflowType]Definition
	order []models.WorkflowType
}

// NewRegistry builds the registry with all five definitions.
func NewRegistry(deps Deps) (*Registry, error) {
	r := &Registry{defs: make(map[models.WorkflowType]Definition)}

	builders := []func(Deps) (Definition, error){
		newOrchestration,
		newResearch,
		newPlanning,
		newRefinement,
		newAutomation,
	}
	for _, build := range builders {
		d, err := build(deps)
		if err != nil {
			return nil, fmt.Errorf("build workflow definition: %w", err)
		}
		r.defs[d.Type()] = d
		r.order = append(r.order, d.Type())
	}
	return r, nil
}

// Get returns the definition for a workflow type.
func (r *Registry) Get(t models.WorkflowType) (Definition, error) {
	d, ok := r.defs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return d, nil
}

// Types returns the registered workflow types in registration order.
func (r *Registry) Types() []models.WorkflowType {
	out := make([]models.WorkflowType, len(r.order))
	copy(out, r.order)
	return out
}
