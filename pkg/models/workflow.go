package models

import "time"

// WorkflowType identifies one of the built-in workflow definitions.
type WorkflowType string

const (
	// TypeTaskOrchestration analyzes task requests, creates tasks, and assigns them.
	TypeTaskOrchestration WorkflowType = "task_orchestration"
	// TypeResearchAnalysis plans research sections, researches them in
	// parallel, and synthesizes a report.
	TypeResearchAnalysis WorkflowType = "research_analysis"
	// TypeCollaborativePlanning gathers stakeholder input and builds a plan.
	TypeCollaborativePlanning WorkflowType = "collaborative_planning"
	// TypeIterativeRefinement drafts content and refines it until it meets
	// a quality bar or runs out of iterations.
	TypeIterativeRefinement WorkflowType = "iterative_refinement"
	// TypeMultiStepAutomation plans an ordered step list and executes it.
	TypeMultiStepAutomation WorkflowType = "multi_step_automation"
)

// Valid returns true if the workflow type is a known value.
func (t WorkflowType) Valid() bool {
	switch t {
	case TypeTaskOrchestration, TypeResearchAnalysis, TypeCollaborativePlanning,
		TypeIterativeRefinement, TypeMultiStepAutomation:
		return true
	default:
		return false
	}
}

// WorkflowStatus is the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	// StatusRunning indicates the workflow is executing.
	StatusRunning WorkflowStatus = "running"
	// StatusCompleted indicates the workflow reached END successfully.
	StatusCompleted WorkflowStatus = "completed"
	// StatusFailed indicates a node failed or the runaway bound was hit.
	StatusFailed WorkflowStatus = "failed"
	// StatusCancelled indicates the workflow was cancelled by the caller.
	StatusCancelled WorkflowStatus = "cancelled"
	// StatusPaused indicates the workflow is waiting for caller input.
	StatusPaused WorkflowStatus = "paused"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed, StatusCancelled, StatusPaused:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed out of
// this status. Completed, failed, and cancelled instances stay that way.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowInstance is the engine-facing record of one running workflow.
// It is created by StartWorkflow and updated after every node.
type WorkflowInstance struct {
	// WorkflowID is the unique identifier for this instance.
	WorkflowID string `json:"workflow_id"`
	// ThreadID is the stable key for checkpoint lookup. One thread per
	// instance in this design.
	ThreadID string `json:"thread_id"`
	// UserID is the caller who started the workflow.
	UserID string `json:"user_id,omitempty"`
	// Type is the workflow definition this instance runs.
	Type WorkflowType `json:"workflow_type"`
	// Status is the current lifecycle state.
	Status WorkflowStatus `json:"status"`
	// CurrentStep is the name of the node to run next (or the node that
	// was running when the instance stopped).
	CurrentStep string `json:"current_step"`
	// CompletedSteps lists node names in completion order.
	CompletedSteps []string `json:"completed_steps"`
	// ErrorCount is the number of node failures recorded on this instance.
	ErrorCount int `json:"error_count"`
	// MaxIterations bounds cyclic graphs; see engine runaway handling.
	MaxIterations int `json:"max_iterations"`
	// LastError holds the most recent node error message, if any.
	LastError string `json:"last_error,omitempty"`
	// CreatedAt is when the instance was started.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the instance was last checkpointed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ShortID returns the first eight characters of the workflow id for
// display purposes.
func (w *WorkflowInstance) ShortID() string {
	if len(w.WorkflowID) > 8 {
		return w.WorkflowID[:8]
	}
	return w.WorkflowID
}
