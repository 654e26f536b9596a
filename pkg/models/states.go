package models

// CreatedTask records a task created by the orchestration workflow.
type CreatedTask struct {
	// ID is the identifier returned by the task system.
	ID string `json:"id"`
	// Title is the short task description.
	Title string `json:"title"`
	// Description provides detail about the task.
	Description string `json:"description,omitempty"`
	// Assignee is the resolved user id the task was assigned to.
	Assignee string `json:"assignee,omitempty"`
	// DueDate is the due date expression, if one was given.
	DueDate string `json:"due_date,omitempty"`
	// Priority is the analyzed priority (high, medium, low).
	Priority string `json:"priority,omitempty"`
}

// PriorityAnalysis is the result of the orchestration analysis step.
// Nil until analyze_requests has run.
type PriorityAnalysis struct {
	// Order lists task titles from highest to lowest priority.
	Order []string `json:"order"`
	// Rationale explains the ordering.
	Rationale string `json:"rationale,omitempty"`
}

// OrchestrationState is the workflow payload for task orchestration.
type OrchestrationState struct {
	// TaskRequests are the raw task descriptions supplied by the caller.
	TaskRequests []string `json:"task_requests"`
	// PlannedTasks are the analyzed task specs awaiting creation.
	PlannedTasks []CreatedTask `json:"planned_tasks,omitempty"`
	// CreatedTasks accumulates tasks as they are created.
	CreatedTasks []CreatedTask `json:"created_tasks"`
	// AssignedUsers lists user ids that received assignments.
	AssignedUsers []string `json:"assigned_users"`
	// Dependencies maps task titles to the titles they depend on.
	Dependencies map[string][]string `json:"dependencies,omitempty"`
	// PriorityAnalysis is nil until the analysis step produces it.
	PriorityAnalysis *PriorityAnalysis `json:"priority_analysis,omitempty"`
}

// ResearchState is the workflow payload for research and analysis.
type ResearchState struct {
	// Query is the research question supplied by the caller.
	Query string `json:"research_query"`
	// Sections lists the planned section titles.
	Sections []string `json:"sections"`
	// CompletedSections accumulates per-section findings. Order is not
	// guaranteed; parallel workers finish in any order.
	CompletedSections []SectionResult `json:"completed_sections"`
	// FinalReport is nil-equivalent (empty) until synthesis runs.
	FinalReport string `json:"final_report,omitempty"`
}

// SectionResult is one researched section of a report.
type SectionResult struct {
	// Title is the planned section title.
	Title string `json:"title"`
	// Content is the researched section text.
	Content string `json:"content"`
}

// StakeholderInput is one stakeholder's contribution to a plan.
type StakeholderInput struct {
	// Stakeholder is the name of the contributor.
	Stakeholder string `json:"stakeholder"`
	// Input is the gathered perspective.
	Input string `json:"input"`
}

// PlanningState is the workflow payload for collaborative planning.
type PlanningState struct {
	// Objective is the planning goal supplied by the caller.
	Objective string `json:"planning_objective"`
	// Stakeholders lists the people whose input is gathered.
	Stakeholders []string `json:"stakeholders"`
	// FeedbackRounds accumulates per-stakeholder input.
	FeedbackRounds []StakeholderInput `json:"feedback_rounds"`
	// ConsensusItems lists points of agreement across stakeholders.
	ConsensusItems []string `json:"consensus_items"`
	// FinalPlan is empty until synthesis runs.
	FinalPlan string `json:"final_plan,omitempty"`
}

// Evaluation is one quality assessment of refined content.
type Evaluation struct {
	// QualityScore is the assessed quality on a 1-10 scale.
	QualityScore float64 `json:"quality_score"`
	// MeetsStandards is true when the content needs no further passes.
	MeetsStandards bool `json:"meets_standards"`
	// Feedback describes what to improve on the next pass.
	Feedback string `json:"feedback,omitempty"`
}

// RefinementState is the workflow payload for iterative refinement.
type RefinementState struct {
	// Requirements describe the content to produce.
	Requirements string `json:"requirements"`
	// CurrentContent is the latest draft.
	CurrentContent string `json:"current_content,omitempty"`
	// Iteration counts passes through the refine step. Incremented
	// exactly once per refinement pass.
	Iteration int `json:"iteration"`
	// MaxIterations bounds refine passes; copied from the instance so
	// the evaluation router can terminate the loop.
	MaxIterations int `json:"max_iterations"`
	// LastEvaluation is nil until the first evaluation runs.
	LastEvaluation *Evaluation `json:"last_evaluation,omitempty"`
	// RefinementHistory records the feedback applied each pass.
	RefinementHistory []string `json:"refinement_history,omitempty"`
	// FinalContent is set only at termination.
	FinalContent string `json:"final_content,omitempty"`
}

// PlanStep is one step of a multi-step automation plan.
type PlanStep struct {
	// Name is a short identifier for the step.
	Name string `json:"name"`
	// Action describes what the step does.
	Action string `json:"action"`
}

// StepResult records the outcome of one executed automation step.
type StepResult struct {
	// Step is the name of the executed step.
	Step string `json:"step"`
	// Output is the step's result text.
	Output string `json:"output"`
}

// AutomationState is the workflow payload for multi-step automation.
type AutomationState struct {
	// Request is the automation request supplied by the caller.
	Request string `json:"request"`
	// UserID is notified when the automation completes.
	UserID string `json:"user_id,omitempty"`
	// Plan is the ordered step list, produced once by analysis.
	Plan []PlanStep `json:"execution_plan"`
	// CurrentStepIndex is the next plan index to execute.
	CurrentStepIndex int `json:"current_step_index"`
	// StepResults accumulates results in execution order.
	StepResults []StepResult `json:"step_results"`
	// Summary is set at termination.
	Summary string `json:"summary,omitempty"`
}
