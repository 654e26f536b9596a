// Package models defines the shared data model for Conductor:
// intent analysis records, workflow instances, and the per-type
// workflow state payloads.
package models

// PrimaryIntent is the classified purpose of a user request.
type PrimaryIntent string

const (
	// IntentTaskManagement covers creating, assigning, and tracking tasks.
	IntentTaskManagement PrimaryIntent = "task_management"
	// IntentConversation covers general chat with no actionable request.
	IntentConversation PrimaryIntent = "conversation"
	// IntentInformationRetrieval covers lookups and research questions.
	IntentInformationRetrieval PrimaryIntent = "information_retrieval"
	// IntentAnalysisRequest covers requests to analyze data or documents.
	IntentAnalysisRequest PrimaryIntent = "analysis"
	// IntentWorkflowAutomation covers multi-step automation requests.
	IntentWorkflowAutomation PrimaryIntent = "workflow_automation"
	// IntentTeamCoordination covers scheduling and team communication.
	IntentTeamCoordination PrimaryIntent = "team_coordination"
	// IntentReporting covers status summaries and report generation.
	IntentReporting PrimaryIntent = "reporting"
)

// Valid returns true if the intent is a known value.
func (i PrimaryIntent) Valid() bool {
	switch i {
	case IntentTaskManagement, IntentConversation, IntentInformationRetrieval,
		IntentAnalysisRequest, IntentWorkflowAutomation, IntentTeamCoordination,
		IntentReporting:
		return true
	default:
		return false
	}
}

// Complexity estimates how involved fulfilling a request will be.
type Complexity string

const (
	// ComplexityLow indicates a single-step request.
	ComplexityLow Complexity = "low"
	// ComplexityMedium indicates a request needing a few coordinated steps.
	ComplexityMedium Complexity = "medium"
	// ComplexityHigh indicates a request needing many coordinated steps.
	ComplexityHigh Complexity = "high"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	default:
		return false
	}
}

// Entities holds named entities extracted from a user request.
type Entities struct {
	// People are names of people mentioned in the request.
	People []string `json:"people"`
	// Dates are date or deadline expressions mentioned in the request.
	Dates []string `json:"dates"`
	// Tasks are task-like items mentioned in the request.
	Tasks []string `json:"tasks"`
	// Projects are project names mentioned in the request.
	Projects []string `json:"projects"`
}

// IntentAnalysis is the structured result of classifying a user request.
// It is produced once per request and never persisted.
type IntentAnalysis struct {
	// PrimaryIntent is the dominant classified intent.
	PrimaryIntent PrimaryIntent `json:"primary_intent"`
	// Confidence is the classifier's confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// Entities are the named entities found in the request.
	Entities Entities `json:"entities"`
	// Complexity estimates how involved the request is.
	Complexity Complexity `json:"complexity"`
	// EstimatedSteps is the predicted number of steps to fulfill
	// the request, always at least 1.
	EstimatedSteps int `json:"estimated_steps"`
}
