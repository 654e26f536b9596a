// Package dispatch ties classification, routing, and execution
// together: one ProcessRequest call classifies the input, decides
// between a workflow and a direct specialist response, and runs
// whichever it picked.
package dispatch

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/conductor/internal/classify"
	"github.com/ShayCichocki/conductor/internal/responder"
	"github.com/ShayCichocki/conductor/internal/router"
	"github.com/ShayCichocki/conductor/internal/session"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Response types returned to the caller.
const (
	ResponseSpecialist = "specialist"
	ResponseWorkflow   = "workflow_initiated"
)

// Request is one user request to process.
type Request struct {
	// Input is the raw user text.
	Input string
	// User identifies and describes the requester.
	User responder.RequestContext
	// ForceWorkflow bypasses trigger evaluation when non-nil.
	ForceWorkflow *models.WorkflowType
	// History carries prior exchanges for specialist responses.
	History responder.History
}

// Result is the outcome of processing one request.
type Result struct {
	// ResponseType is ResponseSpecialist or ResponseWorkflow.
	ResponseType string
	// Text is the specialist reply; empty for workflow responses.
	Text string
	// Intent is the classified intent the decision was based on.
	Intent models.IntentAnalysis
	// Decision records why the router did or did not pick a workflow.
	Decision router.Decision
	// Instance is the started workflow, nil for specialist responses.
	Instance *models.WorkflowInstance
}

// Dispatcher routes requests to workflows or specialist responders.
type Dispatcher struct {
	classifier *classify.Classifier
	evaluator  *router.Evaluator
	sessions   *session.Manager
	pool       *responder.Pool
}

// NewDispatcher wires a dispatcher from its four collaborators.
func NewDispatcher(c *classify.Classifier, e *router.Evaluator, m *session.Manager, p *responder.Pool) *Dispatcher {
	return &Dispatcher{classifier: c, evaluator: e, sessions: m, pool: p}
}

// ProcessRequest classifies the input, evaluates workflow triggers,
// and either starts the matched workflow or produces a direct
// specialist response. Classification never fails the request; an
// unclassifiable input falls back to a conversational response.
func (d *Dispatcher) ProcessRequest(ctx context.Context, req Request) (*Result, error) {
	if req.Input == "" {
		return nil, fmt.Errorf("empty input")
	}

	intent := d.classifier.Classify(ctx, req.Input, classify.UserContext{
		Name:    req.User.UserName,
		Role:    req.User.Role,
		Team:    req.User.Team,
		Company: req.User.CompanyID,
	})
	decision := d.evaluator.Evaluate(req.Input, intent, req.ForceWorkflow)

	result := &Result{Intent: intent, Decision: decision}

	if decision.Trigger {
		inst, err := d.sessions.StartWorkflow(ctx, req.User.UserID, decision.Type, initialData(decision.Type, req.Input))
		if err != nil {
			return result, fmt.Errorf("start %s workflow: %w", decision.Type, err)
		}
		result.ResponseType = ResponseWorkflow
		result.Instance = inst
		return result, nil
	}

	kind := responder.ForIntent(intent.PrimaryIntent)
	text, err := d.pool.Respond(ctx, kind, req.Input, req.User, req.History)
	if err != nil {
		return result, fmt.Errorf("%s responder: %w", kind, err)
	}
	result.ResponseType = ResponseSpecialist
	result.Text = text
	return result, nil
}

// initialData shapes the raw input into the initial payload each
// workflow type expects.
func initialData(typ models.WorkflowType, input string) map[string]any {
	switch typ {
	case models.TypeResearchAnalysis:
		return map[string]any{"research_query": input}
	case models.TypeCollaborativePlanning:
		return map[string]any{"planning_objective": input}
	case models.TypeIterativeRefinement:
		return map[string]any{"requirements": input}
	case models.TypeMultiStepAutomation:
		return map[string]any{"automation_request": input}
	default:
		return map[string]any{"input": input}
	}
}
