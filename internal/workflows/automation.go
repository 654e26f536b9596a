package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/internal/llm"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Multi-step automation node names.
const (
	stepAnalyzeRequest     = "analyze_request"
	stepExecuteStep        = "execute_step"
	stepCompleteAutomation = "complete_automation"
)

// newAutomation builds the multi-step automation definition: analyze
// the request into an ordered plan, execute one plan step per pass,
// then summarize and notify the requester.
func newAutomation(deps Deps) (Definition, error) {
	compiled, err := engine.NewGraph[models.AutomationState]().
		AddNode(stepAnalyzeRequest, analyzeRequest(deps)).
		AddNode(stepExecuteStep, executeStep(deps)).
		AddNode(stepCompleteAutomation, completeAutomation(deps)).
		AddEdge(stepAnalyzeRequest, stepExecuteStep).
		AddConditionalEdge(stepExecuteStep, routeExecuteStep,
			stepExecuteStep, stepCompleteAutomation).
		AddEdge(stepCompleteAutomation, engine.END).
		SetEntry(stepAnalyzeRequest).
		Compile()
	if err != nil {
		return nil, err
	}

	return &def[models.AutomationState]{
		typ:      models.TypeMultiStepAutomation,
		compiled: compiled,
		fromInitial: func(initial map[string]any, inst *models.WorkflowInstance) (models.AutomationState, error) {
			request := stringValue(initial, "automation_request")
			if request == "" {
				var err error
				request, err = requireInput(initial, "automation")
				if err != nil {
					return models.AutomationState{}, err
				}
			}
			return models.AutomationState{
				Request: request,
				UserID:  inst.UserID,
			}, nil
		},
		mergeInput: func(s models.AutomationState, input map[string]any) models.AutomationState {
			return s
		},
	}, nil
}

const analyzeRequestPrompt = `You are an automation planner. Break the
request into an ordered list of concrete steps. Respond with a JSON
array in this shape:
[{"name": "short_step_name", "action": "what the step does"}]
Do not include any text before or after the JSON array.`

// analyzeRequest produces the ordered execution plan. The plan is
// fixed after this node; execution never re-plans.
func analyzeRequest(deps Deps) engine.NodeFunc[models.AutomationState] {
	return func(ctx context.Context, s models.AutomationState) (models.AutomationState, error) {
		text, err := deps.complete(ctx, analyzeRequestPrompt, s.Request, 2048)
		if err != nil {
			return s, err
		}

		extracted := llm.ExtractJSONArray(text)
		if extracted == "" {
			return s, fmt.Errorf("automation plan has no steps")
		}
		var plan []models.PlanStep
		if err := json.Unmarshal([]byte(extracted), &plan); err != nil {
			return s, fmt.Errorf("parse automation plan: %w", err)
		}
		if len(plan) == 0 {
			return s, fmt.Errorf("automation plan has no steps")
		}

		s.Plan = plan
		s.CurrentStepIndex = 0
		return s, nil
	}
}

const executeStepPrompt = `You are an automation executor. Carry out
the given step of the plan and report the result. Earlier step results
are provided for context. Respond with the result text only.`

// executeStep runs exactly one plan step and advances the index, so a
// resumed run picks up at the first unexecuted step.
func executeStep(deps Deps) engine.NodeFunc[models.AutomationState] {
	return func(ctx context.Context, s models.AutomationState) (models.AutomationState, error) {
		if s.CurrentStepIndex >= len(s.Plan) {
			return s, fmt.Errorf("no plan step left at index %d", s.CurrentStepIndex)
		}
		step := s.Plan[s.CurrentStepIndex]

		var b strings.Builder
		fmt.Fprintf(&b, "Request: %s\n", s.Request)
		for _, prior := range s.StepResults {
			fmt.Fprintf(&b, "\nCompleted %s:\n%s\n", prior.Step, prior.Output)
		}
		fmt.Fprintf(&b, "\nStep to execute: %s\nAction: %s\n", step.Name, step.Action)

		text, err := deps.complete(ctx, executeStepPrompt, b.String(), 2048)
		if err != nil {
			return s, fmt.Errorf("execute step %q: %w", step.Name, err)
		}

		s.StepResults = append(s.StepResults, models.StepResult{
			Step:   step.Name,
			Output: text,
		})
		s.CurrentStepIndex++
		return s, nil
	}
}

// routeExecuteStep loops until every plan step has run.
func routeExecuteStep(s models.AutomationState) string {
	if s.CurrentStepIndex < len(s.Plan) {
		return stepExecuteStep
	}
	return stepCompleteAutomation
}

const summarizePrompt = `You are an automation executor reporting
completion. Summarize what was done across all steps in a short
paragraph. Respond with the summary text only.`

// completeAutomation summarizes the run and notifies the requester.
// Notification failure is logged, not fatal; the work is already done.
func completeAutomation(deps Deps) engine.NodeFunc[models.AutomationState] {
	return func(ctx context.Context, s models.AutomationState) (models.AutomationState, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "Request: %s\n", s.Request)
		for _, result := range s.StepResults {
			fmt.Fprintf(&b, "\n%s:\n%s\n", result.Step, result.Output)
		}

		text, err := deps.complete(ctx, summarizePrompt, b.String(), 1024)
		if err != nil {
			return s, err
		}
		s.Summary = text

		if s.UserID != "" && deps.Directory != nil {
			msg := fmt.Sprintf("Automation complete: %s", s.Summary)
			if err := deps.Directory.SendNotification(ctx, s.UserID, msg); err != nil {
				log.Printf("automation: notify %s: %v", s.UserID, err)
			}
		}
		return s, nil
	}
}
