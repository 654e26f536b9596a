package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/internal/llm"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Collaborative planning node names.
const (
	stepInitializePlanning = "initialize_planning"
	stepGatherInput        = "gather_stakeholder_input"
	stepSynthesizePlan     = "synthesize_plan"
)

// newPlanning builds the collaborative planning definition:
// initialize_planning identifies stakeholders, gather_stakeholder_input
// loops once per stakeholder, and synthesize_plan produces the final
// plan from the gathered rounds.
func newPlanning(deps Deps) (Definition, error) {
	compiled, err := engine.NewGraph[models.PlanningState]().
		AddNode(stepInitializePlanning, initializePlanning(deps)).
		AddNode(stepGatherInput, gatherStakeholderInput(deps)).
		AddNode(stepSynthesizePlan, synthesizePlan(deps)).
		AddEdge(stepInitializePlanning, stepGatherInput).
		AddConditionalEdge(stepGatherInput, routeGatherInput,
			stepGatherInput, stepSynthesizePlan).
		AddEdge(stepSynthesizePlan, engine.END).
		SetEntry(stepInitializePlanning).
		Compile()
	if err != nil {
		return nil, err
	}

	return &def[models.PlanningState]{
		typ:      models.TypeCollaborativePlanning,
		compiled: compiled,
		fromInitial: func(initial map[string]any, _ *models.WorkflowInstance) (models.PlanningState, error) {
			objective := stringValue(initial, "planning_objective")
			if objective == "" {
				var err error
				objective, err = requireInput(initial, "planning")
				if err != nil {
					return models.PlanningState{}, err
				}
			}
			return models.PlanningState{
				Objective:    objective,
				Stakeholders: stringSlice(initial, "stakeholders"),
			}, nil
		},
		mergeInput: func(s models.PlanningState, input map[string]any) models.PlanningState {
			if extra := stringSlice(input, "stakeholders"); len(extra) > 0 {
				s.Stakeholders = append(s.Stakeholders, extra...)
			}
			return s
		},
	}, nil
}

const identifyStakeholdersPrompt = `You are a planning facilitator.
Identify the 2 to 5 stakeholder roles whose input the planning
objective needs. Respond with a JSON array of role names, for example:
["Engineering lead", "Product manager"]
Do not include any text before or after the JSON array.`

// initializePlanning fills in the stakeholder list when the caller did
// not supply one.
func initializePlanning(deps Deps) engine.NodeFunc[models.PlanningState] {
	return func(ctx context.Context, s models.PlanningState) (models.PlanningState, error) {
		if len(s.Stakeholders) > 0 {
			return s, nil
		}

		text, err := deps.complete(ctx, identifyStakeholdersPrompt, s.Objective, 512)
		if err != nil {
			return s, err
		}

		extracted := llm.ExtractJSONArray(text)
		if extracted == "" {
			return s, fmt.Errorf("no stakeholders identified")
		}
		var stakeholders []string
		if err := json.Unmarshal([]byte(extracted), &stakeholders); err != nil {
			return s, fmt.Errorf("parse stakeholders: %w", err)
		}
		if len(stakeholders) == 0 {
			return s, fmt.Errorf("no stakeholders identified")
		}

		s.Stakeholders = stakeholders
		return s, nil
	}
}

const stakeholderPrompt = `You are role-playing a stakeholder in a
planning session. Give that stakeholder's perspective on the objective:
their priorities, concerns, and constraints. Respond with the
perspective text only.`

// gatherStakeholderInput gathers one stakeholder's perspective per
// pass. The stakeholder index is len(FeedbackRounds), so each pass
// consumes exactly one stakeholder and the loop makes progress even
// across resumption.
func gatherStakeholderInput(deps Deps) engine.NodeFunc[models.PlanningState] {
	return func(ctx context.Context, s models.PlanningState) (models.PlanningState, error) {
		idx := len(s.FeedbackRounds)
		if idx >= len(s.Stakeholders) {
			return s, fmt.Errorf("no stakeholder left to consult at round %d", idx)
		}
		name := s.Stakeholders[idx]

		text, err := deps.complete(ctx, stakeholderPrompt,
			fmt.Sprintf("Objective: %s\n\nStakeholder: %s", s.Objective, name), 1024)
		if err != nil {
			return s, fmt.Errorf("gather input from %q: %w", name, err)
		}

		s.FeedbackRounds = append(s.FeedbackRounds, models.StakeholderInput{
			Stakeholder: name,
			Input:       text,
		})
		return s, nil
	}
}

// routeGatherInput loops until every stakeholder has contributed.
func routeGatherInput(s models.PlanningState) string {
	if len(s.FeedbackRounds) < len(s.Stakeholders) {
		return stepGatherInput
	}
	return stepSynthesizePlan
}

const synthesizePlanPrompt = `You are a planning facilitator producing
the final plan. Combine the stakeholder perspectives into a plan that
addresses the objective, and list the points of consensus. Respond with
JSON in this shape:
{"plan": "the plan text", "consensus_items": ["point", "point"]}
Do not include any text before or after the JSON.`

// synthesizePlan folds all gathered rounds into the final plan and the
// consensus list.
func synthesizePlan(deps Deps) engine.NodeFunc[models.PlanningState] {
	return func(ctx context.Context, s models.PlanningState) (models.PlanningState, error) {
		var b strings.Builder
		fmt.Fprintf(&b, "Objective: %s\n", s.Objective)
		for _, round := range s.FeedbackRounds {
			fmt.Fprintf(&b, "\n%s:\n%s\n", round.Stakeholder, round.Input)
		}

		text, err := deps.complete(ctx, synthesizePlanPrompt, b.String(), 4096)
		if err != nil {
			return s, err
		}

		var parsed struct {
			Plan           string   `json:"plan"`
			ConsensusItems []string `json:"consensus_items"`
		}
		extracted := llm.ExtractJSON(text)
		if extracted != "" {
			if err := json.Unmarshal([]byte(extracted), &parsed); err == nil && parsed.Plan != "" {
				s.FinalPlan = parsed.Plan
				s.ConsensusItems = parsed.ConsensusItems
				return s, nil
			}
		}

		// Fall back to the raw text as the plan rather than failing a
		// run that already gathered every perspective.
		s.FinalPlan = text
		return s, nil
	}
}
