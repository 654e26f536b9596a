package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/internal/llm"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Iterative refinement node names.
const (
	stepGenerateContent = "generate_initial_content"
	stepEvaluateContent = "evaluate_content"
	stepRefineContent   = "refine_content"
	stepFinalizeContent = "finalize_content"
)

// qualityThreshold is the evaluation score at which content is
// accepted without further passes.
const qualityThreshold = 8.0

// newRefinement builds the iterative refinement definition: generate a
// draft, evaluate it, and loop through refine_content until the score
// clears the threshold or the iteration cap is hit. Finalization
// always runs, so a capped run still completes with its best draft.
func newRefinement(deps Deps) (Definition, error) {
	compiled, err := engine.NewGraph[models.RefinementState]().
		AddNode(stepGenerateContent, generateContent(deps)).
		AddNode(stepEvaluateContent, evaluateContent(deps)).
		AddNode(stepRefineContent, refineContent(deps)).
		AddNode(stepFinalizeContent, finalizeContent()).
		AddEdge(stepGenerateContent, stepEvaluateContent).
		AddConditionalEdge(stepEvaluateContent, routeEvaluation,
			stepRefineContent, stepFinalizeContent).
		AddEdge(stepRefineContent, stepEvaluateContent).
		AddEdge(stepFinalizeContent, engine.END).
		SetEntry(stepGenerateContent).
		Compile()
	if err != nil {
		return nil, err
	}

	return &def[models.RefinementState]{
		typ:      models.TypeIterativeRefinement,
		compiled: compiled,
		fromInitial: func(initial map[string]any, inst *models.WorkflowInstance) (models.RefinementState, error) {
			reqs := stringValue(initial, "requirements")
			if reqs == "" {
				var err error
				reqs, err = requireInput(initial, "refinement")
				if err != nil {
					return models.RefinementState{}, err
				}
			}
			return models.RefinementState{
				Requirements:  reqs,
				MaxIterations: inst.MaxIterations,
			}, nil
		},
		mergeInput: func(s models.RefinementState, input map[string]any) models.RefinementState {
			if reqs := stringValue(input, "requirements"); reqs != "" {
				s.Requirements = reqs
			}
			return s
		},
	}, nil
}

const generatePrompt = `You are a content writer. Produce a first draft
meeting the given requirements. Respond with the draft text only.`

func generateContent(deps Deps) engine.NodeFunc[models.RefinementState] {
	return func(ctx context.Context, s models.RefinementState) (models.RefinementState, error) {
		text, err := deps.complete(ctx, generatePrompt, s.Requirements, 4096)
		if err != nil {
			return s, err
		}
		s.CurrentContent = text
		return s, nil
	}
}

const evaluatePrompt = `You are a content reviewer. Score the draft
against the requirements on a 1-10 scale and say what to improve.
Respond with JSON in this shape:
{"quality_score": 7.5, "meets_standards": false, "feedback": "what to improve"}
Do not include any text before or after the JSON.`

// evaluateContent scores the current draft. A draft that cannot be
// scored fails the run; the loop cannot route without a score.
func evaluateContent(deps Deps) engine.NodeFunc[models.RefinementState] {
	return func(ctx context.Context, s models.RefinementState) (models.RefinementState, error) {
		text, err := deps.complete(ctx, evaluatePrompt,
			fmt.Sprintf("Requirements:\n%s\n\nDraft:\n%s", s.Requirements, s.CurrentContent), 1024)
		if err != nil {
			return s, err
		}

		extracted := llm.ExtractJSON(text)
		if extracted == "" {
			return s, fmt.Errorf("evaluation produced no score")
		}
		var eval models.Evaluation
		if err := json.Unmarshal([]byte(extracted), &eval); err != nil {
			return s, fmt.Errorf("parse evaluation: %w", err)
		}

		s.LastEvaluation = &eval
		return s, nil
	}
}

// routeEvaluation terminates the loop when quality clears the
// threshold, the reviewer accepts the draft, or the iteration cap is
// reached. The cap check makes termination independent of what the
// model scores.
func routeEvaluation(s models.RefinementState) string {
	if s.LastEvaluation != nil {
		if s.LastEvaluation.QualityScore >= qualityThreshold || s.LastEvaluation.MeetsStandards {
			return stepFinalizeContent
		}
	}
	if s.MaxIterations > 0 && s.Iteration >= s.MaxIterations {
		return stepFinalizeContent
	}
	return stepRefineContent
}

const refinePrompt = `You are a content writer revising a draft.
Apply the reviewer's feedback to the draft. Respond with the revised
draft text only.`

// refineContent applies the last evaluation's feedback and increments
// the pass counter. Iteration moves here and nowhere else.
func refineContent(deps Deps) engine.NodeFunc[models.RefinementState] {
	return func(ctx context.Context, s models.RefinementState) (models.RefinementState, error) {
		feedback := ""
		if s.LastEvaluation != nil {
			feedback = s.LastEvaluation.Feedback
		}

		text, err := deps.complete(ctx, refinePrompt,
			fmt.Sprintf("Requirements:\n%s\n\nDraft:\n%s\n\nFeedback:\n%s",
				s.Requirements, s.CurrentContent, feedback), 4096)
		if err != nil {
			return s, err
		}

		s.CurrentContent = text
		s.Iteration++
		if feedback != "" {
			s.RefinementHistory = append(s.RefinementHistory, feedback)
		}
		return s, nil
	}
}

// finalizeContent promotes the current draft to the final result.
func finalizeContent() engine.NodeFunc[models.RefinementState] {
	return func(_ context.Context, s models.RefinementState) (models.RefinementState, error) {
		if s.CurrentContent == "" {
			return s, fmt.Errorf("no content to finalize")
		}
		s.FinalContent = s.CurrentContent
		return s, nil
	}
}
