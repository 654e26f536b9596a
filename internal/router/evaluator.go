package router

import (
	"strings"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// Scoring weights. Tuned empirically in the original system; scores are
// not normalized and may exceed 1.0.
const (
	keywordWeight    = 0.3
	phraseWeight     = 0.4
	complexityBonus  = 0.2
	entityBonus      = 0.1
	forcedConfidence = 1.0
)

// Decision reasons.
const (
	ReasonForced    = "forced"
	ReasonTriggered = "workflow_trigger_matched"
	ReasonNoTrigger = "no_workflow_trigger_detected"
)

// Decision is the routing outcome for one request.
type Decision struct {
	// Trigger is true when a workflow should be started.
	Trigger bool
	// Type is the workflow to start when Trigger is true.
	Type models.WorkflowType
	// Confidence is the winning trigger's score (1.0 when forced).
	Confidence float64
	// Reason explains the decision.
	Reason string
}

// Evaluator scores requests against a fixed trigger table.
// Evaluate is pure: identical inputs always produce identical
// decisions.
type Evaluator struct {
	triggers []Trigger
}

// NewEvaluator creates an evaluator over the given trigger table.
// Passing nil uses the built-in defaults.
func NewEvaluator(triggers []Trigger) *Evaluator {
	if triggers == nil {
		triggers = DefaultTriggers()
	}
	return &Evaluator{triggers: triggers}
}

// Triggers returns the evaluator's trigger table.
func (e *Evaluator) Triggers() []Trigger {
	return e.triggers
}

// Evaluate scores the input against every trigger and returns the
// routing decision. A forced type short-circuits scoring entirely.
func (e *Evaluator) Evaluate(input string, intent models.IntentAnalysis, forced *models.WorkflowType) Decision {
	if forced != nil {
		return Decision{
			Trigger:    true,
			Type:       *forced,
			Confidence: forcedConfidence,
			Reason:     ReasonForced,
		}
	}

	lower := strings.ToLower(input)

	var best *Trigger
	var bestScore float64
	for i := range e.triggers {
		t := &e.triggers[i]
		score := scoreTrigger(t, lower, intent)
		if score < t.Threshold {
			continue
		}
		// Strictly greater: ties keep the first trigger in table order.
		if best == nil || score > bestScore {
			best = t
			bestScore = score
		}
	}

	if best == nil {
		return Decision{Reason: ReasonNoTrigger}
	}
	return Decision{
		Trigger:    true,
		Type:       best.Type,
		Confidence: bestScore,
		Reason:     ReasonTriggered,
	}
}

// scoreTrigger computes one trigger's score for the lowercased input.
func scoreTrigger(t *Trigger, lower string, intent models.IntentAnalysis) float64 {
	var score float64

	for _, kw := range t.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			score += keywordWeight
		}
	}
	for _, ph := range t.Phrases {
		if strings.Contains(lower, strings.ToLower(ph)) {
			score += phraseWeight
		}
	}

	if (intent.Complexity == models.ComplexityMedium || intent.Complexity == models.ComplexityHigh) &&
		intent.EstimatedSteps > 3 {
		score += complexityBonus
	}

	if len(intent.Entities.Tasks) > 1 || len(intent.Entities.People) > 2 {
		score += entityBonus
	}

	return score
}
