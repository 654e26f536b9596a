package workflows

import (
	"context"
	"testing"

	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/llm/llmtest"
	"github.com/ShayCichocki/conductor/pkg/models"
)

func TestPlanningGathersEveryStakeholderOnce(t *testing.T) {
	svc := llmtest.New(
		llmtest.Text("Engineering wants stability."),
		llmtest.Text("Product wants speed."),
		llmtest.Text(`{"plan": "Ship in two phases.", "consensus_items": ["phased rollout"]}`),
	)

	def, err := newPlanning(testDeps(svc, directory.NewMemory()))
	if err != nil {
		t.Fatalf("newPlanning: %v", err)
	}

	inst := testInstance(models.TypeCollaborativePlanning)
	saver := &fakeSaver{}
	initial := map[string]any{
		"planning_objective": "Q3 release plan",
		"stakeholders":       []string{"Engineering lead", "Product manager"},
	}

	if err := def.Start(context.Background(), runConfig(inst, saver), initial); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inst.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", inst.Status, inst.LastError)
	}

	final := decodeState[models.PlanningState](t, saver.data)
	if len(final.FeedbackRounds) != 2 {
		t.Fatalf("expected 2 feedback rounds, got %d", len(final.FeedbackRounds))
	}
	if final.FeedbackRounds[0].Stakeholder != "Engineering lead" ||
		final.FeedbackRounds[1].Stakeholder != "Product manager" {
		t.Errorf("stakeholders consulted out of order: %+v", final.FeedbackRounds)
	}
	if final.FinalPlan != "Ship in two phases." {
		t.Errorf("unexpected final plan: %q", final.FinalPlan)
	}
	if len(final.ConsensusItems) != 1 || final.ConsensusItems[0] != "phased rollout" {
		t.Errorf("unexpected consensus items: %v", final.ConsensusItems)
	}

	// No stakeholder identification call: the caller supplied the list.
	if svc.CallCount() != 3 {
		t.Errorf("expected 3 completion calls, got %d", svc.CallCount())
	}
}

func TestPlanningIdentifiesStakeholdersWhenMissing(t *testing.T) {
	svc := llmtest.New(
		llmtest.Text(`["Security lead", "Finance partner"]`),
		llmtest.Text("Security perspective."),
		llmtest.Text("Finance perspective."),
		llmtest.Text(`{"plan": "Budget first, then harden.", "consensus_items": []}`),
	)

	def, err := newPlanning(testDeps(svc, directory.NewMemory()))
	if err != nil {
		t.Fatalf("newPlanning: %v", err)
	}

	inst := testInstance(models.TypeCollaborativePlanning)
	saver := &fakeSaver{}
	if err := def.Start(context.Background(), runConfig(inst, saver), map[string]any{"planning_objective": "security budget"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := decodeState[models.PlanningState](t, saver.data)
	if len(final.Stakeholders) != 2 {
		t.Errorf("expected 2 identified stakeholders, got %v", final.Stakeholders)
	}
	if len(final.FeedbackRounds) != 2 {
		t.Errorf("expected 2 feedback rounds, got %d", len(final.FeedbackRounds))
	}
	if final.FinalPlan == "" {
		t.Error("expected a final plan")
	}
}

func TestPlanningFallsBackToRawPlanText(t *testing.T) {
	svc := llmtest.New(
		llmtest.Text("A perspective."),
		llmtest.Text("Here is the plan in plain prose, no JSON."),
	)

	def, err := newPlanning(testDeps(svc, directory.NewMemory()))
	if err != nil {
		t.Fatalf("newPlanning: %v", err)
	}

	inst := testInstance(models.TypeCollaborativePlanning)
	saver := &fakeSaver{}
	initial := map[string]any{
		"planning_objective": "anything",
		"stakeholders":       []string{"Only stakeholder"},
	}
	if err := def.Start(context.Background(), runConfig(inst, saver), initial); err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := decodeState[models.PlanningState](t, saver.data)
	if final.FinalPlan != "Here is the plan in plain prose, no JSON." {
		t.Errorf("expected raw text fallback, got %q", final.FinalPlan)
	}
}

func TestRouteGatherInput(t *testing.T) {
	looping := models.PlanningState{
		Stakeholders:   []string{"a", "b"},
		FeedbackRounds: []models.StakeholderInput{{Stakeholder: "a"}},
	}
	if got := routeGatherInput(looping); got != stepGatherInput {
		t.Errorf("expected another gather pass, got %s", got)
	}

	done := models.PlanningState{
		Stakeholders: []string{"a"},
		FeedbackRounds: []models.StakeholderInput{
			{Stakeholder: "a"},
		},
	}
	if got := routeGatherInput(done); got != stepSynthesizePlan {
		t.Errorf("expected synthesis, got %s", got)
	}
}
