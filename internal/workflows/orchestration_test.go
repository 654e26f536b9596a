package workflows

import (
	"context"
	"strings"
	"testing"

	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/llm/llmtest"
	"github.com/ShayCichocki/conductor/pkg/models"
)

const orchestrationPlanJSON = `{
	"tasks": [
		{"title": "Design schema", "description": "Model the data", "assignee": "Dana", "priority": "high"},
		{"title": "Build API", "description": "Implement endpoints", "assignee": "Dana", "priority": "medium"},
		{"title": "Write docs", "description": "Document the API", "assignee": "Ghost", "priority": "low"}
	],
	"dependencies": {"Build API": ["Design schema"], "Write docs": ["Build API"]},
	"priority_order": ["Build API", "Design schema", "Write docs"],
	"rationale": "API depends on schema"
}`

func TestOrchestrationCreatesTasksInDependencyOrder(t *testing.T) {
	svc := llmtest.New(llmtest.Text(orchestrationPlanJSON))
	dir := directory.NewMemory()
	dir.AddUser("Dana", "U100")

	def, err := newOrchestration(testDeps(svc, dir))
	if err != nil {
		t.Fatalf("newOrchestration: %v", err)
	}

	inst := testInstance(models.TypeTaskOrchestration)
	saver := &fakeSaver{}
	initial := map[string]any{"task_requests": []string{"Ship the new API"}}

	if err := def.Start(context.Background(), runConfig(inst, saver), initial); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if inst.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", inst.Status, inst.LastError)
	}

	created := dir.Tasks()
	if len(created) != 3 {
		t.Fatalf("expected 3 created tasks, got %d", len(created))
	}
	// Dependencies come before dependents regardless of priority order.
	if created[0].Title != "Design schema" || created[1].Title != "Build API" || created[2].Title != "Write docs" {
		titles := []string{created[0].Title, created[1].Title, created[2].Title}
		t.Errorf("unexpected creation order: %v", titles)
	}

	final := decodeState[models.OrchestrationState](t, saver.data)
	if len(final.CreatedTasks) != 3 {
		t.Errorf("expected 3 tasks in state, got %d", len(final.CreatedTasks))
	}
	// Dana resolves; Ghost does not and stays unassigned.
	if len(final.AssignedUsers) != 1 || final.AssignedUsers[0] != "U100" {
		t.Errorf("expected only U100 assigned, got %v", final.AssignedUsers)
	}

	notes := dir.Notifications()
	if len(notes) != 2 {
		t.Fatalf("expected 2 notifications for Dana's tasks, got %d", len(notes))
	}
	for _, n := range notes {
		if n.UserID != "U100" {
			t.Errorf("notification sent to %s, expected U100", n.UserID)
		}
		if !strings.Contains(n.Message, "assigned task") {
			t.Errorf("unexpected notification message: %q", n.Message)
		}
	}
}

func TestOrchestrationFailsWithoutPriorityData(t *testing.T) {
	svc := llmtest.New(llmtest.Text("I could not produce a plan, sorry."))
	def, err := newOrchestration(testDeps(svc, directory.NewMemory()))
	if err != nil {
		t.Fatalf("newOrchestration: %v", err)
	}

	inst := testInstance(models.TypeTaskOrchestration)
	err = def.Start(context.Background(), runConfig(inst, &fakeSaver{}), map[string]any{"input": "do things"})
	if err == nil {
		t.Fatal("expected failure when analysis yields no priority data")
	}
	if inst.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", inst.Status)
	}
	if !strings.Contains(inst.LastError, "no usable priority data") {
		t.Errorf("unexpected last error: %q", inst.LastError)
	}
}

func TestOrchestrationCycleFallsBackToPriorityOrder(t *testing.T) {
	cyclic := `{
		"tasks": [
			{"title": "A", "priority": "high"},
			{"title": "B", "priority": "high"}
		],
		"dependencies": {"A": ["B"], "B": ["A"]},
		"priority_order": ["B", "A"],
		"rationale": "cyclic"
	}`
	svc := llmtest.New(llmtest.Text(cyclic))
	dir := directory.NewMemory()

	def, err := newOrchestration(testDeps(svc, dir))
	if err != nil {
		t.Fatalf("newOrchestration: %v", err)
	}

	inst := testInstance(models.TypeTaskOrchestration)
	if err := def.Start(context.Background(), runConfig(inst, &fakeSaver{}), map[string]any{"input": "do things"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	created := dir.Tasks()
	if len(created) != 2 {
		t.Fatalf("expected 2 created tasks, got %d", len(created))
	}
	if created[0].Title != "B" || created[1].Title != "A" {
		t.Errorf("cycle should fall back to priority order B, A; got %s, %s",
			created[0].Title, created[1].Title)
	}
}

func TestOrchestrationRequiresInput(t *testing.T) {
	def, err := newOrchestration(testDeps(llmtest.New(), directory.NewMemory()))
	if err != nil {
		t.Fatalf("newOrchestration: %v", err)
	}

	err = def.Start(context.Background(), runConfig(testInstance(models.TypeTaskOrchestration), &fakeSaver{}), nil)
	if err == nil {
		t.Fatal("expected an error for missing input")
	}
}
