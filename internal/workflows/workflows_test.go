package workflows

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/internal/llm/llmtest"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// fakeSaver keeps the latest checkpoint in memory.
type fakeSaver struct {
	mu    sync.Mutex
	last  models.WorkflowInstance
	data  json.RawMessage
	saves int
}

func (f *fakeSaver) Save(inst *models.WorkflowInstance, data json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.last = *inst
	f.last.CompletedSteps = append([]string(nil), inst.CompletedSteps...)
	f.data = append(json.RawMessage(nil), data...)
	return nil
}

func (f *fakeSaver) Status(threadID string) (models.WorkflowStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.Status, nil
}

func testInstance(typ models.WorkflowType) *models.WorkflowInstance {
	return &models.WorkflowInstance{
		WorkflowID:    "wf-test",
		ThreadID:      "thread-test",
		UserID:        "user-test",
		Type:          typ,
		MaxIterations: 10,
	}
}

func testDeps(svc *llmtest.Service, dir *directory.Memory) Deps {
	return Deps{LLM: svc, Directory: dir}
}

func runConfig(inst *models.WorkflowInstance, saver *fakeSaver) engine.RunConfig {
	return engine.RunConfig{Instance: inst, Saver: saver}
}

func decodeState[S any](t *testing.T, data json.RawMessage) S {
	t.Helper()
	var s S
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("decode checkpointed state: %v", err)
	}
	return s
}

func TestRegistryHasAllDefinitions(t *testing.T) {
	reg, err := NewRegistry(testDeps(llmtest.New(), directory.NewMemory()))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	want := []models.WorkflowType{
		models.TypeTaskOrchestration,
		models.TypeResearchAnalysis,
		models.TypeCollaborativePlanning,
		models.TypeIterativeRefinement,
		models.TypeMultiStepAutomation,
	}
	got := reg.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %d definitions, got %d", len(want), len(got))
	}
	for i, typ := range want {
		if got[i] != typ {
			t.Errorf("position %d: expected %s, got %s", i, typ, got[i])
		}
		def, err := reg.Get(typ)
		if err != nil {
			t.Errorf("Get(%s): %v", typ, err)
			continue
		}
		if def.Type() != typ {
			t.Errorf("definition type mismatch: %s", def.Type())
		}
		if def.StepCount() == 0 {
			t.Errorf("%s has no nodes", typ)
		}
	}

	if _, err := reg.Get(models.WorkflowType("bogus")); err == nil {
		t.Error("expected an error for an unregistered type")
	}
}
