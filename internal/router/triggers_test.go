package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/conductor/pkg/models"
)

func TestDefaultTriggersCoverAllTypes(t *testing.T) {
	triggers := DefaultTriggers()

	seen := make(map[models.WorkflowType]bool)
	for _, tr := range triggers {
		if !tr.Type.Valid() {
			t.Errorf("invalid workflow type %q in default table", tr.Type)
		}
		if seen[tr.Type] {
			t.Errorf("duplicate trigger for %s", tr.Type)
		}
		seen[tr.Type] = true

		if tr.Threshold <= 0 {
			t.Errorf("trigger %s has non-positive threshold", tr.Type)
		}
		if len(tr.Keywords) == 0 {
			t.Errorf("trigger %s has no keywords", tr.Type)
		}
	}

	if len(seen) != 5 {
		t.Errorf("expected triggers for all 5 workflow types, got %d", len(seen))
	}
	if triggers[0].Type != models.TypeTaskOrchestration {
		t.Errorf("task_orchestration must stay first for tie-breaks, got %s", triggers[0].Type)
	}
}

func TestLoadTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triggers.yaml")
	content := `- workflow_type: research_analysis
  keywords: [investigate, compare]
  phrases: ["deep dive"]
  threshold: 0.6
- workflow_type: multi_step_automation
  keywords: [automate]
  threshold: 0.3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing triggers file: %v", err)
	}

	triggers, err := LoadTriggers(path)
	if err != nil {
		t.Fatalf("LoadTriggers: %v", err)
	}

	if len(triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(triggers))
	}
	if triggers[0].Type != models.TypeResearchAnalysis {
		t.Errorf("expected research_analysis first, got %s", triggers[0].Type)
	}
	if triggers[0].Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %f", triggers[0].Threshold)
	}
	if len(triggers[0].Phrases) != 1 || triggers[0].Phrases[0] != "deep dive" {
		t.Errorf("unexpected phrases: %v", triggers[0].Phrases)
	}
}

func TestLoadTriggersRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"unknown type", "- workflow_type: nonsense\n  keywords: [x]\n  threshold: 0.5\n"},
		{"zero threshold", "- workflow_type: research_analysis\n  keywords: [x]\n  threshold: 0\n"},
		{"empty file", ""},
		{"not yaml", "{{{{"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatalf("writing file: %v", err)
			}
			if _, err := LoadTriggers(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadTriggersMissingFile(t *testing.T) {
	if _, err := LoadTriggers(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
