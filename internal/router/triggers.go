// Package router decides whether a classified request starts a
// workflow, and which type, or falls back to a specialist responder.
package router

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// Trigger is a static rule mapping free text to a workflow type.
// Triggers are read-only configuration loaded at process start.
type Trigger struct {
	// Type is the workflow started when this trigger wins.
	Type models.WorkflowType `yaml:"workflow_type"`
	// Keywords are single words scored 0.3 each when present.
	Keywords []string `yaml:"keywords"`
	// Phrases are multi-word patterns scored 0.4 each when present.
	Phrases []string `yaml:"phrases"`
	// Threshold is the minimum score for this trigger to qualify.
	Threshold float64 `yaml:"threshold"`
}

// DefaultTriggers returns the built-in trigger table. Slice order is
// the tie-break: when two triggers score equally, the earlier one
// wins. Do not reorder.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			Type: models.TypeTaskOrchestration,
			Keywords: []string{
				"project", "plan", "organize", "tasks", "assign",
				"coordinate", "delegate", "milestones",
			},
			Phrases: []string{
				"project plan", "break down", "create tasks",
				"set up tasks", "assign work",
			},
			Threshold: 0.5,
		},
		{
			Type: models.TypeResearchAnalysis,
			Keywords: []string{
				"research", "analyze", "investigate", "compare",
				"study", "evaluate", "benchmark",
			},
			Phrases: []string{
				"deep dive", "find out about", "look into",
				"pros and cons", "market research",
			},
			Threshold: 0.5,
		},
		{
			Type: models.TypeCollaborativePlanning,
			Keywords: []string{
				"stakeholders", "consensus", "alignment", "roadmap",
				"collaborate", "workshop",
			},
			Phrases: []string{
				"planning session", "get input from", "align with",
				"gather feedback", "team planning",
			},
			Threshold: 0.5,
		},
		{
			Type: models.TypeIterativeRefinement,
			Keywords: []string{
				"draft", "refine", "improve", "polish", "revise",
				"iterate", "rewrite",
			},
			Phrases: []string{
				"improve the", "polish the", "another pass",
				"refine until", "make it better",
			},
			Threshold: 0.5,
		},
		{
			Type: models.TypeMultiStepAutomation,
			Keywords: []string{
				"automate", "automation", "workflow", "pipeline",
				"recurring", "sequence",
			},
			Phrases: []string{
				"automate the", "every time", "set up a workflow",
				"step by step", "in order",
			},
			Threshold: 0.5,
		},
	}
}

// LoadTriggers reads a trigger table from a YAML file. The file
// replaces the built-in table wholesale; order in the file is the
// tie-break order.
func LoadTriggers(path string) ([]Trigger, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read triggers file: %w", err)
	}

	var triggers []Trigger
	if err := yaml.Unmarshal(raw, &triggers); err != nil {
		return nil, fmt.Errorf("parse triggers file: %w", err)
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("triggers file %s defines no triggers", path)
	}
	for i, t := range triggers {
		if !t.Type.Valid() {
			return nil, fmt.Errorf("trigger %d: unknown workflow type %q", i, t.Type)
		}
		if t.Threshold <= 0 {
			return nil, fmt.Errorf("trigger %d (%s): threshold must be positive", i, t.Type)
		}
	}
	return triggers, nil
}
