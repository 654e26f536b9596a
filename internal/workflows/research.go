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

// Research and analysis node names.
const (
	stepPlanResearch       = "plan_research"
	stepResearchSection    = "research_section"
	stepSynthesizeResearch = "synthesize_research"
)

// newResearch builds the research definition: plan_research fans out
// one research_section worker per planned section, joining at
// synthesize_research. Synthesis requires at least one completed
// section; zero completions fail the run.
func newResearch(deps Deps) (Definition, error) {
	compiled, err := engine.NewGraph[models.ResearchState]().
		AddNode(stepPlanResearch, planResearch(deps)).
		AddNode(stepResearchSection, researchSection(deps)).
		AddNode(stepSynthesizeResearch, synthesizeResearch(deps)).
		AddFanOut(stepPlanResearch, engine.FanOut[models.ResearchState]{
			Worker:     stepResearchSection,
			Join:       stepSynthesizeResearch,
			Split:      splitSections,
			Merge:      mergeSections,
			MinResults: 1,
		}).
		AddEdge(stepSynthesizeResearch, engine.END).
		SetEntry(stepPlanResearch).
		Compile()
	if err != nil {
		return nil, err
	}

	return &def[models.ResearchState]{
		typ:      models.TypeResearchAnalysis,
		compiled: compiled,
		fromInitial: func(initial map[string]any, _ *models.WorkflowInstance) (models.ResearchState, error) {
			query := stringValue(initial, "research_query")
			if query == "" {
				var err error
				query, err = requireInput(initial, "research")
				if err != nil {
					return models.ResearchState{}, err
				}
			}
			return models.ResearchState{Query: query}, nil
		},
		mergeInput: func(s models.ResearchState, input map[string]any) models.ResearchState {
			if q := stringValue(input, "research_query"); q != "" {
				s.Query = q
			}
			return s
		},
	}, nil
}

const planResearchPrompt = `You are a research planner. Break the
research question into 3 to 6 focused sections. Respond with a JSON
array of section titles, for example:
["Section one title", "Section two title"]
Do not include any text before or after the JSON array.`

// planResearch asks the model for the section breakdown.
func planResearch(deps Deps) engine.NodeFunc[models.ResearchState] {
	return func(ctx context.Context, s models.ResearchState) (models.ResearchState, error) {
		text, err := deps.complete(ctx, planResearchPrompt, s.Query, 1024)
		if err != nil {
			return s, err
		}

		extracted := llm.ExtractJSONArray(text)
		if extracted == "" {
			return s, fmt.Errorf("research plan has no sections")
		}
		var sections []string
		if err := json.Unmarshal([]byte(extracted), &sections); err != nil {
			return s, fmt.Errorf("parse research plan: %w", err)
		}
		if len(sections) == 0 {
			return s, fmt.Errorf("research plan has no sections")
		}

		s.Sections = sections
		return s, nil
	}
}

// splitSections produces one worker state per planned section.
func splitSections(s models.ResearchState) []models.ResearchState {
	out := make([]models.ResearchState, 0, len(s.Sections))
	for _, title := range s.Sections {
		out = append(out, models.ResearchState{
			Query:    s.Query,
			Sections: []string{title},
		})
	}
	return out
}

// mergeSections folds one worker's findings into the accumulator.
// Append only; out-of-order completion must not lose sections.
func mergeSections(acc, worker models.ResearchState) models.ResearchState {
	acc.CompletedSections = append(acc.CompletedSections, worker.CompletedSections...)
	return acc
}

const researchSectionPrompt = `You are a researcher writing one section
of a report. Research the given section thoroughly in the context of
the overall question. Respond with the section text only.`

// researchSection researches a single section. Worker states carry
// exactly one section title.
func researchSection(deps Deps) engine.NodeFunc[models.ResearchState] {
	return func(ctx context.Context, s models.ResearchState) (models.ResearchState, error) {
		if len(s.Sections) != 1 {
			return s, fmt.Errorf("section worker expects one section, got %d", len(s.Sections))
		}
		title := s.Sections[0]

		text, err := deps.complete(ctx, researchSectionPrompt,
			fmt.Sprintf("Overall question: %s\n\nSection to research: %s", s.Query, title), 2048)
		if err != nil {
			return s, fmt.Errorf("research section %q: %w", title, err)
		}

		s.CompletedSections = append(s.CompletedSections, models.SectionResult{
			Title:   title,
			Content: text,
		})
		return s, nil
	}
}

const synthesizePrompt = `You are a research editor. Combine the
completed sections into one coherent report answering the original
question. Respond with the report text only.`

// synthesizeResearch combines all completed sections into the final
// report.
func synthesizeResearch(deps Deps) engine.NodeFunc[models.ResearchState] {
	return func(ctx context.Context, s models.ResearchState) (models.ResearchState, error) {
		if len(s.CompletedSections) == 0 {
			return s, fmt.Errorf("no completed sections to synthesize")
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Question: %s\n", s.Query)
		for _, section := range s.CompletedSections {
			fmt.Fprintf(&b, "\n## %s\n%s\n", section.Title, section.Content)
		}

		text, err := deps.complete(ctx, synthesizePrompt, b.String(), 4096)
		if err != nil {
			return s, err
		}

		s.FinalReport = text
		return s, nil
	}
}
