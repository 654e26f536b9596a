package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/engine"
	"github.com/ShayCichocki/conductor/internal/llm"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Task orchestration node names.
const (
	stepAnalyzeRequests = "analyze_requests"
	stepCreateTaskBatch = "create_task_batch"
	stepAssignAndNotify = "assign_and_notify"
)

// newOrchestration builds the task orchestration definition:
// analyze_requests -> create_task_batch -> assign_and_notify -> END.
// Sequential, no branching. Fails when analysis yields no usable
// priority data.
func newOrchestration(deps Deps) (Definition, error) {
	compiled, err := engine.NewGraph[models.OrchestrationState]().
		AddNode(stepAnalyzeRequests, analyzeRequests(deps)).
		AddNode(stepCreateTaskBatch, createTaskBatch(deps)).
		AddNode(stepAssignAndNotify, assignAndNotify(deps)).
		AddEdge(stepAnalyzeRequests, stepCreateTaskBatch).
		AddEdge(stepCreateTaskBatch, stepAssignAndNotify).
		AddEdge(stepAssignAndNotify, engine.END).
		SetEntry(stepAnalyzeRequests).
		Compile()
	if err != nil {
		return nil, err
	}

	return &def[models.OrchestrationState]{
		typ:      models.TypeTaskOrchestration,
		compiled: compiled,
		fromInitial: func(initial map[string]any, _ *models.WorkflowInstance) (models.OrchestrationState, error) {
			requests := stringSlice(initial, "task_requests")
			if len(requests) == 0 {
				input, err := requireInput(initial, "task orchestration")
				if err != nil {
					return models.OrchestrationState{}, err
				}
				requests = []string{input}
			}
			return models.OrchestrationState{TaskRequests: requests}, nil
		},
		mergeInput: func(s models.OrchestrationState, input map[string]any) models.OrchestrationState {
			if extra := stringSlice(input, "task_requests"); len(extra) > 0 {
				s.TaskRequests = append(s.TaskRequests, extra...)
			}
			return s
		},
	}, nil
}

const analyzePrompt = `You are a task orchestration analyst. Break the
task requests into concrete tasks with priorities and dependencies.
Respond with a JSON object in this exact format:
{
  "tasks": [
    {"title": "...", "description": "...", "assignee": "", "due_date": "", "priority": "high|medium|low"}
  ],
  "dependencies": {"task title": ["titles it depends on"]},
  "priority_order": ["highest priority title first"],
  "rationale": "why this ordering"
}
Do not include any text before or after the JSON object.`

// analyzedPlan mirrors the JSON shape the analysis prompt requests.
type analyzedPlan struct {
	Tasks []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Assignee    string `json:"assignee"`
		DueDate     string `json:"due_date"`
		Priority    string `json:"priority"`
	} `json:"tasks"`
	Dependencies  map[string][]string `json:"dependencies"`
	PriorityOrder []string            `json:"priority_order"`
	Rationale     string              `json:"rationale"`
}

// analyzeRequests asks the model to decompose the requests into tasks
// with priorities and dependencies. Producing no usable priority data
// is a terminal failure for this workflow.
func analyzeRequests(deps Deps) engine.NodeFunc[models.OrchestrationState] {
	return func(ctx context.Context, s models.OrchestrationState) (models.OrchestrationState, error) {
		text, err := deps.complete(ctx, analyzePrompt,
			"Task requests:\n- "+strings.Join(s.TaskRequests, "\n- "), 2048)
		if err != nil {
			return s, err
		}

		extracted := llm.ExtractJSON(text)
		if extracted == "" {
			return s, fmt.Errorf("analysis produced no usable priority data")
		}
		var plan analyzedPlan
		if err := json.Unmarshal([]byte(extracted), &plan); err != nil {
			return s, fmt.Errorf("analysis produced no usable priority data: %w", err)
		}
		if len(plan.Tasks) == 0 || len(plan.PriorityOrder) == 0 {
			return s, fmt.Errorf("analysis produced no usable priority data")
		}

		s.PlannedTasks = s.PlannedTasks[:0]
		for _, t := range plan.Tasks {
			s.PlannedTasks = append(s.PlannedTasks, models.CreatedTask{
				Title:       t.Title,
				Description: t.Description,
				Assignee:    t.Assignee,
				DueDate:     t.DueDate,
				Priority:    t.Priority,
			})
		}
		s.Dependencies = plan.Dependencies
		s.PriorityAnalysis = &models.PriorityAnalysis{
			Order:     plan.PriorityOrder,
			Rationale: plan.Rationale,
		}
		return s, nil
	}
}

// createTaskBatch creates the planned tasks in dependency order.
func createTaskBatch(deps Deps) engine.NodeFunc[models.OrchestrationState] {
	return func(ctx context.Context, s models.OrchestrationState) (models.OrchestrationState, error) {
		byTitle := make(map[string]models.CreatedTask, len(s.PlannedTasks))
		for _, t := range s.PlannedTasks {
			byTitle[t.Title] = t
		}

		for _, title := range creationOrder(s) {
			planned, ok := byTitle[title]
			if !ok {
				continue
			}
			id, err := deps.Directory.CreateTask(ctx, directory.TaskRequest{
				Title:       planned.Title,
				Description: planned.Description,
				DueDate:     planned.DueDate,
				Priority:    planned.Priority,
			})
			if err != nil {
				return s, fmt.Errorf("create task %q: %w", planned.Title, err)
			}
			planned.ID = id
			s.CreatedTasks = append(s.CreatedTasks, planned)
		}

		if len(s.CreatedTasks) == 0 {
			return s, fmt.Errorf("no tasks could be created")
		}
		return s, nil
	}
}

// assignAndNotify resolves assignees and notifies them of their tasks.
// Name resolution is best-effort: unresolvable names leave the task
// unassigned rather than failing the workflow.
func assignAndNotify(deps Deps) engine.NodeFunc[models.OrchestrationState] {
	return func(ctx context.Context, s models.OrchestrationState) (models.OrchestrationState, error) {
		seen := make(map[string]bool)
		for i := range s.CreatedTasks {
			task := &s.CreatedTasks[i]
			if task.Assignee == "" {
				continue
			}
			userID, err := deps.Directory.LookupUser(ctx, task.Assignee, "")
			if err != nil {
				task.Assignee = ""
				continue
			}
			task.Assignee = userID
			if !seen[userID] {
				seen[userID] = true
				s.AssignedUsers = append(s.AssignedUsers, userID)
			}
			deps.Directory.SendNotification(ctx, userID,
				fmt.Sprintf("You have been assigned task %s: %s", task.ID, task.Title))
		}
		return s, nil
	}
}

// creationOrder returns task titles ordered so dependencies come first,
// falling back to the priority order when the dependency map has a
// cycle. Depth-first walk in priority order, dependencies visited
// before dependents.
func creationOrder(s models.OrchestrationState) []string {
	if s.PriorityAnalysis == nil {
		return nil
	}
	roots := s.PriorityAnalysis.Order

	// Color states: 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int)
	var order []string
	cycle := false

	var visit func(title string)
	visit = func(title string) {
		switch colors[title] {
		case 1:
			cycle = true
			return
		case 2:
			return
		}
		colors[title] = 1
		for _, dep := range s.Dependencies[title] {
			visit(dep)
		}
		colors[title] = 2
		order = append(order, title)
	}

	for _, title := range roots {
		visit(title)
	}
	if cycle {
		return roots
	}
	return order
}
