package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/llm"
)

// Defaults bounding a single responder invocation.
const (
	// DefaultMaxIterations bounds completion calls per invocation.
	DefaultMaxIterations = 15
	// DefaultBudget is the wall-clock budget per invocation.
	DefaultBudget = 60 * time.Second
)

// Pool dispatches requests to specialist responders. Responders are
// stateless between calls; conversation history is passed in by the
// caller.
type Pool struct {
	llm    llm.CompletionService
	dir    directory.Service
	model  string
	maxIt  int
	budget time.Duration
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithModel overrides the model used for responder calls.
func WithModel(model string) PoolOption {
	return func(p *Pool) { p.model = model }
}

// WithMaxIterations overrides the per-invocation call bound.
func WithMaxIterations(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxIt = n
		}
	}
}

// WithBudget overrides the per-invocation wall-clock budget.
func WithBudget(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.budget = d
		}
	}
}

// NewPool creates a responder pool over the given services.
func NewPool(svc llm.CompletionService, dir directory.Service, opts ...PoolOption) *Pool {
	p := &Pool{
		llm:    svc,
		dir:    dir,
		maxIt:  DefaultMaxIterations,
		budget: DefaultBudget,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Respond runs one bounded interaction with the named responder.
// At most one round of tool calling happens before the final text
// answer; the follow-up call carries no tools so the model must
// answer.
func (p *Pool) Respond(ctx context.Context, kind Kind, input string, rc RequestContext, history History) (string, error) {
	pers, ok := personas[kind]
	if !ok {
		return "", fmt.Errorf("unknown responder kind %q", kind)
	}

	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	system := pers.system + contextPayload(rc)
	messages := historyMessages(history)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})

	tools := pers.tools
	toolRoundDone := false

	for i := 0; i < p.maxIt; i++ {
		req := llm.Request{
			System:    system,
			Messages:  messages,
			Model:     p.model,
			MaxTokens: 2048,
		}
		if !toolRoundDone {
			req.Tools = tools
		}

		resp, err := p.llm.Complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("responder %s: %w", kind, err)
		}

		if len(resp.ToolUses) == 0 || toolRoundDone {
			return resp.Text, nil
		}

		// One round of tool execution, then force a final answer.
		assistant := llm.Message{
			Role:     llm.RoleAssistant,
			Content:  resp.Text,
			ToolUses: resp.ToolUses,
		}
		results := llm.Message{Role: llm.RoleUser}
		for _, tu := range resp.ToolUses {
			out, execErr := p.executeTool(ctx, rc, tu)
			results.ToolResults = append(results.ToolResults, llm.ToolResult{
				ToolUseID: tu.ID,
				Content:   out,
				IsError:   execErr != nil,
			})
		}
		messages = append(messages, assistant, results)
		toolRoundDone = true
	}

	return "", fmt.Errorf("responder %s: no final answer within %d calls", kind, p.maxIt)
}

// historyMessages converts past exchanges to conversation messages.
func historyMessages(h History) []llm.Message {
	var out []llm.Message
	for _, e := range h.Exchanges() {
		out = append(out, llm.Message{Role: llm.RoleUser, Content: e.UserInput})
		out = append(out, llm.Message{Role: llm.RoleAssistant, Content: e.Response})
	}
	return out
}

// executeTool runs one tool invocation against the directory service.
// Tools are string-in/string-out; errors become error results, never
// aborts.
func (p *Pool) executeTool(ctx context.Context, rc RequestContext, tu llm.ToolUse) (string, error) {
	switch tu.Name {
	case "create_task":
		return p.execCreateTask(ctx, rc, tu.Input)
	case "schedule_meeting":
		return p.execScheduleMeeting(ctx, rc, tu.Input)
	case "send_notification":
		return p.execSendNotification(ctx, rc, tu.Input)
	default:
		return fmt.Sprintf("Unknown tool: %s", tu.Name), fmt.Errorf("unknown tool %q", tu.Name)
	}
}

func (p *Pool) execCreateTask(ctx context.Context, rc RequestContext, input json.RawMessage) (string, error) {
	var params struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Assignee    string `json:"assignee"`
		DueDate     string `json:"due_date"`
		Priority    string `json:"priority"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), err
	}

	assigneeID := ""
	if params.Assignee != "" {
		id, err := p.dir.LookupUser(ctx, params.Assignee, rc.CompanyID)
		if err == nil {
			assigneeID = id
		}
	}

	taskID, err := p.dir.CreateTask(ctx, directory.TaskRequest{
		Title:       params.Title,
		Description: params.Description,
		Assignee:    assigneeID,
		DueDate:     params.DueDate,
		Priority:    params.Priority,
	})
	if err != nil {
		return fmt.Sprintf("Failed to create task: %v", err), err
	}
	return fmt.Sprintf("Created task %s: %s", taskID, params.Title), nil
}

func (p *Pool) execScheduleMeeting(ctx context.Context, rc RequestContext, input json.RawMessage) (string, error) {
	var params struct {
		Title        string   `json:"title"`
		Participants []string `json:"participants"`
		Time         string   `json:"time"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), err
	}

	message := fmt.Sprintf("Meeting scheduled: %s", params.Title)
	if params.Time != "" {
		message += " at " + params.Time
	}

	var notified []string
	for _, name := range params.Participants {
		id, err := p.dir.LookupUser(ctx, name, rc.CompanyID)
		if err != nil {
			continue
		}
		if err := p.dir.SendNotification(ctx, id, message); err == nil {
			notified = append(notified, name)
		}
	}

	if len(notified) == 0 {
		return "No participants could be notified", fmt.Errorf("no participants resolved")
	}
	return fmt.Sprintf("Scheduled %q and notified %s", params.Title, strings.Join(notified, ", ")), nil
}

func (p *Pool) execSendNotification(ctx context.Context, rc RequestContext, input json.RawMessage) (string, error) {
	var params struct {
		User    string `json:"user"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return fmt.Sprintf("Invalid parameters: %v", err), err
	}

	id, err := p.dir.LookupUser(ctx, params.User, rc.CompanyID)
	if err != nil {
		return fmt.Sprintf("Could not find user %q", params.User), err
	}
	if err := p.dir.SendNotification(ctx, id, params.Message); err != nil {
		return fmt.Sprintf("Failed to notify %s: %v", params.User, err), err
	}
	return fmt.Sprintf("Notified %s", params.User), nil
}
