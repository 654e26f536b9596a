package responder

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/conductor/internal/llm"
)

// persona holds the static configuration for one responder kind.
type persona struct {
	system string
	tools  []llm.ToolDef
}

// personas is the static dispatch table mapping kinds to their prompt
// and tool set. Resolved at compile time; no runtime registration.
var personas = map[Kind]persona{
	KindTask: {
		system: `You are a task management specialist for a workplace assistant.
Help the user create, organize, and track tasks. When the user asks you
to create a task, use the create_task tool. Keep answers short and
action-oriented.`,
		tools: []llm.ToolDef{createTaskTool},
	},
	KindConversation: {
		system: `You are a friendly workplace assistant. Answer
conversationally and concisely. Do not invent tasks or commitments.`,
	},
	KindAnalysis: {
		system: `You are an analysis specialist for a workplace assistant.
Answer questions, summarize information, and explain trade-offs clearly.
Note your assumptions when data is missing.`,
	},
	KindCoordination: {
		system: `You are a team coordination specialist for a workplace
assistant. Help with scheduling and team communication. Use the
schedule_meeting tool to set up meetings and the send_notification tool
to notify teammates.`,
		tools: []llm.ToolDef{scheduleMeetingTool, sendNotificationTool},
	},
	KindReporting: {
		system: `You are a reporting specialist for a workplace assistant.
Produce clear status summaries from the context you are given. Prefer
short bullet lists with concrete numbers.`,
	},
}

// contextPayload renders the curated caller context appended to the
// system prompt.
func contextPayload(rc RequestContext) string {
	var b strings.Builder
	wrote := false

	writeLine := func(format string, args ...any) {
		if !wrote {
			b.WriteString("\n\n## Caller context\n")
			wrote = true
		}
		fmt.Fprintf(&b, format+"\n", args...)
	}

	if rc.UserName != "" {
		writeLine("- Name: %s", rc.UserName)
	}
	if rc.Role != "" {
		writeLine("- Role: %s", rc.Role)
	}
	if rc.Team != "" {
		writeLine("- Team: %s", rc.Team)
	}
	if len(rc.OpenTasks) > 0 {
		writeLine("- Open tasks: %s", strings.Join(rc.OpenTasks, "; "))
	}
	if len(rc.TeamRoster) > 0 {
		writeLine("- Teammates: %s", strings.Join(rc.TeamRoster, ", "))
	}
	if rc.ProductivityNotes != "" {
		writeLine("- Productivity: %s", rc.ProductivityNotes)
	}

	return b.String()
}

var createTaskTool = llm.ToolDef{
	Name:        "create_task",
	Description: "Create a task in the task system.",
	Properties: map[string]any{
		"title": map[string]any{
			"type":        "string",
			"description": "Short task title",
		},
		"description": map[string]any{
			"type":        "string",
			"description": "Detailed task description",
		},
		"assignee": map[string]any{
			"type":        "string",
			"description": "Name of the person to assign the task to",
		},
		"due_date": map[string]any{
			"type":        "string",
			"description": "Due date expression, if any",
		},
		"priority": map[string]any{
			"type":        "string",
			"description": "Task priority: high, medium, or low",
		},
	},
	Required: []string{"title"},
}

var scheduleMeetingTool = llm.ToolDef{
	Name:        "schedule_meeting",
	Description: "Schedule a meeting and notify the participants.",
	Properties: map[string]any{
		"title": map[string]any{
			"type":        "string",
			"description": "Meeting title",
		},
		"participants": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Names of the participants",
		},
		"time": map[string]any{
			"type":        "string",
			"description": "Proposed meeting time",
		},
	},
	Required: []string{"title", "participants"},
}

var sendNotificationTool = llm.ToolDef{
	Name:        "send_notification",
	Description: "Send a notification message to a teammate.",
	Properties: map[string]any{
		"user": map[string]any{
			"type":        "string",
			"description": "Name of the person to notify",
		},
		"message": map[string]any{
			"type":        "string",
			"description": "Notification text",
		},
	},
	Required: []string{"user", "message"},
}
