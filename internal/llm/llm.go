// Package llm provides the completion service abstraction for Conductor.
// It defines a transport-neutral request/response model and an Anthropic
// implementation with token tracking.
package llm

import (
	"context"
	"encoding/json"
)

// Message roles understood by the completion service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stop reasons surfaced on a Response.
const (
	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
	StopMaxTok  = "max_tokens"
)

// Message is one role-tagged message in a conversation.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// ToolUses carries tool invocations on an assistant message.
	ToolUses []ToolUse `json:"tool_uses,omitempty"`
	// ToolResults carries tool outputs on a user message.
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolDef describes a tool the model may invoke.
type ToolDef struct {
	// Name is the tool identifier.
	Name string `json:"name"`
	// Description tells the model what the tool does.
	Description string `json:"description"`
	// Properties is the JSON schema properties map for the input.
	Properties map[string]any `json:"properties"`
	// Required lists required property names.
	Required []string `json:"required,omitempty"`
}

// ToolUse is a tool invocation requested by the model.
type ToolUse struct {
	// ID correlates the invocation with its result.
	ID string `json:"id"`
	// Name is the tool being invoked.
	Name string `json:"name"`
	// Input is the raw JSON arguments.
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a requested tool.
type ToolResult struct {
	// ToolUseID matches the ToolUse.ID this result answers.
	ToolUseID string `json:"tool_use_id"`
	// Content is the tool output text.
	Content string `json:"content"`
	// IsError marks a failed execution.
	IsError bool `json:"is_error,omitempty"`
}

// Request is one completion request.
type Request struct {
	// System is the system prompt.
	System string
	// Messages is the conversation so far.
	Messages []Message
	// Model overrides the client's configured model when non-empty.
	Model string
	// MaxTokens bounds the generated output. Zero means the client default.
	MaxTokens int
	// Temperature controls sampling. Zero means the provider default.
	Temperature float64
	// Tools the model may invoke, if any.
	Tools []ToolDef
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the result of one completion call.
type Response struct {
	// Text is the concatenated text output.
	Text string
	// ToolUses lists tool invocations the model requested, if any.
	ToolUses []ToolUse
	// StopReason is why generation stopped.
	StopReason string
	// Usage is the token usage for this call.
	Usage Usage
}

// CompletionService is the capability every classifier, responder, and
// workflow node depends on. Callers supply a deadline via the context;
// the service never blocks past it.
type CompletionService interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
