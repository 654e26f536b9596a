// Package llmtest provides a scripted fake completion service for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/conductor/internal/llm"
)

// Step is one scripted reply. Exactly one of Response or Err is used.
type Step struct {
	Response *llm.Response
	Err      error
}

// Service replays scripted responses in order and records every request.
// When the script is exhausted it falls back to Default (or errors if
// Default is nil). Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	script  []Step
	next    int
	calls   []llm.Request
	Default *llm.Response
}

// New creates a fake service with the given scripted steps.
func New(steps ...Step) *Service {
	return &Service{script: steps}
}

// Text is a convenience constructor for a plain text reply step.
func Text(s string) Step {
	return Step{Response: &llm.Response{Text: s, StopReason: llm.StopEndTurn}}
}

// Err is a convenience constructor for a failing step.
func Err(err error) Step {
	return Step{Err: err}
}

// ToolCall is a convenience constructor for a tool-use reply step.
func ToolCall(id, name, input string) Step {
	return Step{Response: &llm.Response{
		StopReason: llm.StopToolUse,
		ToolUses:   []llm.ToolUse{{ID: id, Name: name, Input: []byte(input)}},
	}}
}

// Complete implements llm.CompletionService.
func (s *Service) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)

	if s.next < len(s.script) {
		step := s.script[s.next]
		s.next++
		if step.Err != nil {
			return nil, step.Err
		}
		return step.Response, nil
	}

	if s.Default != nil {
		return s.Default, nil
	}
	return nil, fmt.Errorf("llmtest: script exhausted after %d calls", len(s.calls))
}

// Calls returns a copy of all recorded requests.
func (s *Service) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of requests received.
func (s *Service) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var _ llm.CompletionService = (*Service)(nil)
