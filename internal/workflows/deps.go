// Package workflows defines the five built-in workflow graphs and the
// registry that starts and resumes them: task orchestration, research
// and analysis, collaborative planning, iterative refinement, and
// multi-step automation.
package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/llm"
)

// Deps carries the external services every workflow node may use.
type Deps struct {
	// LLM is the completion service nodes call.
	LLM llm.CompletionService
	// Directory provides task creation, user lookup, and notifications.
	Directory directory.Service
	// Model overrides the completion service default when non-empty.
	Model string
	// NodeTimeout bounds each completion call. Zero means no extra
	// deadline beyond the caller's context.
	NodeTimeout time.Duration
}

// complete makes one completion call with the node timeout applied.
func (d Deps) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if d.NodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.NodeTimeout)
		defer cancel()
	}

	resp, err := d.LLM.Complete(ctx, llm.Request{
		System:    system,
		Model:     d.Model,
		MaxTokens: maxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// stringValue pulls a string field out of caller-supplied initial data.
func stringValue(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// stringSlice pulls a string list out of caller-supplied initial data,
// accepting both []string and []any (the shape JSON decoding produces).
func stringSlice(data map[string]any, key string) []string {
	if data == nil {
		return nil
	}
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// requireInput returns the "input" field or an error naming the type.
func requireInput(data map[string]any, what string) (string, error) {
	if s := stringValue(data, "input"); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("initial data missing %s input", what)
}
