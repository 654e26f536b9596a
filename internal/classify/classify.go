// Package classify turns raw user text into a structured intent record
// using a single completion call. Failures of any kind are absorbed
// into a fixed fallback intent; classification never errors out to the
// caller.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ShayCichocki/conductor/internal/llm"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// UserContext carries the caller's identity so classification is
// personalized. All fields are optional.
type UserContext struct {
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Team    string `json:"team,omitempty"`
	Company string `json:"company,omitempty"`
}

// Classifier classifies user requests with a completion service.
type Classifier struct {
	llm llm.CompletionService
	// model overrides the service default when non-empty.
	model string
	// maxTokens bounds the classification response.
	maxTokens int
}

// New creates a Classifier over the given completion service.
func New(svc llm.CompletionService) *Classifier {
	return &Classifier{
		llm:       svc,
		maxTokens: 1024,
	}
}

// SetModel overrides the model used for classification calls.
func (c *Classifier) SetModel(model string) {
	c.model = model
}

// Classify sends a single completion request and parses the result
// into an IntentAnalysis. On any transport or parse failure it returns
// FallbackIntent; it makes exactly one attempt and never returns an
// error.
func (c *Classifier) Classify(ctx context.Context, input string, uc UserContext) models.IntentAnalysis {
	resp, err := c.llm.Complete(ctx, llm.Request{
		System:      classifierSystemPrompt,
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0.1,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildClassifyPrompt(input, uc)},
		},
	})
	if err != nil {
		log.Printf("[classify] completion failed, using fallback: %v", err)
		return FallbackIntent()
	}

	intent, ok := ParseIntent(resp.Text)
	if !ok {
		log.Printf("[classify] unparseable response, using fallback")
		return FallbackIntent()
	}
	return intent
}

// ParseIntent extracts an IntentAnalysis from raw model output.
// The second return is false when no usable record is present; callers
// construct the fallback themselves. Recognized fields are normalized:
// confidence clamped to [0, 1], estimated steps floored at 1, unknown
// enum values mapped to safe defaults.
func ParseIntent(raw string) (models.IntentAnalysis, bool) {
	extracted := llm.ExtractJSON(raw)
	if extracted == "" {
		return models.IntentAnalysis{}, false
	}

	var candidate models.IntentAnalysis
	if err := json.Unmarshal([]byte(extracted), &candidate); err != nil {
		return models.IntentAnalysis{}, false
	}

	return normalize(candidate), true
}

// FallbackIntent is the fixed default used when classification fails.
func FallbackIntent() models.IntentAnalysis {
	return models.IntentAnalysis{
		PrimaryIntent: models.IntentConversation,
		Confidence:    0.5,
		Entities: models.Entities{
			People:   []string{},
			Dates:    []string{},
			Tasks:    []string{},
			Projects: []string{},
		},
		Complexity:     models.ComplexityLow,
		EstimatedSteps: 1,
	}
}

// normalize clamps and defaults a parsed candidate record.
func normalize(in models.IntentAnalysis) models.IntentAnalysis {
	if !in.PrimaryIntent.Valid() {
		in.PrimaryIntent = models.IntentConversation
	}
	if in.Confidence < 0 {
		in.Confidence = 0
	}
	if in.Confidence > 1 {
		in.Confidence = 1
	}
	if !in.Complexity.Valid() {
		in.Complexity = models.ComplexityLow
	}
	if in.EstimatedSteps < 1 {
		in.EstimatedSteps = 1
	}
	if in.Entities.People == nil {
		in.Entities.People = []string{}
	}
	if in.Entities.Dates == nil {
		in.Entities.Dates = []string{}
	}
	if in.Entities.Tasks == nil {
		in.Entities.Tasks = []string{}
	}
	if in.Entities.Projects == nil {
		in.Entities.Projects = []string{}
	}
	return in
}

const classifierSystemPrompt = `You are an intent classifier for a workplace assistant. Analyze the user's request and respond with a JSON object in this exact format:
{
  "primary_intent": "task_management|conversation|information_retrieval|analysis|workflow_automation|team_coordination|reporting",
  "confidence": 0.0,
  "entities": {
    "people": [],
    "dates": [],
    "tasks": [],
    "projects": []
  },
  "complexity": "low|medium|high",
  "estimated_steps": 1
}

IMPORTANT:
- confidence is between 0.0 and 1.0
- estimated_steps is the number of distinct steps needed to fulfill the request, at least 1
- Extract every person, date, task, and project mentioned
- Do not include any text before or after the JSON object`

// buildClassifyPrompt renders the user message with the caller's
// context so classification is personalized.
func buildClassifyPrompt(input string, uc UserContext) string {
	prompt := "User context:\n"
	if uc.Name != "" {
		prompt += fmt.Sprintf("- Name: %s\n", uc.Name)
	}
	if uc.Role != "" {
		prompt += fmt.Sprintf("- Role: %s\n", uc.Role)
	}
	if uc.Team != "" {
		prompt += fmt.Sprintf("- Team: %s\n", uc.Team)
	}
	if uc.Company != "" {
		prompt += fmt.Sprintf("- Company: %s\n", uc.Company)
	}
	prompt += "\nRequest to classify:\n" + input
	return prompt
}
