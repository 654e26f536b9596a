// Package responder implements the specialist responder pool: five
// named, tool-augmented single-turn agents used when no workflow is
// triggered. Each responder is one bounded interaction with the
// completion service, with at most one round of tool calling before
// the final answer.
package responder

import (
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Kind identifies one specialist responder. The set is closed;
// dispatch is a static table, not a runtime factory.
type Kind string

const (
	// KindTask handles task creation and tracking requests.
	KindTask Kind = "task"
	// KindConversation handles general chat.
	KindConversation Kind = "conversation"
	// KindAnalysis handles lookups and analysis questions.
	KindAnalysis Kind = "analysis"
	// KindCoordination handles scheduling and team communication.
	KindCoordination Kind = "coordination"
	// KindReporting handles status summaries.
	KindReporting Kind = "reporting"
)

// Valid returns true if the kind is a known value.
func (k Kind) Valid() bool {
	switch k {
	case KindTask, KindConversation, KindAnalysis, KindCoordination, KindReporting:
		return true
	default:
		return false
	}
}

// ForIntent maps a classified intent to the responder that handles it.
// Unknown intents fall back to conversation.
func ForIntent(intent models.PrimaryIntent) Kind {
	switch intent {
	case models.IntentTaskManagement, models.IntentWorkflowAutomation:
		return KindTask
	case models.IntentInformationRetrieval, models.IntentAnalysisRequest:
		return KindAnalysis
	case models.IntentTeamCoordination:
		return KindCoordination
	case models.IntentReporting:
		return KindReporting
	default:
		return KindConversation
	}
}

// Exchange is one past user/assistant round.
type Exchange struct {
	UserInput string `json:"user_input"`
	Response  string `json:"response"`
}

// History is a bounded, immutable-after-append log of past exchanges.
// Append returns a new value; callers own their copy.
type History struct {
	max       int
	exchanges []Exchange
}

// NewHistory creates an empty history keeping at most max exchanges.
func NewHistory(max int) History {
	if max <= 0 {
		max = 10
	}
	return History{max: max}
}

// Append returns a new history including the exchange, dropping the
// oldest entries beyond the bound.
func (h History) Append(e Exchange) History {
	exchanges := make([]Exchange, len(h.exchanges), len(h.exchanges)+1)
	copy(exchanges, h.exchanges)
	exchanges = append(exchanges, e)
	if len(exchanges) > h.max {
		exchanges = exchanges[len(exchanges)-h.max:]
	}
	return History{max: h.max, exchanges: exchanges}
}

// Exchanges returns the retained exchanges, oldest first.
func (h History) Exchanges() []Exchange {
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Len returns the number of retained exchanges.
func (h History) Len() int {
	return len(h.exchanges)
}

// RequestContext is the curated context payload a caller passes into a
// responder invocation. All fields are optional.
type RequestContext struct {
	// UserID identifies the caller in the business platform.
	UserID string
	// UserName, Role, Team, and CompanyID personalize the persona.
	UserName  string
	Role      string
	Team      string
	CompanyID string
	// OpenTasks lists the caller's open task titles.
	OpenTasks []string
	// TeamRoster lists the caller's teammates.
	TeamRoster []string
	// ProductivityNotes carries counts or summaries for reporting.
	ProductivityNotes string
}
