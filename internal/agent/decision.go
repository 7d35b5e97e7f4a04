// Package agent hosts the AI decision layer: the Mode-2 decision agent and
// the Tier-1 intent classifier.
package agent

import (
	"context"

	"leadchat_backend/internal/conversation/domain"
)

// Button is a quick-reply option proposed by the agent.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Decision is the structured outcome of one agent run. The engine treats
// it as a proposal: state hints are validated against the state machine
// before they are applied.
type Decision struct {
	Action     domain.Action     `json:"action"`
	Reply      string            `json:"reply"`
	Buttons    []Button          `json:"buttons,omitempty"`
	Confidence float64           `json:"confidence"`
	StateHint  string            `json:"stateHint,omitempty"`
	Extracted  map[string]string `json:"extracted,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
}

// Turn is one prior message in the conversation window.
type Turn struct {
	Role string // user | bot
	Text string
}

// DecisionRequest carries everything the agent sees for one turn.
type DecisionRequest struct {
	ConversationID string
	ContactName    string
	State          domain.State
	CollectedData  map[string]string
	LeadScore      int
	History        []Turn
	Message        string
	Intent         domain.Intent
}

// Decider is the engine's view of the Mode-2 agent; tests substitute a fake.
type Decider interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

// Classification is a Tier-1 intent result.
type Classification struct {
	Intent     domain.Intent     `json:"intent"`
	Confidence float64           `json:"confidence"`
	Extracted  map[string]string `json:"extracted,omitempty"`
}

// IntentClassifier resolves intents Tier 0 could not.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string, state domain.State) (Classification, error)
}
