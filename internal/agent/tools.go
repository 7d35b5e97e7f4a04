package agent

import (
	"strings"
	"sync"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"leadchat_backend/internal/conversation/domain"
)

// toolState captures the decision the agent saves during a run. The agent
// serializes runs with a mutex, so one captured decision per run is safe.
type toolState struct {
	mu       sync.Mutex
	decision *Decision
}

func (s *toolState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision = nil
}

func (s *toolState) Save(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision = &d
}

func (s *toolState) Saved() (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision == nil {
		return Decision{}, false
	}
	return *s.decision, true
}

// SaveDecisionInput is the tool schema the model fills in.
type SaveDecisionInput struct {
	Action     string            `json:"action" jsonschema:"description=One of the allowed action tags."`
	Reply      string            `json:"reply" jsonschema:"description=The message to send to the parent, in their tone, max 3 short sentences."`
	Buttons    []Button          `json:"buttons,omitempty" jsonschema:"description=Up to 3 quick-reply buttons."`
	Confidence float64           `json:"confidence" jsonschema:"description=Your confidence in this decision between 0 and 1."`
	StateHint  string            `json:"stateHint,omitempty" jsonschema:"description=Suggested next conversation state, leave empty to keep the current one."`
	Extracted  map[string]string `json:"extracted,omitempty" jsonschema:"description=Profile fields mentioned in the message: parent_name, child_name, child_age, concern, city."`
	Reasoning  string            `json:"reasoning,omitempty" jsonschema:"description=One sentence on why this action."`
}

type SaveDecisionOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// createSaveDecisionTool builds the single tool the decision agent must
// call exactly once per run.
func createSaveDecisionTool(state *toolState) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        "SaveDecision",
		Description: "Records your final decision for this turn. Call this exactly ONCE with the action, the reply text, and your confidence. Nothing is sent to the parent until you call this.",
	}, func(ctx tool.Context, input SaveDecisionInput) (SaveDecisionOutput, error) {
		action := domain.Action(strings.ToUpper(strings.TrimSpace(input.Action)))
		if !domain.IsKnownAction(action) {
			return SaveDecisionOutput{Success: false, Message: "unknown action tag"}, nil
		}
		if strings.TrimSpace(input.Reply) == "" {
			return SaveDecisionOutput{Success: false, Message: "reply must not be empty"}, nil
		}

		confidence := input.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		buttons := input.Buttons
		if len(buttons) > 3 {
			buttons = buttons[:3]
		}

		state.Save(Decision{
			Action:     action,
			Reply:      strings.TrimSpace(input.Reply),
			Buttons:    buttons,
			Confidence: confidence,
			StateHint:  strings.TrimSpace(input.StateHint),
			Extracted:  normalizeExtracted(input.Extracted),
			Reasoning:  strings.TrimSpace(input.Reasoning),
		})
		return SaveDecisionOutput{Success: true, Message: "Decision recorded"}, nil
	})
}

var allowedProfileKeys = map[string]struct{}{
	domain.DataParentName: {},
	domain.DataChildName:  {},
	domain.DataChildAge:   {},
	domain.DataConcern:    {},
	domain.DataCity:       {},
}

func normalizeExtracted(raw map[string]string) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if _, ok := allowedProfileKeys[key]; !ok || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
