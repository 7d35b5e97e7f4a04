package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/platform/ai/gemini"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
)

// Classifier is the Tier-1 intent classifier. Unlike the decision agent
// it talks to the model directly; there is no tool loop to run, just one
// JSON answer to parse.
type Classifier struct {
	llm *gemini.Model
	log *logger.Logger
}

func NewClassifier(cfg config.AgentConfig, log *logger.Logger) *Classifier {
	return &Classifier{
		llm: gemini.NewModel(gemini.Config{
			APIKey: cfg.GetGeminiAPIKey(),
			Model:  cfg.GetGeminiModel(),
		}),
		log: log,
	}
}

var knownIntents = map[domain.Intent]struct{}{
	domain.IntentGreeting:      {},
	domain.IntentBooking:       {},
	domain.IntentSlotSelection: {},
	domain.IntentAssessment:    {},
	domain.IntentEscalation:    {},
	domain.IntentReschedule:    {},
	domain.IntentFAQ:           {},
	domain.IntentQualification: {},
	domain.IntentUnknown:       {},
}

// ClassifyIntent resolves one message to an intent with confidence.
func (c *Classifier) ClassifyIntent(ctx context.Context, text string, state domain.State) (Classification, error) {
	req := &model.LLMRequest{
		Contents: []*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: classifyPrompt(text, state)}},
		}},
		Config: &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	}

	var answer strings.Builder
	for resp, err := range c.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return Classification{}, err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			answer.WriteString(part.Text)
		}
	}

	return parseClassification(answer.String())
}

func parseClassification(raw string) (Classification, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed struct {
		Intent     string            `json:"intent"`
		Confidence float64           `json:"confidence"`
		Extracted  map[string]string `json:"extracted"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return Classification{}, fmt.Errorf("unparseable classification: %w", err)
	}

	intent := domain.Intent(strings.ToUpper(strings.TrimSpace(parsed.Intent)))
	if _, ok := knownIntents[intent]; !ok {
		intent = domain.IntentUnknown
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Classification{
		Intent:     intent,
		Confidence: confidence,
		Extracted:  normalizeExtracted(parsed.Extracted),
	}, nil
}
