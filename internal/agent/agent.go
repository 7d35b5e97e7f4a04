package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"leadchat_backend/platform/ai/gemini"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
)

// ErrNoDecision means the model finished without calling SaveDecision.
// The engine treats it like any agent failure and falls back.
var ErrNoDecision = errors.New("agent made no decision")

const appName = "decision-agent"

// DecisionAgent is the Mode-2 brain: an LLM agent whose only output
// channel is the SaveDecision tool.
type DecisionAgent struct {
	agent          adkagent.Agent
	runner         *runner.Runner
	sessionService session.Service
	state          *toolState
	log            *logger.Logger
	runMu          sync.Mutex
}

// NewDecisionAgent creates the decision agent.
func NewDecisionAgent(cfg config.AgentConfig, log *logger.Logger) (*DecisionAgent, error) {
	llm := gemini.NewModel(gemini.Config{
		APIKey: cfg.GetGeminiAPIKey(),
		Model:  cfg.GetGeminiModel(),
	})

	state := &toolState{}
	saveDecisionTool, err := createSaveDecisionTool(state)
	if err != nil {
		return nil, fmt.Errorf("failed to build SaveDecision tool: %w", err)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "DecisionAgent",
		Model:       llm,
		Description: "Decides the next conversational move for a parent in the reading program funnel.",
		Instruction: decisionInstruction,
		Tools:       []tool.Tool{saveDecisionTool},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decision agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decision runner: %w", err)
	}

	return &DecisionAgent{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		state:          state,
		log:            log,
	}, nil
}

// Decide runs the agent for one turn. Runs are serialized because the
// tool state is shared across runs.
func (a *DecisionAgent) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.state.Reset()

	if err := a.runWithPrompt(ctx, buildDecisionPrompt(req), req.ConversationID); err != nil {
		return Decision{}, err
	}

	decision, ok := a.state.Saved()
	if !ok {
		a.log.Warn("decision agent finished without calling SaveDecision", "conversationId", req.ConversationID)
		return Decision{}, ErrNoDecision
	}

	return decision, nil
}

func (a *DecisionAgent) runWithPrompt(ctx context.Context, promptText, conversationID string) error {
	sessionID := uuid.New().String()
	userID := "conversation-" + conversationID

	_, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent session: %w", err)
	}
	defer func() {
		_ = a.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: promptText}},
	}

	runConfig := adkagent.RunConfig{StreamingMode: adkagent.StreamingModeNone}
	for event := range a.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		_ = event
	}

	return ctx.Err()
}
