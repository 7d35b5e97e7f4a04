package engine

import (
	"context"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"
)

// Mode-1 short-circuits when the deterministic classifier is at least
// this confident. Mode-2 decisions below the low bar are replaced by the
// fallback tree.
const (
	mode1ConfidenceFloor   = 0.8
	lowConfidenceFloor     = 0.5
	conversationHistoryLen = 6
)

// RoutedDecision is a decision plus the path that produced it.
type RoutedDecision struct {
	Decision agent.Decision
	Path     domain.DecisionPath
}

// Router picks between the direct Mode-1 mapping and the Mode-2 agent.
// Whatever happens to the agent, Route always returns a usable decision.
type Router struct {
	decider  agent.Decider
	fallback *FallbackTree
	log      *logger.Logger
}

func NewRouter(decider agent.Decider, fallback *FallbackTree, log *logger.Logger) *Router {
	return &Router{decider: decider, fallback: fallback, log: log}
}

// Route resolves one turn to a decision.
//
// Button and list replies are authoritative: the parent told us exactly
// what they want, so the agent is never consulted and cannot override
// them. High-confidence deterministic intents short-circuit the same way.
func (r *Router) Route(ctx context.Context, conv repository.Conversation, payload queue.ProcessMessagePayload, intent ClassifiedIntent, history []agent.Turn) RoutedDecision {
	if r.isMode1(payload, intent) {
		return RoutedDecision{
			Decision: r.fallback.Decide(conv, intent, payload.ReplyID, payload.Text),
			Path:     domain.PathMode1,
		}
	}

	if r.decider == nil {
		return RoutedDecision{
			Decision: r.fallback.Decide(conv, intent, payload.ReplyID, payload.Text),
			Path:     domain.PathFallbackTree,
		}
	}

	decision, err := r.decider.Decide(ctx, agent.DecisionRequest{
		ConversationID: payload.ConversationID,
		ContactName:    conv.ContactName,
		State:          conv.State,
		CollectedData:  conv.CollectedData,
		LeadScore:      conv.LeadScore,
		History:        history,
		Message:        payload.Text,
		Intent:         intent.Intent,
	})
	if err != nil {
		r.log.Warn("agent decision failed, using fallback tree", "conversationId", payload.ConversationID, "error", err)
		return RoutedDecision{
			Decision: r.fallback.Decide(conv, intent, payload.ReplyID, payload.Text),
			Path:     domain.PathFallbackTree,
		}
	}

	if !domain.IsKnownAction(decision.Action) || decision.Reply == "" {
		r.log.Warn("agent decision malformed, using fallback tree", "conversationId", payload.ConversationID, "action", string(decision.Action))
		return RoutedDecision{
			Decision: r.fallback.Decide(conv, intent, payload.ReplyID, payload.Text),
			Path:     domain.PathFallbackTree,
		}
	}

	if decision.Confidence < lowConfidenceFloor {
		r.log.Info("agent decision below confidence floor, using fallback tree",
			"conversationId", payload.ConversationID, "confidence", decision.Confidence)
		fallbackDecision := r.fallback.Decide(conv, intent, payload.ReplyID, payload.Text)
		// The agent's extraction is still worth keeping.
		if fallbackDecision.Extracted == nil {
			fallbackDecision.Extracted = decision.Extracted
		}
		return RoutedDecision{Decision: fallbackDecision, Path: domain.PathFallbackTree}
	}

	return RoutedDecision{Decision: decision, Path: domain.PathMode2}
}

func (r *Router) isMode1(payload queue.ProcessMessagePayload, intent ClassifiedIntent) bool {
	if payload.ReplyID != "" {
		return true
	}
	if intent.Tier != domain.TierDeterministic {
		return false
	}
	if intent.Confidence < mode1ConfidenceFloor {
		return false
	}

	switch intent.Intent {
	case domain.IntentGreeting, domain.IntentFAQ, domain.IntentBooking,
		domain.IntentSlotSelection, domain.IntentAssessment,
		domain.IntentEscalation, domain.IntentReschedule:
		return true
	}
	return false
}
