package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/events"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"
)

// A lead crosses into "qualified" at this score: name, child, age, and
// concern collected.
const qualifiedScoreThreshold = 40

const maxNurtureTouches = 2

// Sent on a rate-limited turn; the message itself is dropped, the
// sender is asked to come back.
const rateLimitedReply = "You've sent me quite a few messages in a row! Give me a little while and message again — I'll pick up right where we left off."

// Outcome is what one engine run did with the message.
type Outcome string

const (
	OutcomeProcessed   Outcome = "processed"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeSkipped     Outcome = "skipped"
)

// ConversationStore is the slice of the conversation repository the
// engine needs; tests substitute a fake.
type ConversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Conversation, error)
	UpdateState(ctx context.Context, id uuid.UUID, state domain.State, collected map[string]string, scoreDelta int) error
	SetBotActive(ctx context.Context, id uuid.UUID, active bool) error
	AppendOutbound(ctx context.Context, msg repository.Message) (repository.Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]repository.Message, error)
	UpsertLead(ctx context.Context, lead repository.Lead) error
	AppendDecision(ctx context.Context, rec repository.DecisionRecord) error
}

// Service runs the engine for one queued message at a time. Both the
// asynq worker and the HTTP consumer endpoint land here.
type Service struct {
	store      ConversationStore
	limiter    RateLimiter
	classifier *Classifier
	router     *Router
	executor   *Executor
	bus        events.Bus
	log        *logger.Logger
}

func NewService(store ConversationStore, limiter RateLimiter, classifier *Classifier, router *Router, executor *Executor, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		limiter:    limiter,
		classifier: classifier,
		router:     router,
		executor:   executor,
		bus:        bus,
		log:        log,
	}
}

// Process runs the full pipeline for one message: load live state, gate
// on bot activity and rate limit, classify, route, execute, persist.
func (s *Service) Process(ctx context.Context, payload queue.ProcessMessagePayload) (Outcome, error) {
	start := time.Now()

	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("invalid conversation id %q: %w", payload.ConversationID, err)
	}

	// The enqueued snapshot may be stale; only live state decides.
	conv, err := s.store.GetByID(ctx, conversationID)
	if err != nil {
		return OutcomeSkipped, err
	}

	if !conv.BotActive {
		s.log.Info("bot inactive, message skipped", "conversationId", conv.ID)
		return OutcomeSkipped, nil
	}
	if domain.IsTerminal(conv.State) && conv.State != domain.StateBooked {
		s.log.Info("conversation closed, message skipped", "conversationId", conv.ID, "state", string(conv.State))
		return OutcomeSkipped, nil
	}

	// The rate limit sits before any classification so abusive senders
	// never cost AI calls.
	allowed, err := s.limiter.Allow(ctx, conv.Sender)
	if err != nil {
		return OutcomeSkipped, err
	}
	if !allowed {
		// Soft rejection: the turn is dropped but the sender is told to
		// retry, without spending a classifier or agent call.
		s.executor.sendReply(ctx, conv.Sender, rateLimitedReply, nil)
		return OutcomeRateLimited, nil
	}

	intent := s.classifier.Classify(ctx, payload, conv.State)
	history := s.recentHistory(ctx, conv.ID)
	routed := s.router.Route(ctx, conv, payload, intent, history)
	result := s.executor.Execute(ctx, conv, routed, payload)

	s.persistTurn(ctx, conv, payload, intent, routed, result)
	s.recordDecision(ctx, conv, payload, intent, routed, result, time.Since(start))

	s.log.Decision(string(routed.Path), string(routed.Decision.Action), string(intent.Intent),
		routed.Decision.Confidence, domain.TransitionString(conv.State, result.FinalState))

	return OutcomeProcessed, nil
}

// ProcessMessage adapts Process to the queue worker. A missing
// conversation can never heal, so it skips retry.
func (s *Service) ProcessMessage(ctx context.Context, payload queue.ProcessMessagePayload) error {
	_, err := s.Process(ctx, payload)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return errors.Join(err, asynq.SkipRetry)
	}
	return err
}

// ProcessNurtureFollowUp sends a scheduled nurture touch if the
// conversation is still parked in the nurture track.
func (s *Service) ProcessNurtureFollowUp(ctx context.Context, payload queue.NurtureFollowUpPayload) error {
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}

	conv, err := s.store.GetByID(ctx, conversationID)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return errors.Join(err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	if !conv.BotActive || conv.State != domain.StateNurturing {
		return nil
	}

	decision := s.router.fallback.decideByState(conv, ClassifiedIntent{Intent: domain.IntentQualification})
	result := s.executor.Execute(ctx, conv, RoutedDecision{Decision: decision, Path: domain.PathFallbackTree}, queue.ProcessMessagePayload{
		ConversationID: payload.ConversationID,
		Sender:         payload.Sender,
	})

	s.persistTurn(ctx, conv, queue.ProcessMessagePayload{ConversationID: payload.ConversationID}, ClassifiedIntent{Intent: domain.IntentQualification, Tier: domain.TierDeterministic}, RoutedDecision{Decision: decision, Path: domain.PathFallbackTree}, result)

	if payload.Touch < maxNurtureTouches {
		s.executor.scheduleNurtureTouch(ctx, conv, payload.Touch+1)
	}
	return nil
}

func (s *Service) recentHistory(ctx context.Context, conversationID uuid.UUID) []agent.Turn {
	messages, err := s.store.RecentMessages(ctx, conversationID, conversationHistoryLen)
	if err != nil {
		s.log.Warn("history fetch failed", "conversationId", conversationID, "error", err)
		return nil
	}

	turns := make([]agent.Turn, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Direction == "outbound" {
			role = "bot"
		}
		turns = append(turns, agent.Turn{Role: role, Text: msg.Content})
	}
	return turns
}

// persistTurn writes the turn's outcome: outbound message, state and
// collected-data update, bot deactivation on escalation, and the lead
// projection. Persistence failures are logged, not fatal; the reply has
// already been sent.
func (s *Service) persistTurn(ctx context.Context, conv repository.Conversation, payload queue.ProcessMessagePayload, intent ClassifiedIntent, routed RoutedDecision, result ExecutionResult) {
	extracted := mergeExtracted(intent.Extracted, routed.Decision.Extracted)
	scoreDelta := domain.ScoreDelta(conv.CollectedData, extracted) + result.ScoreBonus

	if result.Reply != "" {
		tier := int(intent.Tier)
		_, err := s.store.AppendOutbound(ctx, repository.Message{
			ConversationID: conv.ID,
			Direction:      "outbound",
			SenderType:     "bot",
			Content:        result.Reply,
			MessageType:    result.MessageType,
			Metadata: repository.MessageMetadata{
				Intent:       string(intent.Intent),
				Confidence:   routed.Decision.Confidence,
				Tier:         &tier,
				Transition:   domain.TransitionString(conv.State, result.FinalState),
				DecisionPath: string(routed.Path),
				ReplyID:      payload.ReplyID,
			},
		})
		if err != nil {
			s.log.DatabaseError("append outbound message", err)
		}
	}

	if err := s.store.UpdateState(ctx, conv.ID, result.FinalState, extracted, scoreDelta); err != nil {
		s.log.DatabaseError("update conversation state", err)
	}

	if result.Escalated {
		if err := s.store.SetBotActive(ctx, conv.ID, false); err != nil {
			s.log.DatabaseError("deactivate bot", err)
		}
	}

	s.projectLead(ctx, conv, extracted, scoreDelta, result.FinalState)
}

func (s *Service) projectLead(ctx context.Context, conv repository.Conversation, extracted map[string]string, scoreDelta int, finalState domain.State) {
	newScore := conv.LeadScore + scoreDelta

	collected := make(map[string]string, len(conv.CollectedData)+len(extracted))
	for k, v := range conv.CollectedData {
		collected[k] = v
	}
	for k, v := range extracted {
		collected[k] = v
	}

	contactName := conv.ContactName
	if name := collected[domain.DataParentName]; name != "" {
		contactName = name
	}

	lead := repository.Lead{
		Sender:      conv.Sender,
		ContactName: contactName,
		Status:      domain.LifecycleForState(finalState),
		Collected:   collected,
		Score:       newScore,
	}
	if err := s.store.UpsertLead(ctx, lead); err != nil {
		s.log.DatabaseError("upsert lead", err)
		return
	}

	s.bus.Publish(ctx, events.LeadUpserted{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		Sender:         conv.Sender,
		Status:         string(lead.Status),
		Score:          newScore,
	})

	if conv.LeadScore < qualifiedScoreThreshold && newScore >= qualifiedScoreThreshold {
		s.bus.Publish(ctx, events.LeadQualified{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			Sender:         conv.Sender,
			ContactName:    contactName,
			Score:          newScore,
		})
	}
}

// recordDecision appends to the decision log. The log is append-only and
// best-effort: a failed write never fails the turn.
func (s *Service) recordDecision(ctx context.Context, conv repository.Conversation, payload queue.ProcessMessagePayload, intent ClassifiedIntent, routed RoutedDecision, result ExecutionResult, latency time.Duration) {
	summary := payload.Text
	if len(summary) > 200 {
		summary = summary[:200]
	}

	rec := repository.DecisionRecord{
		ConversationID: conv.ID,
		Path:           routed.Path,
		Action:         routed.Decision.Action,
		Confidence:     routed.Decision.Confidence,
		Reasoning:      routed.Decision.Reasoning,
		InputSummary:   summary,
		LatencyMs:      latency.Milliseconds(),
	}
	if err := s.store.AppendDecision(ctx, rec); err != nil {
		s.log.DatabaseError("append decision record", err)
	}

	s.bus.Publish(ctx, events.DecisionRecorded{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		Path:           string(rec.Path),
		Action:         string(rec.Action),
		Intent:         string(intent.Intent),
		Confidence:     rec.Confidence,
		Reasoning:      rec.Reasoning,
		InputSummary:   rec.InputSummary,
		LatencyMs:      rec.LatencyMs,
	})
}

func mergeExtracted(tier0, agentExtracted map[string]string) map[string]string {
	if len(tier0) == 0 && len(agentExtracted) == 0 {
		return nil
	}
	merged := make(map[string]string, len(tier0)+len(agentExtracted))
	for k, v := range tier0 {
		merged[k] = v
	}
	// Agent extraction wins on conflict; it sees more context.
	for k, v := range agentExtracted {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}
