package webhook

import (
	"context"
	"errors"

	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/events"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/phone"
	"leadchat_backend/platform/sanitize"

	"github.com/google/uuid"
)

// ConversationStore is the slice of the conversation repository the
// ingestion path needs.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, sender, contactName string) (repository.Conversation, error)
	InsertInbound(ctx context.Context, msg repository.Message) (repository.Message, error)
	UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error
}

// Service stores inbound messages and enqueues them for the engine.
// It never blocks the provider: duplicates are dropped silently and
// status updates are best-effort.
type Service struct {
	store    ConversationStore
	enqueuer queue.Enqueuer
	bus      events.Bus
	log      *logger.Logger
}

// IngestResult summarizes what one webhook delivery produced.
type IngestResult struct {
	Stored     int
	Duplicates int
	Skipped    int
}

func NewService(store ConversationStore, enqueuer queue.Enqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, enqueuer: enqueuer, bus: bus, log: log}
}

// ProcessPayload handles one verified webhook delivery. Failures on
// individual messages are logged and do not abort the batch; the provider
// retries the whole delivery on non-200, which dedup absorbs.
func (s *Service) ProcessPayload(ctx context.Context, payload *Payload) IngestResult {
	messages, statuses := payload.Normalize()

	var result IngestResult
	for _, msg := range messages {
		if msg.MessageType == "unsupported" {
			result.Skipped++
			s.log.Debug("unsupported message type ignored", "providerMessageId", msg.ProviderMessageID)
			continue
		}
		switch err := s.ingestMessage(ctx, msg); {
		case err == nil:
			result.Stored++
		case errors.Is(err, repository.ErrDuplicateMessage):
			result.Duplicates++
			s.log.Debug("duplicate message dropped", "providerMessageId", msg.ProviderMessageID)
		default:
			result.Skipped++
			s.log.Error("inbound message ingest failed", "providerMessageId", msg.ProviderMessageID, "error", err)
		}
	}

	for _, status := range statuses {
		if err := s.store.UpdateDeliveryStatus(ctx, status.ID, status.Status); err != nil {
			s.log.Debug("delivery status update skipped", "providerMessageId", status.ID, "error", err)
		}
	}

	return result
}

func (s *Service) ingestMessage(ctx context.Context, msg InboundMessage) error {
	if msg.ProviderMessageID == "" || msg.Sender == "" {
		return errors.New("message missing id or sender")
	}

	sender := phone.NormalizeE164(msg.Sender)
	text := sanitize.MessageText(msg.Text)

	conv, err := s.store.GetOrCreate(ctx, sender, msg.ContactName)
	if err != nil {
		return err
	}

	providerID := msg.ProviderMessageID
	stored, err := s.store.InsertInbound(ctx, repository.Message{
		ConversationID:    conv.ID,
		Direction:         "inbound",
		SenderType:        "user",
		Content:           text,
		MessageType:       msg.MessageType,
		ProviderMessageID: &providerID,
		Metadata:          repository.MessageMetadata{ReplyID: msg.ReplyID},
	})
	if err != nil {
		return err
	}

	correlationID := uuid.NewString()
	err = s.enqueuer.EnqueueProcessMessage(ctx, queue.ProcessMessagePayload{
		ConversationID:    conv.ID.String(),
		ProviderMessageID: msg.ProviderMessageID,
		Sender:            sender,
		ContactName:       msg.ContactName,
		MessageType:       msg.MessageType,
		Text:              text,
		ReplyID:           msg.ReplyID,
		ReplyTitle:        msg.ReplyTitle,
		StateAtEnqueue:    string(conv.State),
		CorrelationID:     correlationID,
	})
	if err != nil {
		// The message is stored; a lost job surfaces on the next inbound
		// turn when the engine replays recent history.
		s.log.Error("enqueue failed for stored message", "messageId", stored.ID, "error", err)
		return nil
	}

	s.bus.Publish(ctx, events.MessageReceived{
		BaseEvent:         events.NewBaseEvent(),
		ConversationID:    conv.ID,
		Sender:            sender,
		ProviderMessageID: msg.ProviderMessageID,
		MessageType:       msg.MessageType,
	})

	s.log.Info("inbound message queued",
		"conversationId", conv.ID,
		"messageType", msg.MessageType,
		"correlationId", correlationID,
	)
	return nil
}
