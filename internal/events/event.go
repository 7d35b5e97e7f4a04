// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadchat_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Conversation Domain Events
// =============================================================================

// MessageReceived is published when an inbound message has been stored and
// queued for processing. Handlers must not assume the engine has run yet.
type MessageReceived struct {
	BaseEvent
	ConversationID    uuid.UUID `json:"conversationId"`
	Sender            string    `json:"sender"`
	ProviderMessageID string    `json:"providerMessageId"`
	MessageType       string    `json:"messageType"`
}

func (e MessageReceived) EventName() string { return "conversation.message.received" }

// ConversationEscalated is published when the engine hands a conversation to
// a human. The notifier treats this as the single trigger for admin alerts.
type ConversationEscalated struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	Sender         string    `json:"sender"`
	ContactName    string    `json:"contactName,omitempty"`
	Reason         string    `json:"reason"`
	LastMessage    string    `json:"lastMessage,omitempty"`
	LeadScore      int       `json:"leadScore"`
}

func (e ConversationEscalated) EventName() string { return "conversation.escalated" }

// DecisionRecorded is published after each engine run for the audit trail.
type DecisionRecorded struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	Path           string    `json:"path"`
	Action         string    `json:"action"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Reasoning      string    `json:"reasoning,omitempty"`
	InputSummary   string    `json:"inputSummary,omitempty"`
	LatencyMs      int64     `json:"latencyMs"`
}

func (e DecisionRecorded) EventName() string { return "conversation.decision.recorded" }

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadUpserted is published when the lead projection changes.
type LeadUpserted struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	Sender         string    `json:"sender"`
	Status         string    `json:"status"`
	Score          int       `json:"score"`
}

func (e LeadUpserted) EventName() string { return "leads.lead.upserted" }

// LeadQualified is published the first time a lead's score crosses the
// qualification threshold.
type LeadQualified struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	Sender         string    `json:"sender"`
	ContactName    string    `json:"contactName,omitempty"`
	Score          int       `json:"score"`
}

func (e LeadQualified) EventName() string { return "leads.lead.qualified" }

// =============================================================================
// Booking Domain Events
// =============================================================================

// BookingCreated is published when a discovery call is booked.
type BookingCreated struct {
	BaseEvent
	BookingID      uuid.UUID `json:"bookingId"`
	ConversationID uuid.UUID `json:"conversationId"`
	Sender         string    `json:"sender"`
	ContactName    string    `json:"contactName,omitempty"`
	SlotID         string    `json:"slotId"`
	SlotLabel      string    `json:"slotLabel"`
}

func (e BookingCreated) EventName() string { return "booking.created" }

// BookingRescheduled is published when an existing booking moves to a new slot.
type BookingRescheduled struct {
	BaseEvent
	BookingID      uuid.UUID `json:"bookingId"`
	ConversationID uuid.UUID `json:"conversationId"`
	OldSlotID      string    `json:"oldSlotId"`
	NewSlotID      string    `json:"newSlotId"`
	NewSlotLabel   string    `json:"newSlotLabel"`
}

func (e BookingRescheduled) EventName() string { return "booking.rescheduled" }
