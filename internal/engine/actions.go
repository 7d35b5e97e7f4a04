package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/booking"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/events"
	"leadchat_backend/internal/queue"
	"leadchat_backend/internal/whatsapp"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

// BookingProvider is the engine's view of the booking service.
type BookingProvider interface {
	OfferSlots(ctx context.Context) ([]booking.Slot, error)
	Book(ctx context.Context, conversationID uuid.UUID, sender, contactName, slotID string) (booking.Booking, bool, error)
	Reschedule(ctx context.Context, conversationID uuid.UUID, sender, contactName, newSlotID string) (booking.Booking, error)
}

// ExecutionResult is what action execution produced for one turn.
type ExecutionResult struct {
	Reply       string
	MessageType string // text | buttons | list
	FinalState  domain.State
	ScoreBonus  int
	Escalated   bool
}

const nurtureFollowUpDelay = 48 * time.Hour

// Executor carries out a routed decision: sends the reply, runs booking
// and escalation side effects, and reports the resulting state.
type Executor struct {
	sender   whatsapp.Sender
	bookings BookingProvider
	enqueuer queue.Enqueuer
	bus      events.Bus
	cfg      config.FunnelConfig
	log      *logger.Logger
}

func NewExecutor(sender whatsapp.Sender, bookings BookingProvider, enqueuer queue.Enqueuer, bus events.Bus, cfg config.FunnelConfig, log *logger.Logger) *Executor {
	return &Executor{
		sender:   sender,
		bookings: bookings,
		enqueuer: enqueuer,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// defaultStateFor maps actions to their natural next state. A valid
// StateHint from the agent overrides this; the state machine has the
// final word either way.
func defaultStateFor(action domain.Action, current domain.State) domain.State {
	switch action {
	case domain.ActionRespondAndQualify:
		return domain.StateQualifying
	case domain.ActionSendAssessment:
		return domain.StateAssessmentOffered
	case domain.ActionOfferDiscovery:
		return domain.StateDiscoveryOffered
	case domain.ActionBookDiscovery:
		return domain.StateBooked
	case domain.ActionReschedule:
		return domain.StateSlotSelection
	case domain.ActionEscalateHot, domain.ActionEscalateObjection:
		return domain.StateEscalated
	case domain.ActionEnterNurture:
		return domain.StateNurturing
	case domain.ActionCloseCold:
		return domain.StateCompleted
	default:
		return current
	}
}

// Execute runs the decision's action. It always returns a result the
// caller can persist, even when side effects degrade into escalation.
func (e *Executor) Execute(ctx context.Context, conv repository.Conversation, routed RoutedDecision, payload queue.ProcessMessagePayload) ExecutionResult {
	decision := routed.Decision

	// The escalation ladder's first rung is a live call: only an empty
	// calendar hands the conversation to the team.
	if decision.Action.IsEscalation() {
		lead := decision.Reply
		if lead == "" {
			lead = "The quickest way to sort this out is a short call with our team. Here are the next open times:"
		}
		if result, ok := e.trySlotPicker(ctx, conv, lead); ok {
			return result
		}
		reason := "parent asked for a human"
		if decision.Action == domain.ActionEscalateObjection {
			reason = "objection the bot could not resolve"
		}
		return e.escalate(ctx, conv, "", reason, payload.Text)
	}

	switch decision.Action {
	case domain.ActionOfferDiscovery:
		return e.offerSlots(ctx, conv, decision.Reply)

	case domain.ActionBookDiscovery:
		return e.bookSlot(ctx, conv, payload)

	case domain.ActionReschedule:
		return e.reschedule(ctx, conv, payload, decision.Reply)

	case domain.ActionEnterNurture:
		e.scheduleNurtureTouch(ctx, conv, 1)

	case domain.ActionSharePricing:
		// The agent may name the action without an answer; the FAQ
		// table carries the canonical pricing copy.
		if strings.TrimSpace(decision.Reply) == "" {
			if entry, ok := lookupFAQ("faq_pricing", ""); ok {
				decision.Reply = entry.Answer
			}
		}

	case domain.ActionSendAssessment:
		// The agent sometimes promises the link without including it.
		if link := e.cfg.GetAssessmentLink(); link != "" && !strings.Contains(decision.Reply, link) {
			decision.Reply = strings.TrimSpace(decision.Reply + " " + link)
		}
	}

	finalState := domain.Transition(conv.State, e.targetState(decision, conv.State))

	messageType := "text"
	if len(decision.Buttons) > 0 {
		messageType = "buttons"
	}
	e.sendReply(ctx, conv.Sender, decision.Reply, decision.Buttons)

	return ExecutionResult{
		Reply:       decision.Reply,
		MessageType: messageType,
		FinalState:  finalState,
	}
}

// targetState resolves the next state: the agent's hint wins when it
// names a known state or a lifecycle stage, else the action's default.
func (e *Executor) targetState(decision agent.Decision, current domain.State) domain.State {
	hint := strings.TrimSpace(decision.StateHint)
	if hint != "" {
		if state := domain.State(hint); domain.IsKnown(state) {
			return state
		}
		if state := domain.StateForLifecycle(domain.LifecycleStage(strings.ToLower(hint))); state != "" {
			return state
		}
	}
	return defaultStateFor(decision.Action, current)
}

// offerSlots sends the slot picker, or walks the fallback ladder when no
// slots exist: apologize, hand off to the team, escalate.
func (e *Executor) offerSlots(ctx context.Context, conv repository.Conversation, lead string) ExecutionResult {
	if result, ok := e.trySlotPicker(ctx, conv, lead); ok {
		return result
	}
	return e.escalate(ctx, conv,
		"We don't have open call slots right now, so I'm handing you to our team — they'll message you here to set something up personally.",
		"no discovery slots available", "")
}

// trySlotPicker sends the slot list when the calendar has open slots.
// ok=false means the caller walks the escalation ladder instead.
func (e *Executor) trySlotPicker(ctx context.Context, conv repository.Conversation, lead string) (ExecutionResult, bool) {
	slots, err := e.bookings.OfferSlots(ctx)
	if err != nil {
		e.log.Error("slot fetch failed", "conversationId", conv.ID, "error", err)
		slots = nil
	}
	if len(slots) == 0 {
		return ExecutionResult{}, false
	}

	if lead == "" {
		lead = "Here are the next available times for a quick discovery call. Pick whichever works for you!"
	}

	rows := make([]whatsapp.ListRow, len(slots))
	for i, slot := range slots {
		rows[i] = whatsapp.ListRow{
			ID:    ReplySlotPrefix + slot.ID,
			Title: slot.Label,
		}
	}

	if e.sender != nil {
		if err := e.sender.SendList(ctx, conv.Sender, lead, "See times", rows); err != nil {
			e.log.SideEffectFailed("send slot list", err)
		}
	}

	return ExecutionResult{
		Reply:       lead,
		MessageType: "list",
		FinalState:  domain.Transition(conv.State, domain.StateSlotSelection),
	}, true
}

func (e *Executor) bookSlot(ctx context.Context, conv repository.Conversation, payload queue.ProcessMessagePayload) ExecutionResult {
	slotID := strings.TrimPrefix(payload.ReplyID, ReplySlotPrefix)
	if slotID == "" || slotID == payload.ReplyID {
		// "Book a call" without a chosen slot: show the picker first.
		return e.offerSlots(ctx, conv, "")
	}

	booked, created, err := e.bookings.Book(ctx, conv.ID, conv.Sender, conv.ContactName, slotID)
	if errors.Is(err, booking.ErrSlotUnavailable) {
		return e.offerSlots(ctx, conv, "Ah, that time just filled up! Here are the times still open:")
	}
	if err != nil {
		e.log.Error("booking failed", "conversationId", conv.ID, "slotId", slotID, "error", err)
		return e.escalate(ctx, conv,
			"Something went wrong locking in that time, so I've asked our team to confirm it with you directly.",
			"booking failure", "")
	}

	reply := fmt.Sprintf("You're booked for %s! Our reading expert will call you on this number. Talk soon!", booked.SlotLabel)
	e.sendReply(ctx, conv.Sender, reply, nil)

	result := ExecutionResult{
		Reply:       reply,
		MessageType: "text",
		FinalState:  domain.Transition(conv.State, domain.StateBooked),
	}
	if created {
		result.ScoreBonus = domain.ScoreBooking
	}
	return result
}

func (e *Executor) reschedule(ctx context.Context, conv repository.Conversation, payload queue.ProcessMessagePayload, lead string) ExecutionResult {
	slotID := strings.TrimPrefix(payload.ReplyID, ReplySlotPrefix)
	if slotID == "" || slotID == payload.ReplyID {
		if lead == "" {
			lead = "No problem, here are the other available times:"
		}
		return e.offerSlots(ctx, conv, lead)
	}

	booked, err := e.bookings.Reschedule(ctx, conv.ID, conv.Sender, conv.ContactName, slotID)
	if errors.Is(err, booking.ErrNoActiveBooking) {
		// Nothing to move; fall through to a fresh booking.
		return e.bookSlot(ctx, conv, payload)
	}
	if errors.Is(err, booking.ErrSlotUnavailable) {
		return e.offerSlots(ctx, conv, "That time just filled up — here's what's still open:")
	}
	if err != nil {
		e.log.Error("reschedule failed", "conversationId", conv.ID, "slotId", slotID, "error", err)
		return e.escalate(ctx, conv,
			"I couldn't move your booking automatically, so our team will sort it out with you directly.",
			"reschedule failure", "")
	}

	reply := fmt.Sprintf("Done — your call is moved to %s. Talk soon!", booked.SlotLabel)
	e.sendReply(ctx, conv.Sender, reply, nil)

	return ExecutionResult{
		Reply:       reply,
		MessageType: "text",
		FinalState:  domain.Transition(conv.State, domain.StateBooked),
	}
}

// escalate is the bottom of the fallback ladder: tell the parent a human
// is taking over, silence the bot, and notify the admin exactly once.
func (e *Executor) escalate(ctx context.Context, conv repository.Conversation, reply, reason, lastMessage string) ExecutionResult {
	if reply == "" {
		reply = "I'm connecting you with our team — someone will message you here shortly."
	}
	e.sendReply(ctx, conv.Sender, reply, nil)

	alreadyEscalated := conv.State == domain.StateEscalated || !conv.BotActive
	if !alreadyEscalated {
		e.bus.Publish(ctx, events.ConversationEscalated{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			Sender:         conv.Sender,
			ContactName:    conv.ContactName,
			Reason:         reason,
			LastMessage:    lastMessage,
			LeadScore:      conv.LeadScore,
		})
	}

	return ExecutionResult{
		Reply:       reply,
		MessageType: "text",
		FinalState:  domain.Transition(conv.State, domain.StateEscalated),
		Escalated:   true,
	}
}

func (e *Executor) scheduleNurtureTouch(ctx context.Context, conv repository.Conversation, touch int) {
	if e.enqueuer == nil {
		return
	}
	err := e.enqueuer.ScheduleNurtureFollowUp(ctx, queue.NurtureFollowUpPayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		Touch:          touch,
	}, time.Now().Add(nurtureFollowUpDelay))
	if err != nil {
		e.log.SideEffectFailed("schedule nurture follow-up", err)
	}
}

func (e *Executor) sendReply(ctx context.Context, to, reply string, buttons []agent.Button) {
	if e.sender == nil || reply == "" {
		return
	}

	var err error
	if len(buttons) > 0 {
		converted := make([]whatsapp.Button, len(buttons))
		for i, b := range buttons {
			converted[i] = whatsapp.Button{ID: b.ID, Title: b.Title}
		}
		err = e.sender.SendButtons(ctx, to, reply, converted)
	} else {
		err = e.sender.SendText(ctx, to, reply)
	}
	if err != nil {
		e.log.SideEffectFailed("send reply", err)
	}
}
