package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/booking"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/events"
	"leadchat_backend/internal/queue"
	"leadchat_backend/platform/logger"
)

type executorFixture struct {
	executor *Executor
	sender   *fakeWhatsAppSender
	bookings *fakeBookings
	enqueuer *fakeEnqueuer
	bus      *events.InMemoryBus
}

func newExecutorFixture() *executorFixture {
	log := logger.New("test")
	f := &executorFixture{
		sender:   &fakeWhatsAppSender{},
		bookings: &fakeBookings{},
		enqueuer: &fakeEnqueuer{},
		bus:      events.NewInMemoryBus(log),
	}
	f.executor = NewExecutor(f.sender, f.bookings, f.enqueuer, f.bus, fakeFunnelConfig{}, log)
	return f
}

func TestExecuteEscalationNotifiesAdminOnce(t *testing.T) {
	f := newExecutorFixture()
	counter := newEventCounter(f.bus, "conversation.escalated")
	decision := RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionEscalateHot, Reply: "Connecting you with our team."},
		Path:     domain.PathMode1,
	}

	fresh := liveConversation(domain.StateQualifying)
	result := f.executor.Execute(context.Background(), fresh, decision, queue.ProcessMessagePayload{Text: "I want a human"})
	f.bus.Drain()

	if !result.Escalated || result.FinalState != domain.StateEscalated {
		t.Fatalf("result = %+v, want escalated/ESCALATED", result)
	}
	if counter.count("conversation.escalated") != 1 {
		t.Fatalf("admin notified %d times, want 1", counter.count("conversation.escalated"))
	}

	// A replay against an already-escalated conversation must stay quiet.
	already := liveConversation(domain.StateEscalated)
	f.executor.Execute(context.Background(), already, decision, queue.ProcessMessagePayload{})

	silenced := liveConversation(domain.StateQualifying)
	silenced.BotActive = false
	f.executor.Execute(context.Background(), silenced, decision, queue.ProcessMessagePayload{})

	f.bus.Drain()
	if counter.count("conversation.escalated") != 1 {
		t.Errorf("admin notified %d times after replays, want still 1", counter.count("conversation.escalated"))
	}
}

func TestExecuteEscalationDefaultReply(t *testing.T) {
	f := newExecutorFixture()
	result := f.executor.Execute(context.Background(), liveConversation(domain.StateQualifying),
		RoutedDecision{Decision: agent.Decision{Action: domain.ActionEscalateObjection}, Path: domain.PathMode2},
		queue.ProcessMessagePayload{})
	f.bus.Drain()

	if result.Reply == "" {
		t.Error("escalation without an agent reply left the parent hanging")
	}
}

func TestExecuteEscalationOffersSlotsFirst(t *testing.T) {
	f := newExecutorFixture()
	f.bookings.slots = []booking.Slot{{ID: "tue-5pm", Label: "Tuesday 5:00 PM"}}
	counter := newEventCounter(f.bus, "conversation.escalated")
	conv := liveConversation(domain.StateQualifying)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionEscalateObjection},
		Path:     domain.PathMode2,
	}, queue.ProcessMessagePayload{Text: "this is too expensive"})
	f.bus.Drain()

	if result.FinalState != domain.StateSlotSelection {
		t.Errorf("state = %s, want SLOT_SELECTION while slots exist", result.FinalState)
	}
	if result.Escalated {
		t.Error("escalated despite an open calendar")
	}
	if len(f.sender.lists) != 1 {
		t.Errorf("sent %d slot lists, want 1", len(f.sender.lists))
	}
	if counter.count("conversation.escalated") != 0 {
		t.Errorf("admin notified %d times, want 0 while slots exist", counter.count("conversation.escalated"))
	}
}

func TestExecuteLifecycleHintResolvesState(t *testing.T) {
	f := newExecutorFixture()
	conv := liveConversation(domain.StateQualifying)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{
			Action:    domain.ActionRespondAndQualify,
			Reply:     "No problem, I'll check back in a bit.",
			StateHint: "nurturing",
		},
		Path: domain.PathMode2,
	}, queue.ProcessMessagePayload{})

	if result.FinalState != domain.StateNurturing {
		t.Errorf("state = %s, want NURTURING from the lifecycle label", result.FinalState)
	}
}

func TestExecuteSharePricingUsesFAQCopy(t *testing.T) {
	f := newExecutorFixture()
	conv := liveConversation(domain.StateQualifying)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionSharePricing},
		Path:     domain.PathMode2,
	}, queue.ProcessMessagePayload{})
	if !strings.Contains(result.Reply, "1,999") {
		t.Errorf("empty pricing reply = %q, want the FAQ pricing copy", result.Reply)
	}

	agentCopy := "For your plan it's 1,499 per month."
	result = f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionSharePricing, Reply: agentCopy},
		Path:     domain.PathMode2,
	}, queue.ProcessMessagePayload{})
	if result.Reply != agentCopy {
		t.Errorf("agent pricing reply replaced: %q", result.Reply)
	}
}

func TestExecuteAppendsAssessmentLink(t *testing.T) {
	f := newExecutorFixture()
	conv := liveConversation(domain.StateQualifying)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{
			Action: domain.ActionSendAssessment,
			Reply:  "Here's our free reading assessment.",
		},
		Path: domain.PathMode2,
	}, queue.ProcessMessagePayload{})

	link := fakeFunnelConfig{}.GetAssessmentLink()
	if !strings.Contains(result.Reply, link) {
		t.Errorf("reply %q is missing the assessment link", result.Reply)
	}
	if result.FinalState != domain.StateAssessmentOffered {
		t.Errorf("state = %s, want ASSESSMENT_OFFERED", result.FinalState)
	}

	// A reply that already carries the link is left alone.
	withLink := "Assessment: " + link
	result = f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionSendAssessment, Reply: withLink},
		Path:     domain.PathMode2,
	}, queue.ProcessMessagePayload{})
	if strings.Count(result.Reply, link) != 1 {
		t.Errorf("link duplicated: %q", result.Reply)
	}
}

func TestExecuteEnterNurtureSchedulesFollowUp(t *testing.T) {
	f := newExecutorFixture()
	conv := liveConversation(domain.StateQualifying)

	before := time.Now()
	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionEnterNurture, Reply: "No rush! I'll check in later."},
		Path:     domain.PathMode2,
	}, queue.ProcessMessagePayload{})

	if result.FinalState != domain.StateNurturing {
		t.Errorf("state = %s, want NURTURING", result.FinalState)
	}
	if len(f.enqueuer.nurture) != 1 {
		t.Fatalf("scheduled %d follow-ups, want 1", len(f.enqueuer.nurture))
	}
	if f.enqueuer.nurture[0].Touch != 1 {
		t.Errorf("touch = %d, want 1", f.enqueuer.nurture[0].Touch)
	}
	if runAt := f.enqueuer.runAts[0]; runAt.Before(before.Add(nurtureFollowUpDelay - time.Minute)) {
		t.Errorf("follow-up scheduled at %v, want ~%v out", runAt, nurtureFollowUpDelay)
	}
}

func TestExecuteBookSlotUnavailableReoffers(t *testing.T) {
	f := newExecutorFixture()
	f.bookings.bookErr = booking.ErrSlotUnavailable
	f.bookings.slots = []booking.Slot{{ID: "thu-4pm", Label: "Thursday 4:00 PM"}}
	conv := liveConversation(domain.StateSlotSelection)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionBookDiscovery},
		Path:     domain.PathMode1,
	}, queue.ProcessMessagePayload{ReplyID: "slot_tue-5pm"})
	f.bus.Drain()

	if result.FinalState != domain.StateSlotSelection {
		t.Errorf("state = %s, want back in SLOT_SELECTION", result.FinalState)
	}
	if len(f.sender.lists) != 1 {
		t.Errorf("expected a fresh slot list, got %d", len(f.sender.lists))
	}
	if result.Escalated {
		t.Error("a full slot escalated instead of re-offering")
	}
}

func TestExecuteBookSlotHardFailureEscalates(t *testing.T) {
	f := newExecutorFixture()
	f.bookings.bookErr = errors.New("db down")
	counter := newEventCounter(f.bus, "conversation.escalated")
	conv := liveConversation(domain.StateSlotSelection)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionBookDiscovery},
		Path:     domain.PathMode1,
	}, queue.ProcessMessagePayload{ReplyID: "slot_tue-5pm"})
	f.bus.Drain()

	if !result.Escalated {
		t.Fatal("booking failure did not escalate")
	}
	if counter.count("conversation.escalated") != 1 {
		t.Errorf("admin notified %d times, want 1", counter.count("conversation.escalated"))
	}
}

func TestExecuteRescheduleWithoutActiveBookingBooksFresh(t *testing.T) {
	f := newExecutorFixture()
	f.bookings.rescheduleErr = booking.ErrNoActiveBooking
	f.bookings.booked = booking.Booking{SlotLabel: "Thursday 4:00 PM"}
	f.bookings.bookCreated = true
	conv := liveConversation(domain.StateSlotSelection)

	result := f.executor.Execute(context.Background(), conv, RoutedDecision{
		Decision: agent.Decision{Action: domain.ActionReschedule},
		Path:     domain.PathMode1,
	}, queue.ProcessMessagePayload{ReplyID: "slot_thu-4pm"})

	if f.bookings.bookCalls != 1 {
		t.Fatalf("fresh booking attempted %d times, want 1", f.bookings.bookCalls)
	}
	if result.FinalState != domain.StateBooked || result.ScoreBonus != domain.ScoreBooking {
		t.Errorf("result = %+v, want BOOKED with booking bonus", result)
	}
}

func TestFallbackTreeAlwaysAnswers(t *testing.T) {
	tree := NewFallbackTree(fakeFunnelConfig{})
	states := []domain.State{
		domain.StateGreeting, domain.StateQualifying, domain.StateAssessmentOffered,
		domain.StateDiscoveryOffered, domain.StateSlotSelection, domain.StateBooked,
		domain.StateNurturing, domain.StateEscalated, domain.StateCompleted,
	}
	intents := []domain.Intent{
		domain.IntentGreeting, domain.IntentFAQ, domain.IntentBooking,
		domain.IntentSlotSelection, domain.IntentAssessment, domain.IntentEscalation,
		domain.IntentReschedule, domain.IntentQualification, domain.IntentUnknown,
	}

	for _, state := range states {
		for _, intent := range intents {
			conv := liveConversation(state)
			decision := tree.Decide(conv, ClassifiedIntent{Intent: intent}, "", "")

			if !domain.IsKnownAction(decision.Action) {
				t.Errorf("state=%s intent=%s: unknown action %q", state, intent, decision.Action)
			}
			// Slot selection replies come from the booking flow instead.
			if decision.Reply == "" && intent != domain.IntentSlotSelection {
				t.Errorf("state=%s intent=%s: empty reply", state, intent)
			}
		}
	}
}

func TestFallbackQualifyingQuestionOrder(t *testing.T) {
	tree := NewFallbackTree(fakeFunnelConfig{})
	conv := liveConversation(domain.StateQualifying)

	steps := []struct {
		have map[string]string
		want string
	}{
		{map[string]string{}, "child's name"},
		{map[string]string{domain.DataChildName: "Aarav"}, "how old"},
		{map[string]string{domain.DataChildName: "Aarav", domain.DataChildAge: "7"}, "help with"},
		{map[string]string{domain.DataChildName: "Aarav", domain.DataChildAge: "7", domain.DataConcern: "fluency"}, "city"},
		{map[string]string{domain.DataChildName: "Aarav", domain.DataChildAge: "7", domain.DataConcern: "fluency", domain.DataCity: "Pune"}, "assessment"},
	}

	for i, step := range steps {
		conv.CollectedData = step.have
		decision := tree.Decide(conv, ClassifiedIntent{Intent: domain.IntentQualification}, "", "")
		if !strings.Contains(decision.Reply, step.want) {
			t.Errorf("step %d: reply %q does not ask about %q", i, decision.Reply, step.want)
		}
	}
}

func TestFallbackFAQLookup(t *testing.T) {
	tree := NewFallbackTree(fakeFunnelConfig{})
	conv := liveConversation(domain.StateGreeting)

	byID := tree.Decide(conv, ClassifiedIntent{Intent: domain.IntentFAQ}, "faq_pricing", "")
	if byID.Action != domain.ActionFAQ || !strings.Contains(byID.Reply, "1,999") {
		t.Errorf("faq_pricing reply = %q", byID.Reply)
	}

	byText := tree.Decide(conv, ClassifiedIntent{Intent: domain.IntentFAQ}, "", "how much does it cost")
	if byText.Action != domain.ActionFAQ {
		t.Errorf("text pricing question routed to %s", byText.Action)
	}

	unknown := tree.Decide(conv, ClassifiedIntent{Intent: domain.IntentFAQ}, "", "do you teach klingon")
	if unknown.Action != domain.ActionRespondAndQualify {
		t.Errorf("unanswerable FAQ routed to %s, want a qualify nudge", unknown.Action)
	}
}
