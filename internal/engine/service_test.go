package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"leadchat_backend/internal/agent"
	"leadchat_backend/internal/booking"
	"leadchat_backend/internal/conversation/domain"
	"leadchat_backend/internal/conversation/repository"
	"leadchat_backend/internal/events"
	"leadchat_backend/internal/queue"
	"leadchat_backend/internal/whatsapp"
	"leadchat_backend/platform/logger"
)

// --- fakes shared by the engine tests ---

type stateUpdate struct {
	state      domain.State
	collected  map[string]string
	scoreDelta int
}

type fakeStore struct {
	conv         repository.Conversation
	getErr       error
	updates      []stateUpdate
	botActiveSet []bool
	outbound     []repository.Message
	leads        []repository.Lead
	decisions    []repository.DecisionRecord
	history      []repository.Message
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (repository.Conversation, error) {
	if s.getErr != nil {
		return repository.Conversation{}, s.getErr
	}
	return s.conv, nil
}

func (s *fakeStore) UpdateState(_ context.Context, _ uuid.UUID, state domain.State, collected map[string]string, scoreDelta int) error {
	s.updates = append(s.updates, stateUpdate{state: state, collected: collected, scoreDelta: scoreDelta})
	return nil
}

func (s *fakeStore) SetBotActive(_ context.Context, _ uuid.UUID, active bool) error {
	s.botActiveSet = append(s.botActiveSet, active)
	return nil
}

func (s *fakeStore) AppendOutbound(_ context.Context, msg repository.Message) (repository.Message, error) {
	msg.ID = uuid.New()
	s.outbound = append(s.outbound, msg)
	return msg, nil
}

func (s *fakeStore) RecentMessages(context.Context, uuid.UUID, int) ([]repository.Message, error) {
	return s.history, nil
}

func (s *fakeStore) UpsertLead(_ context.Context, lead repository.Lead) error {
	s.leads = append(s.leads, lead)
	return nil
}

func (s *fakeStore) AppendDecision(_ context.Context, rec repository.DecisionRecord) error {
	s.decisions = append(s.decisions, rec)
	return nil
}

type fakeLimiter struct {
	allowed bool
	calls   int
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, error) {
	l.calls++
	return l.allowed, nil
}

type fakeWhatsAppSender struct {
	texts   []string
	buttons []string
	lists   []string
	rows    [][]whatsapp.ListRow
}

func (s *fakeWhatsAppSender) SendText(_ context.Context, _, body string) error {
	s.texts = append(s.texts, body)
	return nil
}

func (s *fakeWhatsAppSender) SendButtons(_ context.Context, _, body string, _ []whatsapp.Button) error {
	s.buttons = append(s.buttons, body)
	return nil
}

func (s *fakeWhatsAppSender) SendList(_ context.Context, _, body, _ string, rows []whatsapp.ListRow) error {
	s.lists = append(s.lists, body)
	s.rows = append(s.rows, rows)
	return nil
}

type fakeBookings struct {
	slots         []booking.Slot
	slotsErr      error
	booked        booking.Booking
	bookCreated   bool
	bookErr       error
	rescheduled   booking.Booking
	rescheduleErr error
	bookCalls     int
}

func (b *fakeBookings) OfferSlots(context.Context) ([]booking.Slot, error) {
	return b.slots, b.slotsErr
}

func (b *fakeBookings) Book(_ context.Context, _ uuid.UUID, _, _, slotID string) (booking.Booking, bool, error) {
	b.bookCalls++
	if b.bookErr != nil {
		return booking.Booking{}, false, b.bookErr
	}
	booked := b.booked
	booked.SlotID = slotID
	return booked, b.bookCreated, nil
}

func (b *fakeBookings) Reschedule(_ context.Context, _ uuid.UUID, _, _, newSlotID string) (booking.Booking, error) {
	if b.rescheduleErr != nil {
		return booking.Booking{}, b.rescheduleErr
	}
	moved := b.rescheduled
	moved.SlotID = newSlotID
	return moved, nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	nurture  []queue.NurtureFollowUpPayload
	runAts   []time.Time
	enqueued []queue.ProcessMessagePayload
}

func (f *fakeEnqueuer) EnqueueProcessMessage(_ context.Context, p queue.ProcessMessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, p)
	return nil
}

func (f *fakeEnqueuer) ScheduleNurtureFollowUp(_ context.Context, p queue.NurtureFollowUpPayload, runAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nurture = append(f.nurture, p)
	f.runAts = append(f.runAts, runAt)
	return nil
}

// eventCounter counts events by name, safely across the bus's handler
// goroutines.
type eventCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newEventCounter(bus *events.InMemoryBus, names ...string) *eventCounter {
	c := &eventCounter{counts: make(map[string]int)}
	for _, name := range names {
		bus.Subscribe(name, events.HandlerFunc(func(_ context.Context, e events.Event) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.counts[e.EventName()]++
			return nil
		}))
	}
	return c
}

func (c *eventCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

type engineFixture struct {
	service  *Service
	store    *fakeStore
	limiter  *fakeLimiter
	sender   *fakeWhatsAppSender
	bookings *fakeBookings
	enqueuer *fakeEnqueuer
	bus      *events.InMemoryBus
	tier1    *fakeTier1
}

func newEngineFixture(conv repository.Conversation) *engineFixture {
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)

	f := &engineFixture{
		store:    &fakeStore{conv: conv},
		limiter:  &fakeLimiter{allowed: true},
		sender:   &fakeWhatsAppSender{},
		bookings: &fakeBookings{},
		enqueuer: &fakeEnqueuer{},
		bus:      bus,
		tier1:    &fakeTier1{},
	}

	fallback := NewFallbackTree(fakeFunnelConfig{})
	executor := NewExecutor(f.sender, f.bookings, f.enqueuer, bus, fakeFunnelConfig{}, log)
	f.service = NewService(
		f.store,
		f.limiter,
		NewClassifier(f.tier1, log),
		NewRouter(nil, fallback, log),
		executor,
		bus,
		log,
	)
	return f
}

func liveConversation(state domain.State) repository.Conversation {
	return repository.Conversation{
		ID:            uuid.New(),
		Sender:        "919876543210",
		ContactName:   "Priya",
		State:         state,
		CollectedData: map[string]string{},
		BotActive:     true,
	}
}

// --- pipeline tests ---

func TestProcessEscalatesWhenNoSlots(t *testing.T) {
	conv := liveConversation(domain.StateQualifying)
	f := newEngineFixture(conv)
	counter := newEventCounter(f.bus, "conversation.escalated")

	outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		ReplyID:        ReplyBookDiscovery,
		Text:           "Book a call",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Drain()

	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(f.sender.texts) != 1 {
		t.Fatalf("sent %d texts, want 1 apology", len(f.sender.texts))
	}
	if len(f.store.updates) != 1 || f.store.updates[0].state != domain.StateEscalated {
		t.Errorf("state updates = %+v, want one update to ESCALATED", f.store.updates)
	}
	if len(f.store.botActiveSet) != 1 || f.store.botActiveSet[0] != false {
		t.Errorf("bot deactivation calls = %v, want exactly one SetBotActive(false)", f.store.botActiveSet)
	}
	if got := counter.count("conversation.escalated"); got != 1 {
		t.Errorf("escalation notified %d times, want exactly 1", got)
	}
}

func TestProcessOffersSlotsWhenAvailable(t *testing.T) {
	conv := liveConversation(domain.StateQualifying)
	f := newEngineFixture(conv)
	f.bookings.slots = []booking.Slot{
		{ID: "tue-5pm", Label: "Tuesday 5:00 PM"},
		{ID: "wed-6pm", Label: "Wednesday 6:00 PM"},
	}
	counter := newEventCounter(f.bus, "conversation.escalated")

	outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		ReplyID:        ReplyBookDiscovery,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Drain()

	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(f.sender.lists) != 1 {
		t.Fatalf("sent %d slot lists, want 1", len(f.sender.lists))
	}
	if rows := f.sender.rows[0]; len(rows) != 2 || rows[0].ID != "slot_tue-5pm" {
		t.Errorf("slot rows = %+v, want slot_-prefixed ids", rows)
	}
	if f.store.updates[0].state != domain.StateSlotSelection {
		t.Errorf("state = %s, want SLOT_SELECTION", f.store.updates[0].state)
	}
	if counter.count("conversation.escalated") != 0 {
		t.Error("escalated despite slots being available")
	}
}

func TestProcessBooksSelectedSlot(t *testing.T) {
	conv := liveConversation(domain.StateSlotSelection)
	f := newEngineFixture(conv)
	f.bookings.booked = booking.Booking{SlotLabel: "Tuesday 5:00 PM"}
	f.bookings.bookCreated = true

	outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		ReplyID:        "slot_tue-5pm",
		Text:           "Tuesday 5:00 PM",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Drain()

	if outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s, want processed", outcome)
	}
	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "Tuesday 5:00 PM") {
		t.Errorf("confirmation texts = %v", f.sender.texts)
	}
	update := f.store.updates[0]
	if update.state != domain.StateBooked {
		t.Errorf("state = %s, want BOOKED", update.state)
	}
	if update.scoreDelta != domain.ScoreBooking {
		t.Errorf("score delta = %d, want booking bonus %d", update.scoreDelta, domain.ScoreBooking)
	}
}

func TestProcessReplayedBookingEarnsNoBonus(t *testing.T) {
	conv := liveConversation(domain.StateSlotSelection)
	f := newEngineFixture(conv)
	f.bookings.booked = booking.Booking{SlotLabel: "Tuesday 5:00 PM"}
	f.bookings.bookCreated = false // idempotent replay: booking already existed

	_, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		ReplyID:        "slot_tue-5pm",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Drain()

	if delta := f.store.updates[0].scoreDelta; delta != 0 {
		t.Errorf("replayed booking scored %d, want 0", delta)
	}
}

func TestProcessSkipsWhenBotInactive(t *testing.T) {
	conv := liveConversation(domain.StateQualifying)
	conv.BotActive = false
	f := newEngineFixture(conv)

	outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		Text:           "hello?",
	})
	if err != nil {
		t.Fatal(err)
	}

	if outcome != OutcomeSkipped {
		t.Fatalf("outcome = %s, want skipped", outcome)
	}
	if f.limiter.calls != 0 {
		t.Error("rate limiter consulted for an inactive conversation")
	}
	if len(f.sender.texts)+len(f.sender.buttons)+len(f.sender.lists) != 0 {
		t.Error("inactive conversation produced outbound messages")
	}
}

func TestProcessSkipsClosedConversations(t *testing.T) {
	for _, state := range []domain.State{domain.StateEscalated, domain.StateCompleted} {
		conv := liveConversation(state)
		f := newEngineFixture(conv)

		outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
			ConversationID: conv.ID.String(),
			Sender:         conv.Sender,
			Text:           "anyone there?",
		})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeSkipped {
			t.Errorf("state %s: outcome = %s, want skipped", state, outcome)
		}
	}
}

func TestProcessBookedConversationReopens(t *testing.T) {
	// BOOKED is terminal for nurture purposes but a parent asking to
	// reschedule must still get through.
	conv := liveConversation(domain.StateBooked)
	f := newEngineFixture(conv)
	f.bookings.slots = []booking.Slot{{ID: "wed-6pm", Label: "Wednesday 6:00 PM"}}

	outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		Text:           "can we reschedule the call",
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeProcessed {
		t.Errorf("outcome = %s, want processed", outcome)
	}
	if len(f.sender.lists) != 1 {
		t.Errorf("expected the slot picker, got texts=%v lists=%v", f.sender.texts, f.sender.lists)
	}
}

func TestProcessRateLimitStopsBeforeClassification(t *testing.T) {
	conv := liveConversation(domain.StateQualifying)
	f := newEngineFixture(conv)
	f.limiter.allowed = false

	outcome, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		Text:           "free text that would need the model",
	})
	if err != nil {
		t.Fatal(err)
	}

	if outcome != OutcomeRateLimited {
		t.Fatalf("outcome = %s, want rate_limited", outcome)
	}
	if f.tier1.calls != 0 {
		t.Error("classifier invoked for a rate-limited message; AI spend must be gated")
	}
	if len(f.sender.texts) != 1 || !strings.Contains(f.sender.texts[0], "message again") {
		t.Errorf("rate-limited sender got texts %v, want one retry-later reply", f.sender.texts)
	}
	if len(f.store.outbound) != 0 {
		t.Error("rate-limited turn was persisted as a handled message")
	}
}

func TestProcessPublishesLeadQualified(t *testing.T) {
	conv := liveConversation(domain.StateQualifying)
	conv.LeadScore = 30
	conv.CollectedData = map[string]string{
		domain.DataParentName: "Priya",
		domain.DataChildName:  "Aarav",
		domain.DataChildAge:   "7",
	}
	f := newEngineFixture(conv)
	f.tier1.result = agent.Classification{
		Intent:     domain.IntentQualification,
		Confidence: 0.75,
		Extracted:  map[string]string{domain.DataConcern: "fluency"},
	}
	counter := newEventCounter(f.bus, "leads.lead.qualified", "leads.lead.upserted")

	_, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		Text:           "mostly fluency, he stumbles on long words",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Drain()

	if len(f.store.leads) != 1 {
		t.Fatalf("lead upserted %d times, want 1", len(f.store.leads))
	}
	lead := f.store.leads[0]
	if lead.Score != 45 {
		t.Errorf("lead score = %d, want 45 (30 + concern bonus)", lead.Score)
	}
	if lead.ContactName != "Priya" {
		t.Errorf("lead contact name = %q, want parent name", lead.ContactName)
	}
	if counter.count("leads.lead.qualified") != 1 {
		t.Errorf("lead.qualified published %d times, want 1 on threshold crossing", counter.count("leads.lead.qualified"))
	}
	if counter.count("leads.lead.upserted") != 1 {
		t.Errorf("lead.upserted published %d times, want 1", counter.count("leads.lead.upserted"))
	}
}

func TestProcessRecordsDecision(t *testing.T) {
	conv := liveConversation(domain.StateGreeting)
	f := newEngineFixture(conv)

	_, err := f.service.Process(context.Background(), queue.ProcessMessagePayload{
		ConversationID: conv.ID.String(),
		Sender:         conv.Sender,
		Text:           "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Drain()

	if len(f.store.decisions) != 1 {
		t.Fatalf("decision log has %d entries, want 1", len(f.store.decisions))
	}
	rec := f.store.decisions[0]
	if rec.Path != domain.PathMode1 {
		t.Errorf("decision path = %s, want mode1 for a greeting", rec.Path)
	}
	if rec.Action != domain.ActionGreeting {
		t.Errorf("decision action = %s, want GREETING", rec.Action)
	}
	if rec.InputSummary != "hi" {
		t.Errorf("input summary = %q", rec.InputSummary)
	}
}

func TestProcessMessageSkipsRetryForMissingConversation(t *testing.T) {
	f := newEngineFixture(repository.Conversation{})
	f.store.getErr = repository.ErrConversationNotFound

	err := f.service.ProcessMessage(context.Background(), queue.ProcessMessagePayload{
		ConversationID: uuid.NewString(),
	})
	if err == nil {
		t.Fatal("expected an error for a missing conversation")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Error("missing conversation should not be retried")
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		t.Error("original cause lost from the error chain")
	}
}

func TestProcessNurtureFollowUp(t *testing.T) {
	t.Run("sends touch and schedules the next", func(t *testing.T) {
		conv := liveConversation(domain.StateNurturing)
		f := newEngineFixture(conv)

		err := f.service.ProcessNurtureFollowUp(context.Background(), queue.NurtureFollowUpPayload{
			ConversationID: conv.ID.String(),
			Sender:         conv.Sender,
			Touch:          1,
		})
		if err != nil {
			t.Fatal(err)
		}
		f.bus.Drain()

		if len(f.sender.buttons) != 1 {
			t.Fatalf("nurture touch sent %d button messages, want 1 testimonial", len(f.sender.buttons))
		}
		if len(f.enqueuer.nurture) != 1 || f.enqueuer.nurture[0].Touch != 2 {
			t.Errorf("scheduled %+v, want touch 2", f.enqueuer.nurture)
		}
	})

	t.Run("final touch schedules nothing", func(t *testing.T) {
		conv := liveConversation(domain.StateNurturing)
		f := newEngineFixture(conv)

		err := f.service.ProcessNurtureFollowUp(context.Background(), queue.NurtureFollowUpPayload{
			ConversationID: conv.ID.String(),
			Sender:         conv.Sender,
			Touch:          maxNurtureTouches,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(f.enqueuer.nurture) != 0 {
			t.Errorf("scheduled %+v after the final touch", f.enqueuer.nurture)
		}
	})

	t.Run("left nurture track is a no-op", func(t *testing.T) {
		conv := liveConversation(domain.StateBooked)
		f := newEngineFixture(conv)

		err := f.service.ProcessNurtureFollowUp(context.Background(), queue.NurtureFollowUpPayload{
			ConversationID: conv.ID.String(),
			Sender:         conv.Sender,
			Touch:          1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(f.sender.texts)+len(f.sender.buttons) != 0 {
			t.Error("nurture touch sent to a conversation that moved on")
		}
	})
}
