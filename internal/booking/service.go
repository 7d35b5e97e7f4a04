package booking

import (
	"context"
	"errors"

	"leadchat_backend/internal/events"
	"leadchat_backend/platform/logger"

	"github.com/google/uuid"
)

// Slots are offered three at a time in the slot picker.
const slotOfferCount = 3

// Store is the persistence surface the service needs; the engine's tests
// substitute a fake.
type Store interface {
	AvailableSlots(ctx context.Context, limit int) ([]Slot, error)
	GetActiveBooking(ctx context.Context, conversationID uuid.UUID) (Booking, error)
	CreateBooking(ctx context.Context, b Booking) (Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) error
}

// Service coordinates slot offers, booking, and rescheduling.
type Service struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
}

func NewService(store Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// OfferSlots returns the next bookable slots. An empty result is a normal
// outcome, not an error; the caller escalates.
func (s *Service) OfferSlots(ctx context.Context) ([]Slot, error) {
	return s.store.AvailableSlots(ctx, slotOfferCount)
}

// Book claims a slot for the conversation. Booking is idempotent per
// conversation: an existing active booking is returned as-is so replayed
// jobs cannot double-book.
func (s *Service) Book(ctx context.Context, conversationID uuid.UUID, sender, contactName, slotID string) (Booking, bool, error) {
	if existing, err := s.store.GetActiveBooking(ctx, conversationID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNoActiveBooking) {
		return Booking{}, false, err
	}

	created, err := s.store.CreateBooking(ctx, Booking{
		ConversationID: conversationID,
		Sender:         sender,
		ContactName:    contactName,
		SlotID:         slotID,
	})
	if err != nil {
		return Booking{}, false, err
	}

	s.bus.Publish(ctx, events.BookingCreated{
		BaseEvent:      events.NewBaseEvent(),
		BookingID:      created.ID,
		ConversationID: conversationID,
		Sender:         sender,
		ContactName:    contactName,
		SlotID:         created.SlotID,
		SlotLabel:      created.SlotLabel,
	})
	s.log.Info("discovery call booked", "conversationId", conversationID, "slotId", created.SlotID)

	return created, true, nil
}

// Reschedule cancels the active booking and claims the new slot. When the
// new slot cannot be claimed the old booking is already released; the
// caller re-offers slots rather than trying to restore it.
func (s *Service) Reschedule(ctx context.Context, conversationID uuid.UUID, sender, contactName, newSlotID string) (Booking, error) {
	existing, err := s.store.GetActiveBooking(ctx, conversationID)
	if err != nil {
		return Booking{}, err
	}

	if err := s.store.CancelBooking(ctx, existing.ID); err != nil {
		return Booking{}, err
	}

	created, err := s.store.CreateBooking(ctx, Booking{
		ConversationID: conversationID,
		Sender:         sender,
		ContactName:    contactName,
		SlotID:         newSlotID,
	})
	if err != nil {
		return Booking{}, err
	}

	s.bus.Publish(ctx, events.BookingRescheduled{
		BaseEvent:      events.NewBaseEvent(),
		BookingID:      created.ID,
		ConversationID: conversationID,
		OldSlotID:      existing.SlotID,
		NewSlotID:      created.SlotID,
		NewSlotLabel:   created.SlotLabel,
	})
	s.log.Info("discovery call rescheduled", "conversationId", conversationID, "from", existing.SlotID, "to", created.SlotID)

	return created, nil
}
