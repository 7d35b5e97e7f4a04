package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"leadchat_backend/internal/events"
	"leadchat_backend/platform/logger"
)

type fakeBookingStore struct {
	mu        sync.Mutex
	active    *Booking
	slots     []Slot
	created   []Booking
	canceled  []uuid.UUID
	createErr error
}

func (s *fakeBookingStore) AvailableSlots(context.Context, int) ([]Slot, error) {
	return s.slots, nil
}

func (s *fakeBookingStore) GetActiveBooking(context.Context, uuid.UUID) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Booking{}, ErrNoActiveBooking
	}
	return *s.active, nil
}

func (s *fakeBookingStore) CreateBooking(_ context.Context, b Booking) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Booking{}, s.createErr
	}
	b.ID = uuid.New()
	b.Status = "active"
	b.SlotLabel = "Label for " + b.SlotID
	s.created = append(s.created, b)
	s.active = &b
	return b, nil
}

func (s *fakeBookingStore) CancelBooking(_ context.Context, bookingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, bookingID)
	s.active = nil
	return nil
}

func newBookingService(store Store) (*Service, *events.InMemoryBus) {
	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	return NewService(store, bus, log), bus
}

func TestBookCreatesAndPublishes(t *testing.T) {
	store := &fakeBookingStore{}
	svc, bus := newBookingService(store)

	var published int
	var mu sync.Mutex
	bus.Subscribe("booking.created", events.HandlerFunc(func(context.Context, events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		published++
		return nil
	}))

	convID := uuid.New()
	booked, created, err := svc.Book(context.Background(), convID, "919876543210", "Priya", "tue-5pm")
	if err != nil {
		t.Fatal(err)
	}
	bus.Drain()

	if !created {
		t.Error("fresh booking reported as existing")
	}
	if booked.SlotID != "tue-5pm" || booked.Status != "active" {
		t.Errorf("booked = %+v", booked)
	}
	mu.Lock()
	defer mu.Unlock()
	if published != 1 {
		t.Errorf("booking.created published %d times, want 1", published)
	}
}

func TestBookIsIdempotentPerConversation(t *testing.T) {
	existing := Booking{ID: uuid.New(), SlotID: "tue-5pm", SlotLabel: "Tuesday 5:00 PM", Status: "active"}
	store := &fakeBookingStore{active: &existing}
	svc, bus := newBookingService(store)

	booked, created, err := svc.Book(context.Background(), uuid.New(), "919876543210", "Priya", "wed-6pm")
	if err != nil {
		t.Fatal(err)
	}
	bus.Drain()

	if created {
		t.Error("replayed booking reported as newly created")
	}
	if booked.ID != existing.ID {
		t.Errorf("got booking %s, want the existing one %s", booked.ID, existing.ID)
	}
	if len(store.created) != 0 {
		t.Errorf("replay created %d extra bookings", len(store.created))
	}
}

func TestBookSurfacesSlotUnavailable(t *testing.T) {
	store := &fakeBookingStore{createErr: ErrSlotUnavailable}
	svc, _ := newBookingService(store)

	_, _, err := svc.Book(context.Background(), uuid.New(), "919876543210", "Priya", "tue-5pm")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("err = %v, want ErrSlotUnavailable", err)
	}
}

func TestRescheduleMovesTheBooking(t *testing.T) {
	existing := Booking{ID: uuid.New(), SlotID: "tue-5pm", Status: "active"}
	store := &fakeBookingStore{active: &existing}
	svc, bus := newBookingService(store)

	moved, err := svc.Reschedule(context.Background(), uuid.New(), "919876543210", "Priya", "wed-6pm")
	if err != nil {
		t.Fatal(err)
	}
	bus.Drain()

	if len(store.canceled) != 1 || store.canceled[0] != existing.ID {
		t.Errorf("canceled = %v, want the old booking %s", store.canceled, existing.ID)
	}
	if moved.SlotID != "wed-6pm" {
		t.Errorf("moved to %s, want wed-6pm", moved.SlotID)
	}
}

func TestRescheduleWithoutBookingFails(t *testing.T) {
	svc, _ := newBookingService(&fakeBookingStore{})

	_, err := svc.Reschedule(context.Background(), uuid.New(), "919876543210", "Priya", "wed-6pm")
	if !errors.Is(err, ErrNoActiveBooking) {
		t.Errorf("err = %v, want ErrNoActiveBooking", err)
	}
}
