// Package booking provides discovery-call slots and bookings.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSlotUnavailable means the slot is full or no longer offered.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrNoActiveBooking means the conversation has nothing to reschedule.
	ErrNoActiveBooking = errors.New("no active booking")
)

// Slot is one bookable discovery-call window.
type Slot struct {
	ID       string
	Label    string
	StartsAt time.Time
	Capacity int
	Booked   int
}

// Booking is a confirmed discovery call.
type Booking struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Sender         string
	ContactName    string
	SlotID         string
	SlotLabel      string
	Status         string // active | cancelled
	CreatedAt      time.Time
}

// Repository provides slot and booking data access backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AvailableSlots returns upcoming slots with free capacity, soonest first.
func (r *Repository) AvailableSlots(ctx context.Context, limit int) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, label, starts_at, capacity, booked
		FROM discovery_slots
		WHERE starts_at > now() AND booked < capacity AND active
		ORDER BY starts_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.Label, &s.StartsAt, &s.Capacity, &s.Booked); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// GetActiveBooking returns the conversation's active booking, if any.
func (r *Repository) GetActiveBooking(ctx context.Context, conversationID uuid.UUID) (Booking, error) {
	var b Booking
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender, contact_name, slot_id, slot_label, status, created_at
		FROM bookings
		WHERE conversation_id = $1 AND status = 'active'`, conversationID).Scan(
		&b.ID, &b.ConversationID, &b.Sender, &b.ContactName, &b.SlotID, &b.SlotLabel, &b.Status, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNoActiveBooking
	}
	return b, err
}

// CreateBooking claims a seat on the slot and records the booking in one
// transaction. The conditional UPDATE is the capacity guard under
// concurrent claims.
func (r *Repository) CreateBooking(ctx context.Context, b Booking) (Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Booking{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var slotLabel string
	err = tx.QueryRow(ctx, `
		UPDATE discovery_slots
		SET booked = booked + 1
		WHERE id = $1 AND booked < capacity AND active AND starts_at > now()
		RETURNING label`, b.SlotID).Scan(&slotLabel)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrSlotUnavailable
	}
	if err != nil {
		return Booking{}, err
	}

	b.SlotLabel = slotLabel
	b.Status = "active"
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (conversation_id, sender, contact_name, slot_id, slot_label, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		b.ConversationID, b.Sender, b.ContactName, b.SlotID, b.SlotLabel, b.Status,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// CancelBooking marks the booking cancelled and frees its seat.
func (r *Repository) CancelBooking(ctx context.Context, bookingID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var slotID string
	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled'
		WHERE id = $1 AND status = 'active'
		RETURNING slot_id`, bookingID).Scan(&slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoActiveBooking
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE discovery_slots
		SET booked = GREATEST(booked - 1, 0)
		WHERE id = $1`, slotID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
