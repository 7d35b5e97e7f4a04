// Package repository provides data access for conversations, messages,
// the lead projection, and the decision log.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadchat_backend/internal/conversation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrConversationNotFound is returned when no conversation exists for
	// the given id or sender.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDuplicateMessage is returned when a provider message id has
	// already been stored. Callers treat it as "already processed".
	ErrDuplicateMessage = errors.New("duplicate provider message id")
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// Conversation is the per-sender funnel state row.
type Conversation struct {
	ID            uuid.UUID
	Sender        string
	ContactName   string
	State         domain.State
	CollectedData map[string]string
	LeadScore     int
	BotActive     bool
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is one stored inbound or outbound chat message.
type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Direction         string // inbound | outbound
	SenderType        string // user | bot | admin
	Content           string
	MessageType       string // text | buttons | list | interactive
	ProviderMessageID *string
	Metadata          MessageMetadata
	DeliveryStatus    *string
	CreatedAt         time.Time
}

// MessageMetadata records how a turn was classified and routed.
type MessageMetadata struct {
	Intent       string  `json:"intent,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Tier         *int    `json:"tier,omitempty"`
	Transition   string  `json:"transition,omitempty"`
	DecisionPath string  `json:"decisionPath,omitempty"`
	ReplyID      string  `json:"replyId,omitempty"`
}

// Repository provides conversation data access backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a conversation repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const conversationColumns = `
	id, sender, contact_name, state, collected_data, lead_score,
	bot_active, last_message_at, created_at, updated_at`

// GetOrCreate looks up the conversation for a normalized sender, creating
// it in the initial state when absent. A unique violation on create means
// another request already created it, so the existing row is re-read.
func (r *Repository) GetOrCreate(ctx context.Context, sender, contactName string) (Conversation, error) {
	conv, err := r.GetBySender(ctx, sender)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return Conversation{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, sender, contact_name, state, collected_data, lead_score, bot_active, last_message_at)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, 0, true, now())
		RETURNING `+conversationColumns,
		uuid.New(), sender, contactName, domain.InitialState)

	conv, err = scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if isUniqueViolation(err) {
		return r.GetBySender(ctx, sender)
	}
	return Conversation{}, err
}

// GetBySender returns the conversation for a normalized sender address.
func (r *Repository) GetBySender(ctx context.Context, sender string) (Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE sender = $1`, sender)
	return scanConversation(row)
}

// GetByID returns the conversation by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// UpdateState transitions the conversation, merges newly collected data
// into the open key/value map, and applies the lead-score delta.
// Last write wins under concurrent turns; the consumer re-reads live
// state at the start of each job to narrow that window.
func (r *Repository) UpdateState(ctx context.Context, id uuid.UUID, state domain.State, collected map[string]string, scoreDelta int) error {
	merged := collected
	if merged == nil {
		merged = map[string]string{}
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET state = $2,
		    collected_data = collected_data || $3::jsonb,
		    lead_score = lead_score + $4,
		    last_message_at = now(),
		    updated_at = now()
		WHERE id = $1`, id, state, data, scoreDelta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// SetBotActive flips the human-takeover switch. bot_active=false means the
// engine must not act on this conversation again.
func (r *Repository) SetBotActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET bot_active = $2, updated_at = now()
		WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// InsertInbound stores an inbound message. The unique constraint on
// provider_message_id is the dedup guarantee: a second delivery of the
// same provider id returns ErrDuplicateMessage even under concurrent
// duplicate deliveries.
func (r *Repository) InsertInbound(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.New()
	msg.Direction = "inbound"
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return Message{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, direction, sender_type, content, message_type, provider_message_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Direction, msg.SenderType,
		msg.Content, msg.MessageType, msg.ProviderMessageID, meta)

	if err := row.Scan(&msg.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Message{}, ErrDuplicateMessage
		}
		return Message{}, err
	}
	return msg, nil
}

// AppendOutbound stores a bot or admin reply after a handler produced it.
func (r *Repository) AppendOutbound(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.New()
	msg.Direction = "outbound"
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return Message{}, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, direction, sender_type, content, message_type, provider_message_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Direction, msg.SenderType,
		msg.Content, msg.MessageType, msg.ProviderMessageID, meta)

	if err := row.Scan(&msg.CreatedAt); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// UpdateDeliveryStatus records a provider delivery-status event against
// the message it refers to. Best-effort bookkeeping: a status for an
// unknown message id is not an error.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages SET delivery_status = $2
		WHERE provider_message_id = $1`, providerMessageID, status)
	return err
}

// RecentMessages returns the newest n messages for agent context,
// oldest first.
func (r *Repository) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, direction, sender_type, content, message_type, provider_message_id, metadata, delivery_status, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var meta []byte
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Direction, &msg.SenderType,
			&msg.Content, &msg.MessageType, &msg.ProviderMessageID, &meta,
			&msg.DeliveryStatus, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &msg.Metadata)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var conv Conversation
	var data []byte
	err := row.Scan(
		&conv.ID, &conv.Sender, &conv.ContactName, &conv.State, &data,
		&conv.LeadScore, &conv.BotActive, &conv.LastMessageAt,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	conv.CollectedData = map[string]string{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &conv.CollectedData)
	}
	return conv, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
