package repository

import (
	"context"

	"leadchat_backend/internal/conversation/domain"

	"github.com/google/uuid"
)

// DecisionRecord is one append-only entry in the agent decision log.
// Records are write-only and never mutated.
type DecisionRecord struct {
	ConversationID uuid.UUID
	Path           domain.DecisionPath
	Action         domain.Action
	Confidence     float64
	Reasoning      string
	InputSummary   string
	LatencyMs      int64
}

// AppendDecision writes a decision-log entry. Fire-and-forget callers
// swallow the error after logging it.
func (r *Repository) AppendDecision(ctx context.Context, rec DecisionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO decision_log (id, conversation_id, decision_path, action, confidence, reasoning, input_summary, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), rec.ConversationID, rec.Path, rec.Action,
		rec.Confidence, rec.Reasoning, rec.InputSummary, rec.LatencyMs)
	return err
}
