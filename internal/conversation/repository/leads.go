package repository

import (
	"context"
	"encoding/json"
	"time"

	"leadchat_backend/internal/conversation/domain"
)

// Lead is the denormalized projection of a conversation's qualification
// data, keyed by sender address and consumed by downstream sales tooling.
type Lead struct {
	Sender      string
	ContactName string
	Status      domain.LifecycleStage
	Collected   map[string]string
	Score       int
	UpdatedAt   time.Time
}

// UpsertLead writes the lead projection after a turn advanced
// qualification. The sender address is the natural key.
func (r *Repository) UpsertLead(ctx context.Context, lead Lead) error {
	collected := lead.Collected
	if collected == nil {
		collected = map[string]string{}
	}
	data, err := json.Marshal(collected)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (sender, contact_name, status, collected_data, score, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (sender) DO UPDATE SET
			contact_name = EXCLUDED.contact_name,
			status = EXCLUDED.status,
			collected_data = leads.collected_data || EXCLUDED.collected_data,
			score = EXCLUDED.score,
			updated_at = now()`,
		lead.Sender, lead.ContactName, lead.Status, data, lead.Score)
	return err
}

// GetLead returns the projection for a sender, if any.
func (r *Repository) GetLead(ctx context.Context, sender string) (Lead, error) {
	var lead Lead
	var data []byte
	err := r.pool.QueryRow(ctx, `
		SELECT sender, contact_name, status, collected_data, score, updated_at
		FROM leads WHERE sender = $1`, sender).Scan(
		&lead.Sender, &lead.ContactName, &lead.Status, &data, &lead.Score, &lead.UpdatedAt)
	if err != nil {
		return Lead{}, err
	}
	lead.Collected = map[string]string{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &lead.Collected)
	}
	return lead, nil
}
