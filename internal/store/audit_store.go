package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

type AuditStore struct {
	db DB
}

type AuditEntry struct {
	ActorUserID string
	Action      string
	EntityType  string
	EntityID    string
	Data        map[string]any
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, entry AuditEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), entry.ActorUserID, entry.Action, entry.EntityType, entry.EntityID, string(data))
	return err
}
