package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edukit/coursebot-api/internal/models"
)

// AuditRepository persists audit trail entries.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	meta := entry.Meta
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (ts, request_id, actor_id, event, object_type, object_id, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TS, entry.RequestID, entry.ActorID, entry.Event, entry.ObjectType, entry.ObjectID, string(meta))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListRecent returns the newest entries first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []models.AuditEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT id, ts, request_id, actor_id, event, object_type, object_id, meta
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
