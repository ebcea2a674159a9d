package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edukit/coursebot-api/internal/models"
)

// BackupRepository tracks when the last full and incremental backups
// finished. A single row holds the state.
type BackupRepository struct {
	db *sqlx.DB
}

// NewBackupRepository constructs the repository.
func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// State returns the current backup timestamps.
func (r *BackupRepository) State(ctx context.Context) (*models.BackupState, error) {
	var state models.BackupState
	err := r.db.GetContext(ctx, &state,
		`SELECT last_full_ts, last_inc_ts, updated_at FROM system_backups WHERE id = 1`)
	if err != nil {
		return nil, fmt.Errorf("load backup state: %w", err)
	}
	return &state, nil
}

// MarkFull records a finished full backup. A fresh full backup also
// satisfies the incremental window.
func (r *BackupRepository) MarkFull(ctx context.Context, ts int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE system_backups SET last_full_ts = ?, last_inc_ts = ?, updated_at = ? WHERE id = 1`,
		ts, ts, ts)
	if err != nil {
		return fmt.Errorf("mark full backup: %w", err)
	}
	return nil
}

// MarkIncremental records a finished incremental backup.
func (r *BackupRepository) MarkIncremental(ctx context.Context, ts int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE system_backups SET last_inc_ts = ?, updated_at = ? WHERE id = 1`,
		ts, ts)
	if err != nil {
		return fmt.Errorf("mark incremental backup: %w", err)
	}
	return nil
}
