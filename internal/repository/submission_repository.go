package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edukit/coursebot-api/internal/models"
)

// SubmissionRepository stores weekly student hand-ins. Files are
// deduplicated per submission by (hash, size) and soft-deleted, unlike
// catalog materials which are hard-deleted.
type SubmissionRepository struct {
	db  *sqlx.DB
	now func() int64
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db, now: func() int64 { return time.Now().UTC().Unix() }}
}

// GetOrCreate returns the id of the student's submission for the week,
// creating it on first use.
func (r *SubmissionRepository) GetOrCreate(ctx context.Context, studentID string, weekNo int) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id,
		`SELECT id FROM submissions WHERE student_id = ? AND week_no = ? ORDER BY id DESC LIMIT 1`,
		studentID, weekNo)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup submission: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO submissions (week_no, student_id, status, created_at) VALUES (?, ?, 'submitted', ?)`,
		weekNo, studentID, r.now())
	if err != nil {
		return 0, fmt.Errorf("create submission: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("submission insert id: %w", err)
	}
	return id, nil
}

// AddFile attaches a file to the submission. When the same content is
// already attached and not deleted, nothing is written and the existing
// file id is returned with duplicate=true.
func (r *SubmissionRepository) AddFile(ctx context.Context, submissionID int64, hash string, sizeBytes int64, locator string, mime *string) (int64, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin add file: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int64
	err = tx.GetContext(ctx, &existing,
		`SELECT id FROM submission_files
		 WHERE submission_id = ? AND content_hash = ? AND size_bytes = ? AND deleted_at IS NULL LIMIT 1`,
		submissionID, hash, sizeBytes)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("lookup submission file: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO submission_files (submission_id, content_hash, size_bytes, locator, mime, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		submissionID, hash, sizeBytes, locator, mime, r.now())
	if err != nil {
		return 0, false, fmt.Errorf("insert submission file: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("submission file insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit add file: %w", err)
	}
	return id, false, nil
}

// ListFiles returns the student's live files for the week.
func (r *SubmissionRepository) ListFiles(ctx context.Context, studentID string, weekNo int) ([]models.SubmissionFile, error) {
	var files []models.SubmissionFile
	err := r.db.SelectContext(ctx, &files,
		`SELECT f.id, f.submission_id, f.content_hash, f.size_bytes, f.locator, f.mime, f.created_at, f.deleted_at
		 FROM submissions s
		 JOIN submission_files f ON f.submission_id = s.id
		 WHERE s.student_id = ? AND s.week_no = ? AND f.deleted_at IS NULL
		 ORDER BY f.id ASC`,
		studentID, weekNo)
	if err != nil {
		return nil, fmt.Errorf("list submission files: %w", err)
	}
	return files, nil
}

// SoftDeleteFile marks a file deleted after verifying it belongs to the
// student. Returns false when there is nothing to delete.
func (r *SubmissionRepository) SoftDeleteFile(ctx context.Context, fileID int64, studentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE submission_files SET deleted_at = ?
		 WHERE id = ? AND deleted_at IS NULL
		   AND submission_id IN (SELECT id FROM submissions WHERE student_id = ?)`,
		r.now(), fileID, studentID)
	if err != nil {
		return false, fmt.Errorf("soft delete submission file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete rows: %w", err)
	}
	return affected > 0, nil
}

// ListStudentWeeks returns (week_no, live file count) pairs for weeks the
// student submitted to, newest week first.
func (r *SubmissionRepository) ListStudentWeeks(ctx context.Context, studentID string, limit int) ([]models.WeekFileCount, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var weeks []models.WeekFileCount
	err := r.db.SelectContext(ctx, &weeks,
		`SELECT s.week_no, COUNT(f.id) AS files_count
		 FROM submissions s
		 LEFT JOIN submission_files f ON f.submission_id = s.id AND f.deleted_at IS NULL
		 WHERE s.student_id = ?
		 GROUP BY s.week_no
		 ORDER BY s.week_no DESC
		 LIMIT ?`,
		studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list student weeks: %w", err)
	}
	return weeks, nil
}

// ListStudentsByWeek returns the teacher view: students with at least one
// live file for the week, in deterministic order.
func (r *SubmissionRepository) ListStudentsByWeek(ctx context.Context, weekNo int) ([]models.StudentSubmissionSummary, error) {
	var students []models.StudentSubmissionSummary
	err := r.db.SelectContext(ctx, &students,
		`SELECT s.student_id, COUNT(f.id) AS files_count
		 FROM submissions s
		 JOIN submission_files f ON f.submission_id = s.id AND f.deleted_at IS NULL
		 WHERE s.week_no = ?
		 GROUP BY s.student_id
		 ORDER BY s.student_id ASC`,
		weekNo)
	if err != nil {
		return nil, fmt.Errorf("list students by week: %w", err)
	}
	return students, nil
}
