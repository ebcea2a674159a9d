package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edukit/coursebot-api/internal/models"
)

// MaterialAttrs carries the mutable attributes written alongside a new
// or resurrected version.
type MaterialAttrs struct {
	Locator    string
	Mime       *string
	Visibility models.Visibility
	UploadedBy string
}

// MaterialRepository is the catalog of versioned week materials. Every
// write runs the full read-decide-write sequence inside one transaction
// on the single-connection pool, so concurrent uploads into the same
// slot serialize instead of racing the at-most-one-active invariant.
type MaterialRepository struct {
	db  *sqlx.DB
	now func() int64
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db, now: func() int64 { return time.Now().UTC().Unix() }}
}

const materialColumns = `m.id, m.week_id, m.type, m.version, m.locator, m.content_hash,
       m.size_bytes, m.mime, m.visibility, m.uploaded_by, m.created_at, m.is_active,
       m.deleted_at, w.week_no`

// UpsertFile registers file content against a (week, type) slot. Content
// identity is hash+size, scoped globally across the whole catalog.
func (r *MaterialRepository) UpsertFile(ctx context.Context, weekID int64, mtype models.MaterialType, hash string, sizeBytes int64, attrs MaterialAttrs) (models.UpsertResult, error) {
	return r.upsert(ctx, weekID, mtype, models.FileIdentity(hash, sizeBytes), attrs)
}

// UpsertLink registers a URL against the week's video_link slot. Identity
// is the URL itself, scoped to the slot: the same URL may live in any
// number of other weeks.
func (r *MaterialRepository) UpsertLink(ctx context.Context, weekID int64, url string, attrs MaterialAttrs) (models.UpsertResult, error) {
	attrs.Locator = url
	return r.upsert(ctx, weekID, models.MaterialVideoLink, models.LinkIdentity(url), attrs)
}

type duplicateRow struct {
	ID       int64  `db:"id"`
	WeekID   int64  `db:"week_id"`
	Type     string `db:"type"`
	IsActive bool   `db:"is_active"`
}

// upsert is the single decision function shared by both identity scopes.
func (r *MaterialRepository) upsert(ctx context.Context, weekID int64, mtype models.MaterialType, ident models.ContentIdentity, attrs MaterialAttrs) (models.UpsertResult, error) {
	res := models.UpsertResult{MaterialID: -1}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var weekCount int
	if err := tx.GetContext(ctx, &weekCount, `SELECT COUNT(1) FROM weeks WHERE id = ?`, weekID); err != nil {
		return res, fmt.Errorf("check week: %w", err)
	}
	if weekCount == 0 {
		return res, sql.ErrNoRows
	}

	var dup duplicateRow
	var dupErr error
	switch ident.Scope {
	case models.ScopeGlobal:
		dupErr = tx.GetContext(ctx, &dup,
			`SELECT id, week_id, type, is_active FROM materials
			 WHERE content_hash = ? AND size_bytes = ? AND deleted_at IS NULL LIMIT 1`,
			ident.Hash, ident.SizeBytes)
	case models.ScopePerSlot:
		dupErr = tx.GetContext(ctx, &dup,
			`SELECT id, week_id, type, is_active FROM materials
			 WHERE week_id = ? AND type = ? AND locator = ? AND deleted_at IS NULL LIMIT 1`,
			weekID, mtype, ident.Locator)
	default:
		return res, fmt.Errorf("unknown identity scope %d", ident.Scope)
	}

	switch {
	case dupErr == nil:
		sameSlot := dup.WeekID == weekID && models.MaterialType(dup.Type) == mtype
		if !sameSlot {
			// Content is live somewhere else: a blob may only be
			// claimed by one slot at a time.
			res.Outcome = models.UpsertRejected
			return res, nil
		}
		if dup.IsActive {
			res.Outcome = models.UpsertDuplicate
			return res, nil
		}
		return r.resurrect(ctx, tx, weekID, mtype, dup.ID, attrs)
	case errors.Is(dupErr, sql.ErrNoRows):
		return r.insert(ctx, tx, weekID, mtype, ident, attrs)
	default:
		return res, fmt.Errorf("lookup duplicate: %w", dupErr)
	}
}

// resurrect reactivates an archived record of the target slot under a
// fresh version number. The record id is reused; the version is not.
func (r *MaterialRepository) resurrect(ctx context.Context, tx *sqlx.Tx, weekID int64, mtype models.MaterialType, id int64, attrs MaterialAttrs) (models.UpsertResult, error) {
	res := models.UpsertResult{MaterialID: -1}

	if err := archiveActiveTx(ctx, tx, weekID, mtype); err != nil {
		return res, err
	}
	version, err := nextVersion(ctx, tx, weekID, mtype)
	if err != nil {
		return res, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE materials
		 SET is_active = 1, locator = ?, mime = ?, visibility = ?, uploaded_by = ?, created_at = ?, version = ?
		 WHERE id = ?`,
		attrs.Locator, attrs.Mime, attrs.Visibility, attrs.UploadedBy, r.now(), version, id)
	if err != nil {
		return res, fmt.Errorf("resurrect material: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit resurrect: %w", err)
	}
	return models.UpsertResult{Outcome: models.UpsertResurrected, MaterialID: id, Version: version}, nil
}

// insert archives the slot's current active record (if any) and writes a
// new active row.
func (r *MaterialRepository) insert(ctx context.Context, tx *sqlx.Tx, weekID int64, mtype models.MaterialType, ident models.ContentIdentity, attrs MaterialAttrs) (models.UpsertResult, error) {
	res := models.UpsertResult{MaterialID: -1}

	if err := archiveActiveTx(ctx, tx, weekID, mtype); err != nil {
		return res, err
	}
	version, err := nextVersion(ctx, tx, weekID, mtype)
	if err != nil {
		return res, err
	}

	var hash *string
	var size *int64
	if ident.Scope == models.ScopeGlobal {
		hash = &ident.Hash
		size = &ident.SizeBytes
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO materials (week_id, type, version, locator, content_hash, size_bytes, mime, visibility, uploaded_by, created_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		weekID, mtype, version, attrs.Locator, hash, size, attrs.Mime, attrs.Visibility, attrs.UploadedBy, r.now())
	if err != nil {
		return res, fmt.Errorf("insert material: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return res, fmt.Errorf("material insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit insert: %w", err)
	}
	return models.UpsertResult{Outcome: models.UpsertInserted, MaterialID: id, Version: version}, nil
}

// nextVersion bumps and returns the slot's version counter. The counter
// lives in its own table so version numbers keep growing even after
// archived rows are hard-deleted.
func nextVersion(ctx context.Context, tx *sqlx.Tx, weekID int64, mtype models.MaterialType) (int, error) {
	var version int
	err := tx.GetContext(ctx, &version,
		`INSERT INTO material_slot_seq (week_id, type, last_version) VALUES (?, ?, 1)
		 ON CONFLICT(week_id, type) DO UPDATE SET last_version = last_version + 1
		 RETURNING last_version`,
		weekID, mtype)
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return version, nil
}

func archiveActiveTx(ctx context.Context, tx *sqlx.Tx, weekID int64, mtype models.MaterialType) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE materials SET is_active = 0 WHERE week_id = ? AND type = ? AND is_active = 1 AND deleted_at IS NULL`,
		weekID, mtype)
	if err != nil {
		return fmt.Errorf("archive active: %w", err)
	}
	return nil
}

// GetActive returns the single active record for the slot.
func (r *MaterialRepository) GetActive(ctx context.Context, weekID int64, mtype models.MaterialType) (*models.MaterialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM materials m JOIN weeks w ON w.id = m.week_id
		WHERE m.week_id = ? AND m.type = ? AND m.is_active = 1 AND m.deleted_at IS NULL LIMIT 1`, materialColumns)
	var rec models.MaterialRecord
	if err := r.db.GetContext(ctx, &rec, query, weekID, mtype); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListActiveByWeek returns the active record of every slot in the week.
// Students only see public materials.
func (r *MaterialRepository) ListActiveByWeek(ctx context.Context, weekID int64, includeTeacherOnly bool) ([]models.MaterialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM materials m JOIN weeks w ON w.id = m.week_id
		WHERE m.week_id = ? AND m.is_active = 1 AND m.deleted_at IS NULL`, materialColumns)
	args := []interface{}{weekID}
	if !includeTeacherOnly {
		query += ` AND m.visibility = ?`
		args = append(args, models.VisibilityPublic)
	}
	query += ` ORDER BY m.type ASC, m.id ASC`

	var records []models.MaterialRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list active materials: %w", err)
	}
	return records, nil
}

// ListVersions returns all live records of the slot, newest version first.
func (r *MaterialRepository) ListVersions(ctx context.Context, weekID int64, mtype models.MaterialType, limit int) ([]models.MaterialRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM materials m JOIN weeks w ON w.id = m.week_id
		WHERE m.week_id = ? AND m.type = ? AND m.deleted_at IS NULL
		ORDER BY m.version DESC, m.id DESC LIMIT ?`, materialColumns)

	var records []models.MaterialRecord
	if err := r.db.SelectContext(ctx, &records, query, weekID, mtype, limit); err != nil {
		return nil, fmt.Errorf("list material versions: %w", err)
	}
	return records, nil
}

// GetByID returns one live record.
func (r *MaterialRepository) GetByID(ctx context.Context, id int64) (*models.MaterialRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM materials m JOIN weeks w ON w.id = m.week_id
		WHERE m.id = ? AND m.deleted_at IS NULL LIMIT 1`, materialColumns)
	var rec models.MaterialRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ArchiveActive deactivates the slot's current active record. Returns
// false when there was nothing to archive.
func (r *MaterialRepository) ArchiveActive(ctx context.Context, weekID int64, mtype models.MaterialType) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE materials SET is_active = 0 WHERE week_id = ? AND type = ? AND is_active = 1 AND deleted_at IS NULL`,
		weekID, mtype)
	if err != nil {
		return false, fmt.Errorf("archive active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive active rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteArchived permanently removes archived records for the slot, or
// for every type in the week when mtype is empty. The active record is
// never touched. Returns the locators of removed file payloads that no
// other live row references, so the caller can clean up the blob store.
func (r *MaterialRepository) DeleteArchived(ctx context.Context, weekID int64, mtype models.MaterialType) ([]string, int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin delete archived: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	where := `week_id = ? AND is_active = 0 AND deleted_at IS NULL`
	args := []interface{}{weekID}
	if mtype != "" {
		where += ` AND type = ?`
		args = append(args, mtype)
	}

	locators, ids, err := collectDoomed(ctx, tx, where, args)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	if err := deleteByID(ctx, tx, ids); err != nil {
		return nil, 0, err
	}
	orphans, err := orphanedLocators(ctx, tx, locators)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit delete archived: %w", err)
	}
	return orphans, int64(len(ids)), nil
}

// EnforceRetention trims the slot down to maxVersions records by
// permanently deleting the oldest archived ones. The active record is
// never a deletion candidate.
func (r *MaterialRepository) EnforceRetention(ctx context.Context, weekID int64, mtype models.MaterialType, maxVersions int) ([]string, int64, error) {
	if maxVersions <= 0 {
		return nil, 0, fmt.Errorf("max versions must be positive")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin retention: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int
	err = tx.GetContext(ctx, &total,
		`SELECT COUNT(1) FROM materials WHERE week_id = ? AND type = ? AND deleted_at IS NULL`,
		weekID, mtype)
	if err != nil {
		return nil, 0, fmt.Errorf("count slot records: %w", err)
	}
	if total <= maxVersions {
		return nil, 0, nil
	}

	where := `id IN (SELECT id FROM materials
		WHERE week_id = ? AND type = ? AND is_active = 0 AND deleted_at IS NULL
		ORDER BY version ASC, id ASC LIMIT ?)`
	args := []interface{}{weekID, mtype, total - maxVersions}

	locators, ids, err := collectDoomed(ctx, tx, where, args)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	if err := deleteByID(ctx, tx, ids); err != nil {
		return nil, 0, err
	}
	orphans, err := orphanedLocators(ctx, tx, locators)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit retention: %w", err)
	}
	return orphans, int64(len(ids)), nil
}

type doomedRow struct {
	ID          int64   `db:"id"`
	Locator     string  `db:"locator"`
	ContentHash *string `db:"content_hash"`
}

// collectDoomed fetches the rows about to be deleted and splits out the
// blob locators of file-type records (links have no payload to clean up).
func collectDoomed(ctx context.Context, tx *sqlx.Tx, where string, args []interface{}) ([]string, []int64, error) {
	var rows []doomedRow
	query := `SELECT id, locator, content_hash FROM materials WHERE ` + where
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, nil, fmt.Errorf("collect deletion candidates: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	locators := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		if row.ContentHash != nil {
			locators = append(locators, row.Locator)
		}
	}
	return locators, ids, nil
}

// orphanedLocators keeps only the locators no live row references after
// the delete. Blobs are content addressed and shared with student
// submissions, so a payload is reclaimable only once both sides let go
// of it.
func orphanedLocators(ctx context.Context, tx *sqlx.Tx, locators []string) ([]string, error) {
	orphans := make([]string, 0, len(locators))
	for _, locator := range locators {
		var refs int
		err := tx.GetContext(ctx, &refs,
			`SELECT (SELECT COUNT(1) FROM materials WHERE locator = ? AND deleted_at IS NULL)
			      + (SELECT COUNT(1) FROM submission_files WHERE locator = ? AND deleted_at IS NULL)`,
			locator, locator)
		if err != nil {
			return nil, fmt.Errorf("count blob references: %w", err)
		}
		if refs == 0 {
			orphans = append(orphans, locator)
		}
	}
	return orphans, nil
}

func deleteByID(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM materials WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete materials: %w", err)
	}
	return nil
}
