package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/repository"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type materialCatalog interface {
	UpsertFile(ctx context.Context, weekID int64, mtype models.MaterialType, hash string, sizeBytes int64, attrs repository.MaterialAttrs) (models.UpsertResult, error)
	UpsertLink(ctx context.Context, weekID int64, url string, attrs repository.MaterialAttrs) (models.UpsertResult, error)
	GetActive(ctx context.Context, weekID int64, mtype models.MaterialType) (*models.MaterialRecord, error)
	ListActiveByWeek(ctx context.Context, weekID int64, includeTeacherOnly bool) ([]models.MaterialRecord, error)
	ListVersions(ctx context.Context, weekID int64, mtype models.MaterialType, limit int) ([]models.MaterialRecord, error)
	GetByID(ctx context.Context, id int64) (*models.MaterialRecord, error)
	ArchiveActive(ctx context.Context, weekID int64, mtype models.MaterialType) (bool, error)
	DeleteArchived(ctx context.Context, weekID int64, mtype models.MaterialType) ([]string, int64, error)
	EnforceRetention(ctx context.Context, weekID int64, mtype models.MaterialType, maxVersions int) ([]string, int64, error)
}

type weekResolver interface {
	GetByWeekNo(ctx context.Context, weekNo int) (*models.Week, error)
}

type blobStorage interface {
	Save(data []byte) (storage.SavedBlob, error)
	Open(locator string) (*os.File, error)
	Remove(locator string) error
}

type downloadSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// backupGate refuses destructive operations when the backup state is
// stale.
type backupGate interface {
	Fresh(ctx context.Context) error
}

type auditRecorder interface {
	Record(entry *models.AuditEntry)
}

// MaterialDownload bundles a blob stream with response metadata.
type MaterialDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// MaterialServiceConfig tunes upload validation and retention.
type MaterialServiceConfig struct {
	MaxUploadBytes int64
	MaxVersions    int
	APIPrefix      string
}

// MaterialService owns the week material lifecycle: uploads, links,
// version history, archiving, purges and retention. Every state change
// delegates the dedup decision to the catalog repository and then cleans
// up blobs that lost their last reference.
type MaterialService struct {
	catalog materialCatalog
	weeks   weekResolver
	blobs   blobStorage
	signer  downloadSigner
	backups backupGate
	audit   auditRecorder
	metrics *MetricsService
	logger  *zap.Logger
	cfg     MaterialServiceConfig
}

// NewMaterialService constructs the service with defaults.
func NewMaterialService(catalog materialCatalog, weeks weekResolver, blobs blobStorage, signer downloadSigner, backups backupGate, audit auditRecorder, metrics *MetricsService, logger *zap.Logger, cfg MaterialServiceConfig) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 * 1024 * 1024
	}
	if cfg.MaxVersions <= 0 {
		cfg.MaxVersions = 20
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &MaterialService{
		catalog: catalog,
		weeks:   weeks,
		blobs:   blobs,
		signer:  signer,
		backups: backups,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// UploadFile stores file content and registers it against the week slot.
// Duplicate and rejected uploads are reported on the result, not as
// errors.
func (s *MaterialService) UploadFile(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType, mime string, visibility models.Visibility, data []byte) (models.UpsertResult, error) {
	res := models.UpsertResult{MaterialID: -1}
	if err := requireManager(actor); err != nil {
		return res, err
	}
	if !mtype.Valid() || !mtype.IsFile() {
		return res, appErrors.Clone(appErrors.ErrValidation, "unknown file material type")
	}
	if len(data) == 0 {
		return res, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return res, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxUploadBytes))
	}
	visibility, err := normalizeVisibility(visibility)
	if err != nil {
		return res, err
	}

	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return res, err
	}

	blob, err := s.blobs.Save(data)
	if err != nil {
		return res, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file content")
	}

	attrs := repository.MaterialAttrs{
		Locator:    blob.Locator,
		Mime:       optional(mime),
		Visibility: visibility,
		UploadedBy: actor.UserID,
	}
	res, err = s.catalog.UpsertFile(ctx, week.ID, mtype, blob.Hash, blob.SizeBytes, attrs)
	if err != nil {
		if !blob.AlreadyExisted {
			s.removeBlob(blob.Locator)
		}
		return models.UpsertResult{MaterialID: -1}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register material")
	}
	if !res.Wrote() && !blob.AlreadyExisted {
		// Nothing in the catalog claims the freshly written blob.
		s.removeBlob(blob.Locator)
	}

	s.observeUpsert(res.Outcome)
	if res.Wrote() {
		s.trimSlot(ctx, week.ID, mtype, actor)
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditMaterialUpload,
			ObjectType: "material",
			ObjectID:   &res.MaterialID,
			Meta:       auditMeta(weekNo, mtype, res),
		})
	}
	return res, nil
}

// AddLink registers a URL in the week's video link slot.
func (s *MaterialService) AddLink(ctx context.Context, actor *models.JWTClaims, weekNo int, url string, visibility models.Visibility) (models.UpsertResult, error) {
	res := models.UpsertResult{MaterialID: -1}
	if err := requireManager(actor); err != nil {
		return res, err
	}
	url = strings.TrimSpace(url)
	if err := validate.Var(url, "required,http_url"); err != nil {
		return res, appErrors.Clone(appErrors.ErrValidation, "link must be an http(s) URL")
	}
	visibility, err := normalizeVisibility(visibility)
	if err != nil {
		return res, err
	}

	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return res, err
	}

	attrs := repository.MaterialAttrs{Visibility: visibility, UploadedBy: actor.UserID}
	res, err = s.catalog.UpsertLink(ctx, week.ID, url, attrs)
	if err != nil {
		return models.UpsertResult{MaterialID: -1}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register link")
	}

	s.observeUpsert(res.Outcome)
	if res.Wrote() {
		s.trimSlot(ctx, week.ID, models.MaterialVideoLink, actor)
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditMaterialLink,
			ObjectType: "material",
			ObjectID:   &res.MaterialID,
			Meta:       auditMeta(weekNo, models.MaterialVideoLink, res),
		})
	}
	return res, nil
}

// GetActive returns the slot's active material. Students never see
// teacher-only records.
func (s *MaterialService) GetActive(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (*models.MaterialRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !mtype.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown material type")
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return nil, err
	}
	rec, err := s.catalog.GetActive(ctx, week.ID, mtype)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if rec.Visibility == models.VisibilityTeacherOnly && !actor.Role.CanManageMaterials() {
		return nil, appErrors.ErrNotFound
	}
	return rec, nil
}

// ListWeek returns the active material of every slot in the week,
// filtered by the actor's visibility.
func (s *MaterialService) ListWeek(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.MaterialRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return nil, err
	}
	records, err := s.catalog.ListActiveByWeek(ctx, week.ID, actor.Role.CanManageMaterials())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	return records, nil
}

// ListVersions returns the slot's live history, newest first. Teacher
// surface only.
func (s *MaterialService) ListVersions(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType, limit int) ([]models.MaterialRecord, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if !mtype.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown material type")
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return nil, err
	}
	records, err := s.catalog.ListVersions(ctx, week.ID, mtype, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	return records, nil
}

// Archive deactivates the slot's active material. Returns false when the
// slot had no active record.
func (s *MaterialService) Archive(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (bool, error) {
	if err := requireManager(actor); err != nil {
		return false, err
	}
	if !mtype.Valid() {
		return false, appErrors.Clone(appErrors.ErrValidation, "unknown material type")
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return false, err
	}
	archived, err := s.catalog.ArchiveActive(ctx, week.ID, mtype)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive material")
	}
	if archived {
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditMaterialArchive,
			ObjectType: "material",
			Meta:       auditMeta(weekNo, mtype, models.UpsertResult{}),
		})
	}
	return archived, nil
}

// PurgeArchived permanently deletes the week's archived materials, for
// one type or all of them. Requires a fresh backup.
func (s *MaterialService) PurgeArchived(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (int64, error) {
	if err := requireManager(actor); err != nil {
		return 0, err
	}
	if mtype != "" && !mtype.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown material type")
	}
	if err := s.backups.Fresh(ctx); err != nil {
		return 0, err
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return 0, err
	}
	locators, count, err := s.catalog.DeleteArchived(ctx, week.ID, mtype)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge archived materials")
	}
	s.removeBlobs(locators)
	if count > 0 {
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditMaterialPurge,
			ObjectType: "material",
			Meta:       auditMeta(weekNo, mtype, models.UpsertResult{}),
		})
	}
	return count, nil
}

// EnforceRetention trims the slot to the configured version limit.
func (s *MaterialService) EnforceRetention(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (int64, error) {
	if err := requireManager(actor); err != nil {
		return 0, err
	}
	if !mtype.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown material type")
	}
	week, err := s.resolveWeek(ctx, weekNo)
	if err != nil {
		return 0, err
	}
	locators, count, err := s.catalog.EnforceRetention(ctx, week.ID, mtype, s.cfg.MaxVersions)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enforce retention")
	}
	s.removeBlobs(locators)
	if count > 0 {
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditMaterialRetention,
			ObjectType: "material",
			Meta:       auditMeta(weekNo, mtype, models.UpsertResult{}),
		})
	}
	return count, nil
}

// DownloadURL returns a short-lived signed URL for a file material, or
// the target URL itself for links.
func (s *MaterialService) DownloadURL(ctx context.Context, actor *models.JWTClaims, materialID int64) (string, error) {
	rec, err := s.getVisible(ctx, actor, materialID)
	if err != nil {
		return "", err
	}
	if !rec.Type.IsFile() {
		return rec.Locator, nil
	}
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	token, _, err := s.signer.Generate(strconv.FormatInt(rec.ID, 10), rec.Locator)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/materials/%d/download?token=%s", base, rec.ID, token), nil
}

// Download validates a signed token and opens the underlying blob.
func (s *MaterialService) Download(ctx context.Context, materialID int64, token string) (*MaterialDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	rec, err := s.catalog.GetByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if !rec.Type.IsFile() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "links have no downloadable payload")
	}
	id, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if id != strconv.FormatInt(rec.ID, 10) || relPath != rec.Locator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.blobs.Open(rec.Locator)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open material file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read material metadata")
	}
	mime := "application/octet-stream"
	if rec.Mime != nil && *rec.Mime != "" {
		mime = *rec.Mime
	}
	name := storage.SafeFilename(fmt.Sprintf("week%02d_%s_v%d", rec.WeekNo, rec.Type, rec.Version))
	return &MaterialDownload{
		File:      file,
		Filename:  name,
		MimeType:  mime,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

func (s *MaterialService) getVisible(ctx context.Context, actor *models.JWTClaims, materialID int64) (*models.MaterialRecord, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	rec, err := s.catalog.GetByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if rec.Visibility == models.VisibilityTeacherOnly && !actor.Role.CanManageMaterials() {
		return nil, appErrors.ErrNotFound
	}
	return rec, nil
}

// trimSlot applies the retention limit after a successful write. Best
// effort: a retention failure never fails the upload that triggered it.
func (s *MaterialService) trimSlot(ctx context.Context, weekID int64, mtype models.MaterialType, actor *models.JWTClaims) {
	locators, count, err := s.catalog.EnforceRetention(ctx, weekID, mtype, s.cfg.MaxVersions)
	if err != nil {
		s.logger.Warn("retention after upload failed",
			zap.Int64("week_id", weekID), zap.String("type", string(mtype)), zap.Error(err))
		return
	}
	s.removeBlobs(locators)
	if count > 0 {
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditMaterialRetention,
			ObjectType: "material",
			Meta:       []byte(fmt.Sprintf(`{"week_id":%d,"type":"%s","removed":%d}`, weekID, mtype, count)),
		})
	}
}

func (s *MaterialService) resolveWeek(ctx context.Context, weekNo int) (*models.Week, error) {
	week, err := s.weeks.GetByWeekNo(ctx, weekNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrWeekNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve week")
	}
	return week, nil
}

func (s *MaterialService) removeBlob(locator string) {
	if err := s.blobs.Remove(locator); err != nil {
		s.logger.Warn("failed to remove blob", zap.String("locator", locator), zap.Error(err))
	}
}

func (s *MaterialService) removeBlobs(locators []string) {
	for _, locator := range locators {
		s.removeBlob(locator)
	}
}

func (s *MaterialService) observeUpsert(outcome models.UpsertOutcome) {
	if s.metrics != nil {
		s.metrics.ObserveUpsert(outcome)
	}
}

func requireManager(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageMaterials() {
		return appErrors.ErrForbidden
	}
	return nil
}

func normalizeVisibility(v models.Visibility) (models.Visibility, error) {
	if v == "" {
		return models.VisibilityPublic, nil
	}
	if !v.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown visibility")
	}
	return v, nil
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func auditMeta(weekNo int, mtype models.MaterialType, res models.UpsertResult) []byte {
	if res.Outcome == "" {
		return []byte(fmt.Sprintf(`{"week_no":%d,"type":"%s"}`, weekNo, mtype))
	}
	return []byte(fmt.Sprintf(`{"week_no":%d,"type":"%s","outcome":"%s","version":%d}`, weekNo, mtype, res.Outcome, res.Version))
}
