package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/repository"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/storage"
)

type catalogStub struct {
	upsertResult    models.UpsertResult
	upsertErr       error
	lastAttrs       repository.MaterialAttrs
	lastHash        string
	active          *models.MaterialRecord
	byID            *models.MaterialRecord
	archived        bool
	deletedLocators []string
	deletedCount    int64
	retainLocators  []string
	retainCount     int64
	retentionCalls  int
}

func (c *catalogStub) UpsertFile(ctx context.Context, weekID int64, mtype models.MaterialType, hash string, sizeBytes int64, attrs repository.MaterialAttrs) (models.UpsertResult, error) {
	c.lastHash = hash
	c.lastAttrs = attrs
	return c.upsertResult, c.upsertErr
}

func (c *catalogStub) UpsertLink(ctx context.Context, weekID int64, url string, attrs repository.MaterialAttrs) (models.UpsertResult, error) {
	c.lastAttrs = attrs
	return c.upsertResult, c.upsertErr
}

func (c *catalogStub) GetActive(ctx context.Context, weekID int64, mtype models.MaterialType) (*models.MaterialRecord, error) {
	if c.active == nil {
		return nil, sql.ErrNoRows
	}
	return c.active, nil
}

func (c *catalogStub) ListActiveByWeek(ctx context.Context, weekID int64, includeTeacherOnly bool) ([]models.MaterialRecord, error) {
	if c.active == nil {
		return nil, nil
	}
	return []models.MaterialRecord{*c.active}, nil
}

func (c *catalogStub) ListVersions(ctx context.Context, weekID int64, mtype models.MaterialType, limit int) ([]models.MaterialRecord, error) {
	if c.active == nil {
		return nil, nil
	}
	return []models.MaterialRecord{*c.active}, nil
}

func (c *catalogStub) GetByID(ctx context.Context, id int64) (*models.MaterialRecord, error) {
	if c.byID == nil {
		return nil, sql.ErrNoRows
	}
	return c.byID, nil
}

func (c *catalogStub) ArchiveActive(ctx context.Context, weekID int64, mtype models.MaterialType) (bool, error) {
	return c.archived, nil
}

func (c *catalogStub) DeleteArchived(ctx context.Context, weekID int64, mtype models.MaterialType) ([]string, int64, error) {
	return c.deletedLocators, c.deletedCount, nil
}

func (c *catalogStub) EnforceRetention(ctx context.Context, weekID int64, mtype models.MaterialType, maxVersions int) ([]string, int64, error) {
	c.retentionCalls++
	return c.retainLocators, c.retainCount, nil
}

type weekStub struct {
	weeks map[int]*models.Week
}

func (w weekStub) GetByWeekNo(ctx context.Context, weekNo int) (*models.Week, error) {
	if week, ok := w.weeks[weekNo]; ok {
		return week, nil
	}
	return nil, sql.ErrNoRows
}

type blobStub struct {
	dir     string
	removed []string
	existed bool
}

func newBlobStub(t *testing.T) *blobStub {
	return &blobStub{dir: t.TempDir()}
}

func (b *blobStub) Save(data []byte) (storage.SavedBlob, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	path := filepath.Join(b.dir, digest)
	existed := b.existed
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return storage.SavedBlob{}, err
		}
	} else {
		existed = true
	}
	return storage.SavedBlob{Hash: digest, Locator: path, SizeBytes: int64(len(data)), AlreadyExisted: existed}, nil
}

func (b *blobStub) Open(locator string) (*os.File, error) {
	return os.Open(locator)
}

func (b *blobStub) Remove(locator string) error {
	b.removed = append(b.removed, locator)
	return os.Remove(locator)
}

type gateStub struct {
	err error
}

func (g gateStub) Fresh(ctx context.Context) error { return g.err }

type auditStub struct {
	entries []*models.AuditEntry
}

func (a *auditStub) Record(entry *models.AuditEntry) {
	a.entries = append(a.entries, entry)
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
}

func newMaterialService(t *testing.T, catalog *catalogStub, blobs *blobStub, gate backupGate, audit *auditStub) *MaterialService {
	weeks := weekStub{weeks: map[int]*models.Week{3: {ID: 30, WeekNo: 3}}}
	if gate == nil {
		gate = gateStub{}
	}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	return NewMaterialService(catalog, weeks, blobs, signer, gate, audit, nil, nil, MaterialServiceConfig{
		MaxUploadBytes: 1024,
		MaxVersions:    5,
		APIPrefix:      "/api/v1",
	})
}

func TestMaterialUploadInserted(t *testing.T) {
	catalog := &catalogStub{upsertResult: models.UpsertResult{Outcome: models.UpsertInserted, MaterialID: 11, Version: 1}}
	blobs := newBlobStub(t)
	audit := &auditStub{}
	svc := newMaterialService(t, catalog, blobs, nil, audit)

	res, err := svc.UploadFile(context.Background(), teacherClaims(), 3, models.MaterialSlides, "application/pdf", "", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, models.UpsertInserted, res.Outcome)
	require.Equal(t, int64(11), res.MaterialID)
	require.Equal(t, models.VisibilityPublic, catalog.lastAttrs.Visibility)
	require.Equal(t, 1, catalog.retentionCalls)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditMaterialUpload, audit.entries[0].Event)
	require.Empty(t, blobs.removed)
}

func TestMaterialUploadForbiddenForStudents(t *testing.T) {
	svc := newMaterialService(t, &catalogStub{}, newBlobStub(t), nil, &auditStub{})

	_, err := svc.UploadFile(context.Background(), studentClaims(), 3, models.MaterialSlides, "", "", []byte("payload"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestMaterialUploadUnknownWeek(t *testing.T) {
	svc := newMaterialService(t, &catalogStub{}, newBlobStub(t), nil, &auditStub{})

	_, err := svc.UploadFile(context.Background(), teacherClaims(), 9, models.MaterialSlides, "", "", []byte("payload"))
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrWeekNotFound.Code, appErr.Code)
}

func TestMaterialUploadRejectsLinksAndOversize(t *testing.T) {
	svc := newMaterialService(t, &catalogStub{}, newBlobStub(t), nil, &auditStub{})

	_, err := svc.UploadFile(context.Background(), teacherClaims(), 3, models.MaterialVideoLink, "", "", []byte("x"))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.UploadFile(context.Background(), teacherClaims(), 3, models.MaterialSlides, "", "", make([]byte, 2048))
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMaterialUploadDuplicateCleansFreshBlob(t *testing.T) {
	catalog := &catalogStub{upsertResult: models.UpsertResult{Outcome: models.UpsertDuplicate, MaterialID: -1}}
	blobs := newBlobStub(t)
	audit := &auditStub{}
	svc := newMaterialService(t, catalog, blobs, nil, audit)

	res, err := svc.UploadFile(context.Background(), teacherClaims(), 3, models.MaterialSlides, "", "", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, models.UpsertDuplicate, res.Outcome)
	require.Equal(t, int64(-1), res.MaterialID)
	require.Len(t, blobs.removed, 1)
	require.Empty(t, audit.entries)
	require.Zero(t, catalog.retentionCalls)
}

func TestMaterialAddLinkValidation(t *testing.T) {
	svc := newMaterialService(t, &catalogStub{}, newBlobStub(t), nil, &auditStub{})

	_, err := svc.AddLink(context.Background(), teacherClaims(), 3, "ftp://example.com", "")
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMaterialAddLinkRecorded(t *testing.T) {
	catalog := &catalogStub{upsertResult: models.UpsertResult{Outcome: models.UpsertInserted, MaterialID: 5, Version: 1}}
	audit := &auditStub{}
	svc := newMaterialService(t, catalog, newBlobStub(t), nil, audit)

	res, err := svc.AddLink(context.Background(), teacherClaims(), 3, "https://example.com/lecture", "")
	require.NoError(t, err)
	require.True(t, res.Wrote())
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditMaterialLink, audit.entries[0].Event)
}

func TestMaterialPurgeRequiresFreshBackup(t *testing.T) {
	svc := newMaterialService(t, &catalogStub{}, newBlobStub(t), gateStub{err: appErrors.ErrBackupStale}, &auditStub{})

	_, err := svc.PurgeArchived(context.Background(), teacherClaims(), 3, models.MaterialSlides)
	require.Equal(t, appErrors.ErrBackupStale.Code, appErrors.FromError(err).Code)
}

func TestMaterialPurgeRemovesBlobs(t *testing.T) {
	blobs := newBlobStub(t)
	saved, err := blobs.Save([]byte("doomed"))
	require.NoError(t, err)

	catalog := &catalogStub{deletedLocators: []string{saved.Locator}, deletedCount: 1}
	audit := &auditStub{}
	svc := newMaterialService(t, catalog, blobs, nil, audit)

	count, err := svc.PurgeArchived(context.Background(), teacherClaims(), 3, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, []string{saved.Locator}, blobs.removed)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditMaterialPurge, audit.entries[0].Event)
}

func TestMaterialGetActiveHidesTeacherOnly(t *testing.T) {
	catalog := &catalogStub{active: &models.MaterialRecord{
		ID: 1, WeekID: 30, Type: models.MaterialMethodical,
		Visibility: models.VisibilityTeacherOnly, IsActive: true,
	}}
	svc := newMaterialService(t, catalog, newBlobStub(t), nil, &auditStub{})

	_, err := svc.GetActive(context.Background(), studentClaims(), 3, models.MaterialMethodical)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	rec, err := svc.GetActive(context.Background(), teacherClaims(), 3, models.MaterialMethodical)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.ID)
}

func TestMaterialDownloadRoundTrip(t *testing.T) {
	blobs := newBlobStub(t)
	saved, err := blobs.Save([]byte("lecture slides"))
	require.NoError(t, err)

	mime := "application/pdf"
	catalog := &catalogStub{byID: &models.MaterialRecord{
		ID: 7, WeekID: 30, WeekNo: 3, Type: models.MaterialSlides, Version: 2,
		Locator: saved.Locator, Mime: &mime, Visibility: models.VisibilityPublic,
	}}
	svc := newMaterialService(t, catalog, blobs, nil, &auditStub{})

	url, err := svc.DownloadURL(context.Background(), studentClaims(), 7)
	require.NoError(t, err)
	require.Contains(t, url, "/materials/7/download?token=")

	token := strings.SplitN(url, "token=", 2)[1]
	download, err := svc.Download(context.Background(), 7, token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	require.Equal(t, "application/pdf", download.MimeType)
	require.Equal(t, int64(len("lecture slides")), download.SizeBytes)
	require.Contains(t, download.Filename, "week03_slides_v2")
}

func TestMaterialDownloadURLForLink(t *testing.T) {
	catalog := &catalogStub{byID: &models.MaterialRecord{
		ID: 8, Type: models.MaterialVideoLink, Locator: "https://example.com/lecture",
		Visibility: models.VisibilityPublic,
	}}
	svc := newMaterialService(t, catalog, newBlobStub(t), nil, &auditStub{})

	url, err := svc.DownloadURL(context.Background(), studentClaims(), 8)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/lecture", url)
}

func TestMaterialDownloadRejectsTamperedToken(t *testing.T) {
	blobs := newBlobStub(t)
	saved, err := blobs.Save([]byte("content"))
	require.NoError(t, err)

	catalog := &catalogStub{byID: &models.MaterialRecord{
		ID: 7, Type: models.MaterialSlides, Locator: saved.Locator, Visibility: models.VisibilityPublic,
	}}
	svc := newMaterialService(t, catalog, blobs, nil, &auditStub{})

	_, err = svc.Download(context.Background(), 7, "not-a-token")
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
