package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
)

type submissionStore interface {
	GetOrCreate(ctx context.Context, studentID string, weekNo int) (int64, error)
	AddFile(ctx context.Context, submissionID int64, hash string, sizeBytes int64, locator string, mime *string) (int64, bool, error)
	ListFiles(ctx context.Context, studentID string, weekNo int) ([]models.SubmissionFile, error)
	SoftDeleteFile(ctx context.Context, fileID int64, studentID string) (bool, error)
	ListStudentWeeks(ctx context.Context, studentID string, limit int) ([]models.WeekFileCount, error)
	ListStudentsByWeek(ctx context.Context, weekNo int) ([]models.StudentSubmissionSummary, error)
}

// SubmissionUploadResult reports whether the upload created a new file
// or matched one the student already handed in.
type SubmissionUploadResult struct {
	FileID    int64 `json:"file_id"`
	Duplicate bool  `json:"duplicate"`
}

// SubmissionService manages weekly student hand-ins. Dedup is scoped to
// the student's submission: two students may hand in identical bytes.
type SubmissionService struct {
	store  submissionStore
	weeks  weekResolver
	blobs  blobStorage
	audit  auditRecorder
	logger *zap.Logger

	maxUploadBytes int64
}

// NewSubmissionService constructs the service.
func NewSubmissionService(store submissionStore, weeks weekResolver, blobs blobStorage, audit auditRecorder, logger *zap.Logger, maxUploadBytes int64) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 * 1024 * 1024
	}
	return &SubmissionService{
		store:          store,
		weeks:          weeks,
		blobs:          blobs,
		audit:          audit,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload stores a hand-in file for the actor's own submission.
func (s *SubmissionService) Upload(ctx context.Context, actor *models.JWTClaims, weekNo int, mime string, data []byte) (SubmissionUploadResult, error) {
	if actor == nil {
		return SubmissionUploadResult{}, appErrors.ErrUnauthorized
	}
	if len(data) == 0 {
		return SubmissionUploadResult{}, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if int64(len(data)) > s.maxUploadBytes {
		return SubmissionUploadResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.maxUploadBytes))
	}
	if _, err := s.resolveWeek(ctx, weekNo); err != nil {
		return SubmissionUploadResult{}, err
	}

	blob, err := s.blobs.Save(data)
	if err != nil {
		return SubmissionUploadResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file content")
	}

	submissionID, err := s.store.GetOrCreate(ctx, actor.UserID, weekNo)
	if err != nil {
		return SubmissionUploadResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open submission")
	}

	fileID, duplicate, err := s.store.AddFile(ctx, submissionID, blob.Hash, blob.SizeBytes, blob.Locator, optional(mime))
	if err != nil {
		return SubmissionUploadResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach file")
	}
	if !duplicate {
		s.audit.Record(&models.AuditEntry{
			ActorID:    actor.UserID,
			Event:      models.AuditSubmissionUpload,
			ObjectType: "submission_file",
			ObjectID:   &fileID,
			Meta:       []byte(fmt.Sprintf(`{"week_no":%d}`, weekNo)),
		})
	}
	return SubmissionUploadResult{FileID: fileID, Duplicate: duplicate}, nil
}

// ListMine returns the actor's live files for the week.
func (s *SubmissionService) ListMine(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.SubmissionFile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	files, err := s.store.ListFiles(ctx, actor.UserID, weekNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submission files")
	}
	return files, nil
}

// DeleteFile soft deletes one of the actor's own files. The blob stays:
// identical content may still be referenced by other owners.
func (s *SubmissionService) DeleteFile(ctx context.Context, actor *models.JWTClaims, fileID int64) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	ok, err := s.store.SoftDeleteFile(ctx, fileID, actor.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission file")
	}
	if !ok {
		return appErrors.ErrNotFound
	}
	s.audit.Record(&models.AuditEntry{
		ActorID:    actor.UserID,
		Event:      models.AuditSubmissionDelete,
		ObjectType: "submission_file",
		ObjectID:   &fileID,
	})
	return nil
}

// MyWeeks returns the weeks the actor submitted to, newest first.
func (s *SubmissionService) MyWeeks(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.WeekFileCount, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	weeks, err := s.store.ListStudentWeeks(ctx, actor.UserID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submission weeks")
	}
	return weeks, nil
}

// WeekOverview is the teacher view: which students handed in how many
// files for the week.
func (s *SubmissionService) WeekOverview(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.StudentSubmissionSummary, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	students, err := s.store.ListStudentsByWeek(ctx, weekNo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list week submissions")
	}
	return students, nil
}

func (s *SubmissionService) resolveWeek(ctx context.Context, weekNo int) (*models.Week, error) {
	week, err := s.weeks.GetByWeekNo(ctx, weekNo)
	if err != nil {
		return nil, appErrors.ErrWeekNotFound
	}
	return week, nil
}
