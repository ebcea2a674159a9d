package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
)

type submissionStoreStub struct {
	submissions map[string]int64
	files       map[string]int64
	nextFile    int64
	deleted     []int64
	deleteOK    bool
}

func newSubmissionStoreStub() *submissionStoreStub {
	return &submissionStoreStub{
		submissions: make(map[string]int64),
		files:       make(map[string]int64),
		nextFile:    1,
		deleteOK:    true,
	}
}

func (s *submissionStoreStub) GetOrCreate(ctx context.Context, studentID string, weekNo int) (int64, error) {
	key := fmt.Sprintf("%s|%d", studentID, weekNo)
	if id, ok := s.submissions[key]; ok {
		return id, nil
	}
	id := int64(len(s.submissions) + 1)
	s.submissions[key] = id
	return id, nil
}

func (s *submissionStoreStub) AddFile(ctx context.Context, submissionID int64, hash string, sizeBytes int64, locator string, mime *string) (int64, bool, error) {
	key := fmt.Sprintf("%d|%s", submissionID, hash)
	if id, ok := s.files[key]; ok {
		return id, true, nil
	}
	id := s.nextFile
	s.nextFile++
	s.files[key] = id
	return id, false, nil
}

func (s *submissionStoreStub) ListFiles(ctx context.Context, studentID string, weekNo int) ([]models.SubmissionFile, error) {
	return nil, nil
}

func (s *submissionStoreStub) SoftDeleteFile(ctx context.Context, fileID int64, studentID string) (bool, error) {
	if !s.deleteOK {
		return false, nil
	}
	s.deleted = append(s.deleted, fileID)
	return true, nil
}

func (s *submissionStoreStub) ListStudentWeeks(ctx context.Context, studentID string, limit int) ([]models.WeekFileCount, error) {
	return []models.WeekFileCount{{WeekNo: 3, FilesCount: 2}}, nil
}

func (s *submissionStoreStub) ListStudentsByWeek(ctx context.Context, weekNo int) ([]models.StudentSubmissionSummary, error) {
	return []models.StudentSubmissionSummary{{StudentID: "student-1", FilesCount: 2}}, nil
}

func newSubmissionService(t *testing.T, store *submissionStoreStub, audit *auditStub) *SubmissionService {
	weeks := weekStub{weeks: map[int]*models.Week{3: {ID: 30, WeekNo: 3}}}
	return NewSubmissionService(store, weeks, newBlobStub(t), audit, nil, 1024)
}

func TestSubmissionUpload(t *testing.T) {
	store := newSubmissionStoreStub()
	audit := &auditStub{}
	svc := newSubmissionService(t, store, audit)

	res, err := svc.Upload(context.Background(), studentClaims(), 3, "application/pdf", []byte("homework"))
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditSubmissionUpload, audit.entries[0].Event)

	// Same bytes again: duplicate, no second audit entry.
	again, err := svc.Upload(context.Background(), studentClaims(), 3, "application/pdf", []byte("homework"))
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Equal(t, res.FileID, again.FileID)
	require.Len(t, audit.entries, 1)
}

func TestSubmissionUploadUnknownWeek(t *testing.T) {
	svc := newSubmissionService(t, newSubmissionStoreStub(), &auditStub{})

	_, err := svc.Upload(context.Background(), studentClaims(), 9, "", []byte("homework"))
	require.Equal(t, appErrors.ErrWeekNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubmissionDeleteFile(t *testing.T) {
	store := newSubmissionStoreStub()
	audit := &auditStub{}
	svc := newSubmissionService(t, store, audit)

	require.NoError(t, svc.DeleteFile(context.Background(), studentClaims(), 4))
	require.Equal(t, []int64{4}, store.deleted)
	require.Len(t, audit.entries, 1)

	store.deleteOK = false
	err := svc.DeleteFile(context.Background(), studentClaims(), 5)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubmissionWeekOverviewManagerOnly(t *testing.T) {
	svc := newSubmissionService(t, newSubmissionStoreStub(), &auditStub{})

	_, err := svc.WeekOverview(context.Background(), studentClaims(), 3)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	rows, err := svc.WeekOverview(context.Background(), teacherClaims(), 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
