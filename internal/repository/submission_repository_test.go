package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubmissionGetOrCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	id, err := repo.GetOrCreate(ctx, "student-1", 3)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	again, err := repo.GetOrCreate(ctx, "student-1", 3)
	require.NoError(t, err)
	require.Equal(t, id, again)

	other, err := repo.GetOrCreate(ctx, "student-1", 4)
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}

func TestSubmissionAddFile_DedupPerSubmission(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	subID, err := repo.GetOrCreate(ctx, "student-1", 3)
	require.NoError(t, err)

	fileID, dup, err := repo.AddFile(ctx, subID, "aaa", 100, "blobs/aaa", nil)
	require.NoError(t, err)
	require.False(t, dup)

	sameID, dup, err := repo.AddFile(ctx, subID, "aaa", 100, "blobs/aaa", nil)
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, fileID, sameID)

	// The same content in another student's submission is not a duplicate.
	otherSub, err := repo.GetOrCreate(ctx, "student-2", 3)
	require.NoError(t, err)
	_, dup, err = repo.AddFile(ctx, otherSub, "aaa", 100, "blobs/aaa", nil)
	require.NoError(t, err)
	require.False(t, dup)
}

func TestSubmissionSoftDeleteFile(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	subID, err := repo.GetOrCreate(ctx, "student-1", 3)
	require.NoError(t, err)
	fileID, _, err := repo.AddFile(ctx, subID, "aaa", 100, "blobs/aaa", nil)
	require.NoError(t, err)

	// Another student cannot delete it.
	ok, err := repo.SoftDeleteFile(ctx, fileID, "student-2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.SoftDeleteFile(ctx, fileID, "student-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Second delete is a no-op.
	ok, err = repo.SoftDeleteFile(ctx, fileID, "student-1")
	require.NoError(t, err)
	require.False(t, ok)

	files, err := repo.ListFiles(ctx, "student-1", 3)
	require.NoError(t, err)
	require.Empty(t, files)

	// Deleted content may be re-uploaded as a fresh file.
	_, dup, err := repo.AddFile(ctx, subID, "aaa", 100, "blobs/aaa", nil)
	require.NoError(t, err)
	require.False(t, dup)
}

func TestSubmissionListViews(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	for _, weekNo := range []int{1, 2} {
		subID, err := repo.GetOrCreate(ctx, "student-1", weekNo)
		require.NoError(t, err)
		_, _, err = repo.AddFile(ctx, subID, "aaa", 100, "blobs/aaa", nil)
		require.NoError(t, err)
	}
	subID, err := repo.GetOrCreate(ctx, "student-2", 2)
	require.NoError(t, err)
	_, _, err = repo.AddFile(ctx, subID, "bbb", 200, "blobs/bbb", nil)
	require.NoError(t, err)
	_, _, err = repo.AddFile(ctx, subID, "ccc", 300, "blobs/ccc", nil)
	require.NoError(t, err)

	weeks, err := repo.ListStudentWeeks(ctx, "student-1", 0)
	require.NoError(t, err)
	require.Len(t, weeks, 2)
	require.Equal(t, 2, weeks[0].WeekNo)
	require.Equal(t, 1, weeks[0].FilesCount)

	students, err := repo.ListStudentsByWeek(ctx, 2)
	require.NoError(t, err)
	require.Len(t, students, 2)
	require.Equal(t, "student-1", students[0].StudentID)
	require.Equal(t, "student-2", students[1].StudentID)
	require.Equal(t, 2, students[1].FilesCount)
}
