package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edukit/coursebot-api/internal/models"
)

func TestWeekCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewWeekRepository(db)
	ctx := context.Background()

	week := &models.Week{WeekNo: 7, Topic: "Recursion"}
	require.NoError(t, repo.Create(ctx, week))
	require.Greater(t, week.ID, int64(0))

	got, err := repo.GetByWeekNo(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, week.ID, got.ID)
	require.Equal(t, "Recursion", got.Topic)

	_, err = repo.GetByWeekNo(ctx, 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWeekCreate_DuplicateNumber(t *testing.T) {
	db := newTestDB(t)
	repo := NewWeekRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Week{WeekNo: 1, Topic: "Intro"}))
	err := repo.Create(ctx, &models.Week{WeekNo: 1, Topic: "Again"})
	require.Error(t, err)
}

func TestWeekListNumbers(t *testing.T) {
	db := newTestDB(t)
	repo := NewWeekRepository(db)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		require.NoError(t, repo.Create(ctx, &models.Week{WeekNo: n}))
	}

	numbers, err := repo.ListWeekNumbers(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, numbers)
}
