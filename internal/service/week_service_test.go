package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
)

type weekStoreStub struct {
	weeks     map[int]*models.Week
	createErr error
	listCalls int
}

func (s *weekStoreStub) Create(ctx context.Context, week *models.Week) error {
	if s.createErr != nil {
		return s.createErr
	}
	week.ID = int64(week.WeekNo * 10)
	if s.weeks == nil {
		s.weeks = map[int]*models.Week{}
	}
	s.weeks[week.WeekNo] = week
	return nil
}

func (s *weekStoreStub) GetByWeekNo(ctx context.Context, weekNo int) (*models.Week, error) {
	week, ok := s.weeks[weekNo]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return week, nil
}

func (s *weekStoreStub) ListWeekNumbers(ctx context.Context, limit int) ([]int, error) {
	s.listCalls++
	numbers := make([]int, 0, len(s.weeks))
	for weekNo := range s.weeks {
		numbers = append(numbers, weekNo)
	}
	return numbers, nil
}

type cacheRepoStub struct {
	entries map[string][]byte
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.entries == nil {
		s.entries = map[string][]byte{}
	}
	s.entries[key] = raw
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	delete(s.entries, pattern)
	return nil
}

func newWeekService(store *weekStoreStub, cacheRepo CacheRepository) *WeekService {
	enabled := cacheRepo != nil
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, enabled)
	return NewWeekService(store, cache, nil)
}

func TestWeekCreate(t *testing.T) {
	store := &weekStoreStub{}
	svc := newWeekService(store, nil)

	week, err := svc.Create(context.Background(), teacherClaims(), 3, "  Graph algorithms  ")
	require.NoError(t, err)
	require.Equal(t, 3, week.WeekNo)
	require.Equal(t, "Graph algorithms", week.Topic)
}

func TestWeekCreateForbiddenForStudents(t *testing.T) {
	svc := newWeekService(&weekStoreStub{}, nil)

	_, err := svc.Create(context.Background(), studentClaims(), 3, "")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestWeekCreateDuplicateIsConflict(t *testing.T) {
	store := &weekStoreStub{createErr: errors.New("UNIQUE constraint failed: weeks.week_no")}
	svc := newWeekService(store, nil)

	_, err := svc.Create(context.Background(), teacherClaims(), 3, "")
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestWeekGetNotFound(t *testing.T) {
	svc := newWeekService(&weekStoreStub{}, nil)

	_, err := svc.Get(context.Background(), studentClaims(), 9)
	require.ErrorIs(t, err, appErrors.ErrWeekNotFound)
}

func TestWeekListNumbersUsesCache(t *testing.T) {
	store := &weekStoreStub{weeks: map[int]*models.Week{1: {ID: 10, WeekNo: 1}}}
	svc := newWeekService(store, &cacheRepoStub{})

	first, cached, err := svc.ListNumbers(context.Background(), studentClaims(), 50)
	require.NoError(t, err)
	require.Equal(t, []int{1}, first)
	require.False(t, cached)

	second, cached, err := svc.ListNumbers(context.Background(), studentClaims(), 50)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.True(t, cached)
	require.Equal(t, 1, store.listCalls)
}

func TestWeekCreateInvalidatesCachedNumbers(t *testing.T) {
	store := &weekStoreStub{weeks: map[int]*models.Week{1: {ID: 10, WeekNo: 1}}}
	cacheRepo := &cacheRepoStub{}
	svc := newWeekService(store, cacheRepo)

	_, _, err := svc.ListNumbers(context.Background(), studentClaims(), 50)
	require.NoError(t, err)
	require.Contains(t, cacheRepo.entries, weekNumbersCacheKey)

	_, err = svc.Create(context.Background(), teacherClaims(), 2, "")
	require.NoError(t, err)
	require.NotContains(t, cacheRepo.entries, weekNumbersCacheKey)
}
