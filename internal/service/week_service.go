package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
)

type weekStore interface {
	Create(ctx context.Context, week *models.Week) error
	GetByWeekNo(ctx context.Context, weekNo int) (*models.Week, error)
	ListWeekNumbers(ctx context.Context, limit int) ([]int, error)
}

const weekNumbersCacheKey = "weeks:numbers"

// WeekService manages the course week axis. The week list backs every
// keyboard the bot renders, so it is cached aggressively.
type WeekService struct {
	store  weekStore
	cache  *CacheService
	logger *zap.Logger
}

// NewWeekService constructs the service.
func NewWeekService(store weekStore, cache *CacheService, logger *zap.Logger) *WeekService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeekService{store: store, cache: cache, logger: logger}
}

// Create registers a new course week.
func (s *WeekService) Create(ctx context.Context, actor *models.JWTClaims, weekNo int, topic string) (*models.Week, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if weekNo <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "week number must be positive")
	}
	week := &models.Week{WeekNo: weekNo, Topic: strings.TrimSpace(topic)}
	if err := s.store.Create(ctx, week); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, appErrors.Clone(appErrors.ErrConflict, "week already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create week")
	}
	if err := s.cache.Invalidate(ctx, weekNumbersCacheKey); err != nil {
		s.logger.Warn("failed to invalidate week cache", zap.Error(err))
	}
	return week, nil
}

// Get returns the week with the given number.
func (s *WeekService) Get(ctx context.Context, actor *models.JWTClaims, weekNo int) (*models.Week, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	week, err := s.store.GetByWeekNo(ctx, weekNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrWeekNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load week")
	}
	return week, nil
}

// ListNumbers returns the known week numbers in ascending order. The
// second return reports whether the list came from the cache.
func (s *WeekService) ListNumbers(ctx context.Context, actor *models.JWTClaims, limit int) ([]int, bool, error) {
	if actor == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	var cached []int
	if hit, _ := s.cache.Get(ctx, weekNumbersCacheKey, &cached); hit {
		return cached, true, nil
	}
	numbers, err := s.store.ListWeekNumbers(ctx, limit)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list weeks")
	}
	if err := s.cache.Set(ctx, weekNumbersCacheKey, numbers, 0); err != nil {
		s.logger.Warn("failed to cache week numbers", zap.Error(err))
	}
	return numbers, false, nil
}
