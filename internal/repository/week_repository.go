package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edukit/coursebot-api/internal/models"
)

// WeekRepository resolves course weeks by their business key.
type WeekRepository struct {
	db *sqlx.DB
}

// NewWeekRepository constructs the repository.
func NewWeekRepository(db *sqlx.DB) *WeekRepository {
	return &WeekRepository{db: db}
}

// Create inserts a new week. week_no is unique; duplicates fail.
func (r *WeekRepository) Create(ctx context.Context, week *models.Week) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO weeks (week_no, topic) VALUES (?, ?)`,
		week.WeekNo, week.Topic)
	if err != nil {
		return fmt.Errorf("create week: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("week insert id: %w", err)
	}
	week.ID = id
	return nil
}

// GetByWeekNo returns the week with the given number.
func (r *WeekRepository) GetByWeekNo(ctx context.Context, weekNo int) (*models.Week, error) {
	var week models.Week
	err := r.db.GetContext(ctx, &week,
		`SELECT id, week_no, topic, created_at FROM weeks WHERE week_no = ? LIMIT 1`, weekNo)
	if err != nil {
		return nil, err
	}
	return &week, nil
}

// ListWeekNumbers returns week numbers in ascending order, for keyboards
// and week pickers.
func (r *WeekRepository) ListWeekNumbers(ctx context.Context, limit int) ([]int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var numbers []int
	err := r.db.SelectContext(ctx, &numbers,
		`SELECT week_no FROM weeks ORDER BY week_no ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	return numbers, nil
}
