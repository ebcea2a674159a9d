package dto

// CreateWeekRequest registers a new course week.
type CreateWeekRequest struct {
	WeekNo int    `json:"week_no" binding:"required,min=1"`
	Topic  string `json:"topic" binding:"max=200"`
}
