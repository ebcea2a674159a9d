package models

// Week is a course week. WeekNo is the business key shown to users;
// materials and submissions reference the internal id.
type Week struct {
	ID        int64  `db:"id" json:"id"`
	WeekNo    int    `db:"week_no" json:"week_no"`
	Topic     string `db:"topic" json:"topic,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}
