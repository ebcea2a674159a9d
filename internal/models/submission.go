package models

// Submission groups the files a student handed in for one week.
type Submission struct {
	ID        int64  `db:"id" json:"id"`
	WeekNo    int    `db:"week_no" json:"week_no"`
	StudentID string `db:"student_id" json:"student_id"`
	Status    string `db:"status" json:"status"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// SubmissionFile is a single uploaded file inside a submission. Files are
// deduplicated per submission by (hash, size) and soft-deleted.
type SubmissionFile struct {
	ID           int64   `db:"id" json:"id"`
	SubmissionID int64   `db:"submission_id" json:"submission_id"`
	ContentHash  string  `db:"content_hash" json:"content_hash"`
	SizeBytes    int64   `db:"size_bytes" json:"size_bytes"`
	Locator      string  `db:"locator" json:"locator"`
	Mime         *string `db:"mime" json:"mime,omitempty"`
	CreatedAt    int64   `db:"created_at" json:"created_at"`
	DeletedAt    *int64  `db:"deleted_at" json:"-"`
}

// WeekFileCount pairs a week number with the student's live file count.
type WeekFileCount struct {
	WeekNo     int `db:"week_no" json:"week_no"`
	FilesCount int `db:"files_count" json:"files_count"`
}

// StudentSubmissionSummary is the teacher view row: a student that handed
// in at least one live file for the week.
type StudentSubmissionSummary struct {
	StudentID  string `db:"student_id" json:"student_id"`
	FilesCount int    `db:"files_count" json:"files_count"`
}
