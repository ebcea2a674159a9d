package models

// BackupType selects the backup strategy.
type BackupType string

const (
	BackupAuto        BackupType = "auto"
	BackupFull        BackupType = "full"
	BackupIncremental BackupType = "incremental"
)

// BackupState is the single system_backups row tracking when the last
// full and incremental backups finished.
type BackupState struct {
	LastFullTS        int64 `db:"last_full_ts" json:"last_full_ts"`
	LastIncrementalTS int64 `db:"last_inc_ts" json:"last_inc_ts"`
	UpdatedAt         int64 `db:"updated_at" json:"updated_at"`
}

// BackupResult describes a finished backup run.
type BackupResult struct {
	BackupID    string     `json:"backup_id"`
	Type        BackupType `json:"type"`
	ArchivePath string     `json:"archive_path"`
	Objects     int        `json:"objects"`
	SizeBytes   int64      `json:"size_bytes"`
	StartedAt   int64      `json:"started_at"`
	FinishedAt  int64      `json:"finished_at"`
}
