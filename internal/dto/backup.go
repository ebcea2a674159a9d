package dto

// RunBackupRequest selects the backup strategy; empty means auto.
type RunBackupRequest struct {
	Type string `json:"type" binding:"omitempty,oneof=auto full incremental"`
}
