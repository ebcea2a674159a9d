package models

import "encoding/json"

// Audit event names emitted by the services.
const (
	AuditMaterialUpload    = "MATERIAL_UPLOAD"
	AuditMaterialLink      = "MATERIAL_LINK"
	AuditMaterialArchive   = "MATERIAL_ARCHIVE"
	AuditMaterialPurge     = "MATERIAL_PURGE"
	AuditMaterialRetention = "MATERIAL_RETENTION"
	AuditSubmissionUpload  = "SUBMISSION_UPLOAD"
	AuditSubmissionDelete  = "SUBMISSION_DELETE"
	AuditBackupRun         = "BACKUP_RUN"
)

// AuditEntry is one audit trail record. Writes are fire-and-forget: the
// services hand entries to a background queue and never block on them.
type AuditEntry struct {
	ID         int64           `db:"id" json:"id"`
	TS         int64           `db:"ts" json:"ts"`
	RequestID  string          `db:"request_id" json:"request_id,omitempty"`
	ActorID    string          `db:"actor_id" json:"actor_id"`
	Event      string          `db:"event" json:"event"`
	ObjectType string          `db:"object_type" json:"object_type,omitempty"`
	ObjectID   *int64          `db:"object_id" json:"object_id,omitempty"`
	Meta       json.RawMessage `db:"meta" json:"meta,omitempty"`
}
