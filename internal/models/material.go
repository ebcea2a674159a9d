package models

// MaterialType enumerates the slot types a week can carry. The enumeration
// is closed: video_link is the only reference type, the rest carry a file
// payload stored in the blob store.
type MaterialType string

const (
	MaterialPrep       MaterialType = "prep"
	MaterialMethodical MaterialType = "methodical"
	MaterialNotes      MaterialType = "notes"
	MaterialSlides     MaterialType = "slides"
	MaterialVideoLink  MaterialType = "video_link"
)

// MaterialTypes lists every known type in display order.
var MaterialTypes = []MaterialType{
	MaterialPrep,
	MaterialMethodical,
	MaterialNotes,
	MaterialSlides,
	MaterialVideoLink,
}

// Valid reports whether the type belongs to the closed enumeration.
func (t MaterialType) Valid() bool {
	switch t {
	case MaterialPrep, MaterialMethodical, MaterialNotes, MaterialSlides, MaterialVideoLink:
		return true
	}
	return false
}

// IsFile reports whether the type carries a binary payload.
func (t MaterialType) IsFile() bool {
	return t != MaterialVideoLink
}

// Visibility controls who can see a material.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityTeacherOnly Visibility = "teacher_only"
)

// Valid reports whether the visibility value is known.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityTeacherOnly
}

// MaterialRecord is one versioned entry in a (week, type) slot. The id is
// stable across lifecycle transitions; the version is reassigned when an
// archived record is resurrected.
type MaterialRecord struct {
	ID          int64        `db:"id" json:"id"`
	WeekID      int64        `db:"week_id" json:"week_id"`
	Type        MaterialType `db:"type" json:"type"`
	Version     int          `db:"version" json:"version"`
	Locator     string       `db:"locator" json:"locator"`
	ContentHash *string      `db:"content_hash" json:"content_hash,omitempty"`
	SizeBytes   *int64       `db:"size_bytes" json:"size_bytes,omitempty"`
	Mime        *string      `db:"mime" json:"mime,omitempty"`
	Visibility  Visibility   `db:"visibility" json:"visibility"`
	UploadedBy  string       `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   int64        `db:"created_at" json:"created_at"`
	IsActive    bool         `db:"is_active" json:"is_active"`
	DeletedAt   *int64       `db:"deleted_at" json:"-"`
	WeekNo      int          `db:"week_no" json:"week_no"`
}

// IdentityScope controls where duplicate detection applies.
type IdentityScope int

const (
	// ScopeGlobal treats identical content as the same physical object
	// across every week and every file type.
	ScopeGlobal IdentityScope = iota
	// ScopePerSlot confines identity to a single (week, type) slot.
	ScopePerSlot
)

// ContentIdentity is the dedup key of an upload: hash+size for file types,
// the bare locator for links.
type ContentIdentity struct {
	Scope     IdentityScope
	Hash      string
	SizeBytes int64
	Locator   string
}

// FileIdentity builds a globally scoped identity from a content digest.
func FileIdentity(hash string, sizeBytes int64) ContentIdentity {
	return ContentIdentity{Scope: ScopeGlobal, Hash: hash, SizeBytes: sizeBytes}
}

// LinkIdentity builds a per-slot identity from a URL.
func LinkIdentity(url string) ContentIdentity {
	return ContentIdentity{Scope: ScopePerSlot, Locator: url}
}

// UpsertOutcome is the decision the catalog reached for an upload.
type UpsertOutcome string

const (
	// UpsertInserted means a new record was written and made active.
	UpsertInserted UpsertOutcome = "inserted"
	// UpsertResurrected means an archived record of the target slot was
	// reactivated under a fresh version number.
	UpsertResurrected UpsertOutcome = "resurrected"
	// UpsertDuplicate means the upload matches the slot's active record;
	// nothing was written.
	UpsertDuplicate UpsertOutcome = "duplicate"
	// UpsertRejected means the content is already claimed by another slot.
	UpsertRejected UpsertOutcome = "rejected"
)

// UpsertResult reports what the catalog did with an upload. MaterialID is
// -1 for the duplicate and rejected outcomes, mirroring the sentinel the
// callers branch on.
type UpsertResult struct {
	Outcome    UpsertOutcome `json:"outcome"`
	MaterialID int64         `json:"material_id"`
	Version    int           `json:"version,omitempty"`
}

// Wrote reports whether the upsert changed catalog state.
func (r UpsertResult) Wrote() bool {
	return r.Outcome == UpsertInserted || r.Outcome == UpsertResurrected
}
