package dto

// UploadMaterialForm carries the multipart fields of a file upload; the
// payload itself arrives as the "file" part.
type UploadMaterialForm struct {
	Type       string `form:"type" binding:"required"`
	Visibility string `form:"visibility"`
}

// AddLinkRequest registers a video link for a week.
type AddLinkRequest struct {
	URL        string `json:"url" binding:"required,url"`
	Visibility string `json:"visibility"`
}

// DownloadURLResponse wraps a signed (or direct) download URL.
type DownloadURLResponse struct {
	URL string `json:"url"`
}

// PurgeResponse reports how many archived records were removed.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// ArchiveResponse reports whether anything was archived.
type ArchiveResponse struct {
	Archived bool `json:"archived"`
}
