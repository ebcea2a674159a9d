package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edukit/coursebot-api/internal/dto"
	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/service"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/response"
)

type materialService interface {
	UploadFile(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType, mime string, visibility models.Visibility, data []byte) (models.UpsertResult, error)
	AddLink(ctx context.Context, actor *models.JWTClaims, weekNo int, url string, visibility models.Visibility) (models.UpsertResult, error)
	GetActive(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (*models.MaterialRecord, error)
	ListWeek(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.MaterialRecord, error)
	ListVersions(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType, limit int) ([]models.MaterialRecord, error)
	Archive(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (bool, error)
	PurgeArchived(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (int64, error)
	EnforceRetention(ctx context.Context, actor *models.JWTClaims, weekNo int, mtype models.MaterialType) (int64, error)
	DownloadURL(ctx context.Context, actor *models.JWTClaims, materialID int64) (string, error)
	Download(ctx context.Context, materialID int64, token string) (*service.MaterialDownload, error)
}

// MaterialHandler exposes the week material catalog over HTTP.
type MaterialHandler struct {
	service materialService
}

// NewMaterialHandler constructs the handler.
func NewMaterialHandler(service materialService) *MaterialHandler {
	return &MaterialHandler{service: service}
}

// Upload accepts a multipart file for a (week, type) slot.
func (h *MaterialHandler) Upload(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	var form dto.UploadMaterialForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close() //nolint:errcheck

	data, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}

	res, err := h.service.UploadFile(
		c.Request.Context(),
		claimsFromContext(c),
		weekNo,
		models.MaterialType(form.Type),
		fileHeader.Header.Get("Content-Type"),
		models.Visibility(form.Visibility),
		data,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, upsertStatus(res), res, nil)
}

// AddLink registers a video link for the week.
func (h *MaterialHandler) AddLink(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	var req dto.AddLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid link payload"))
		return
	}
	res, err := h.service.AddLink(c.Request.Context(), claimsFromContext(c), weekNo, req.URL, models.Visibility(req.Visibility))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, upsertStatus(res), res, nil)
}

// ListWeek returns the active material of every slot in the week.
func (h *MaterialHandler) ListWeek(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	records, err := h.service.ListWeek(c.Request.Context(), claimsFromContext(c), weekNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// GetActive returns the slot's active material.
func (h *MaterialHandler) GetActive(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	rec, err := h.service.GetActive(c.Request.Context(), claimsFromContext(c), weekNo, models.MaterialType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// ListVersions returns the slot's live history, newest first.
func (h *MaterialHandler) ListVersions(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := h.service.ListVersions(c.Request.Context(), claimsFromContext(c), weekNo, models.MaterialType(c.Param("type")), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Archive deactivates the slot's active material.
func (h *MaterialHandler) Archive(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	archived, err := h.service.Archive(c.Request.Context(), claimsFromContext(c), weekNo, models.MaterialType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ArchiveResponse{Archived: archived}, nil)
}

// PurgeArchived permanently deletes the week's archived materials. The
// optional type query narrows the purge to one slot.
func (h *MaterialHandler) PurgeArchived(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	mtype := models.MaterialType(strings.TrimSpace(c.Query("type")))
	count, err := h.service.PurgeArchived(c.Request.Context(), claimsFromContext(c), weekNo, mtype)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PurgeResponse{Deleted: count}, nil)
}

// EnforceRetention trims the slot to the configured version limit.
func (h *MaterialHandler) EnforceRetention(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	count, err := h.service.EnforceRetention(c.Request.Context(), claimsFromContext(c), weekNo, models.MaterialType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PurgeResponse{Deleted: count}, nil)
}

// DownloadURL returns a signed download URL for a material.
func (h *MaterialHandler) DownloadURL(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	url, err := h.service.DownloadURL(c.Request.Context(), claimsFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DownloadURLResponse{URL: url}, nil)
}

// Download streams a material blob after validating the signed token.
func (h *MaterialHandler) Download(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), id, token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}

// upsertStatus maps the catalog decision to an HTTP status: writes are
// 201, duplicate is 200, rejected is 409.
func upsertStatus(res models.UpsertResult) int {
	switch res.Outcome {
	case models.UpsertInserted, models.UpsertResurrected:
		return http.StatusCreated
	case models.UpsertRejected:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func weekParam(c *gin.Context) (int, bool) {
	weekNo, err := strconv.Atoi(c.Param("weekNo"))
	if err != nil || weekNo <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week number"))
		return 0, false
	}
	return weekNo, true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid id"))
		return 0, false
	}
	return id, true
}
