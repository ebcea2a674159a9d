package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/service"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/response"
)

type submissionService interface {
	Upload(ctx context.Context, actor *models.JWTClaims, weekNo int, mime string, data []byte) (service.SubmissionUploadResult, error)
	ListMine(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.SubmissionFile, error)
	DeleteFile(ctx context.Context, actor *models.JWTClaims, fileID int64) error
	MyWeeks(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.WeekFileCount, error)
	WeekOverview(ctx context.Context, actor *models.JWTClaims, weekNo int) ([]models.StudentSubmissionSummary, error)
}

// SubmissionHandler exposes weekly student hand-ins over HTTP.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

// Upload attaches a multipart file to the actor's submission.
func (h *SubmissionHandler) Upload(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
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

	result, err := h.service.Upload(c.Request.Context(), claimsFromContext(c), weekNo, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// ListMine returns the actor's live files for the week.
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	files, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c), weekNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, nil)
}

// DeleteFile soft deletes one of the actor's own files.
func (h *SubmissionHandler) DeleteFile(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.service.DeleteFile(c.Request.Context(), claimsFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyWeeks returns the weeks the actor submitted to.
func (h *SubmissionHandler) MyWeeks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	weeks, err := h.service.MyWeeks(c.Request.Context(), claimsFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weeks, nil)
}

// WeekOverview is the teacher view of the week's hand-ins.
func (h *SubmissionHandler) WeekOverview(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	rows, err := h.service.WeekOverview(c.Request.Context(), claimsFromContext(c), weekNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
