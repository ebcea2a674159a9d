package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/service"
	"github.com/edukit/coursebot-api/pkg/response"
)

type reportService interface {
	MaterialsReport(ctx context.Context, actor *models.JWTClaims, weekNo int, format string) (*service.ReportFile, error)
	SubmissionsReport(ctx context.Context, actor *models.JWTClaims, weekNo int, format string) (*service.ReportFile, error)
}

// ReportHandler serves owner exports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Materials exports the week's active materials as csv or pdf.
func (h *ReportHandler) Materials(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	file, err := h.service.MaterialsReport(c.Request.Context(), claimsFromContext(c), weekNo, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveReport(c, file)
}

// Submissions exports the week's hand-in overview as csv or pdf.
func (h *ReportHandler) Submissions(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	file, err := h.service.SubmissionsReport(c.Request.Context(), claimsFromContext(c), weekNo, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveReport(c, file)
}

func serveReport(c *gin.Context, file *service.ReportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
