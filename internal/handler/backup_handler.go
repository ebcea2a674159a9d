package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edukit/coursebot-api/internal/dto"
	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/response"
)

type backupService interface {
	State(ctx context.Context, actor *models.JWTClaims) (*models.BackupState, error)
	Run(ctx context.Context, actor *models.JWTClaims, btype models.BackupType) (*models.BackupResult, error)
}

type auditLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// BackupHandler exposes backup state, manual runs and the audit trail.
type BackupHandler struct {
	service backupService
	audit   auditLister
}

// NewBackupHandler constructs the handler.
func NewBackupHandler(service backupService, audit auditLister) *BackupHandler {
	return &BackupHandler{service: service, audit: audit}
}

// State returns the last backup timestamps.
func (h *BackupHandler) State(c *gin.Context) {
	state, err := h.service.State(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Run triggers a backup.
func (h *BackupHandler) Run(c *gin.Context) {
	var req dto.RunBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid backup payload"))
		return
	}
	result, err := h.service.Run(c.Request.Context(), claimsFromContext(c), models.BackupType(req.Type))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AuditTrail returns the newest audit entries.
func (h *BackupHandler) AuditTrail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if claims.Role != models.RoleOwner {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit entries"))
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
