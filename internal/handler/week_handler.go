package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edukit/coursebot-api/internal/dto"
	"github.com/edukit/coursebot-api/internal/middleware"
	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
	"github.com/edukit/coursebot-api/pkg/response"
)

type weekService interface {
	Create(ctx context.Context, actor *models.JWTClaims, weekNo int, topic string) (*models.Week, error)
	Get(ctx context.Context, actor *models.JWTClaims, weekNo int) (*models.Week, error)
	ListNumbers(ctx context.Context, actor *models.JWTClaims, limit int) ([]int, bool, error)
}

// WeekHandler exposes the course week axis over HTTP.
type WeekHandler struct {
	service weekService
}

// NewWeekHandler constructs the handler.
func NewWeekHandler(service weekService) *WeekHandler {
	return &WeekHandler{service: service}
}

// Create registers a new course week.
func (h *WeekHandler) Create(c *gin.Context) {
	var req dto.CreateWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week payload"))
		return
	}
	week, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req.WeekNo, req.Topic)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, week)
}

// Get returns one week by number.
func (h *WeekHandler) Get(c *gin.Context) {
	weekNo, ok := weekParam(c)
	if !ok {
		return
	}
	week, err := h.service.Get(c.Request.Context(), claimsFromContext(c), weekNo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, week, nil)
}

// List returns the known week numbers.
func (h *WeekHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	numbers, cached, err := h.service.ListNumbers(c.Request.Context(), claimsFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	meta := middleware.ExtractMeta(c)
	response.JSON(c, http.StatusOK, numbers, nil, meta)
}
