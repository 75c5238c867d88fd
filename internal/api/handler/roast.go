package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/service"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RoastCommands is the write side of the roast service.
type RoastCommands interface {
	Create(ctx context.Context, targetURL string) (string, error)
	Retry(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]domain.Roast, error)
}

// RoastQueries assembles roast results for display.
type RoastQueries interface {
	Get(ctx context.Context, id string) *service.RoastResult
	Capabilities() service.Capabilities
}

// RoastHandler handles the public roast endpoints.
type RoastHandler struct {
	roasts RoastCommands
	reader RoastQueries
}

// NewRoastHandler creates a new roast handler.
func NewRoastHandler(roasts RoastCommands, reader RoastQueries) *RoastHandler {
	return &RoastHandler{
		roasts: roasts,
		reader: reader,
	}
}

// CreateRoastRequest is the body of POST /api/v1/roasts.
type CreateRoastRequest struct {
	URL string `json:"url" binding:"required"`
}

// CreateRoast handles POST /api/v1/roasts.
func (h *RoastHandler) CreateRoast(c *gin.Context) {
	var req CreateRoastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "URL is required")
		return
	}

	targetURL, err := service.NormalizeURL(req.URL)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.roasts.Create(c.Request.Context(), targetURL)
	if err != nil {
		writeServiceError(c, "Failed to create roast", err)
		return
	}

	caps := h.reader.Capabilities()
	c.JSON(http.StatusAccepted, gin.H{
		"success":              true,
		"id":                   id,
		"limitedFunctionality": caps.LimitedFunctionality(),
		"missingOptionalVars":  caps.Check(),
	})
}

// GetRoast handles GET /api/v1/roasts/:id.
func (h *RoastHandler) GetRoast(c *gin.Context) {
	result := h.reader.Get(c.Request.Context(), c.Param("id"))
	switch {
	case result.Success:
		c.JSON(http.StatusOK, result)
	case result.NotFound():
		c.JSON(http.StatusNotFound, result)
	default:
		c.JSON(http.StatusInternalServerError, result)
	}
}

// ListRoasts handles GET /api/v1/roasts.
func (h *RoastHandler) ListRoasts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	roasts, err := h.roasts.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeServiceError(c, "Failed to list roasts", err)
		return
	}
	if roasts == nil {
		roasts = []domain.Roast{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"roasts":  roasts,
		"limit":   limit,
		"offset":  offset,
	})
}

// RetryRoast handles POST /api/v1/roasts/:id/retry.
func (h *RoastHandler) RetryRoast(c *gin.Context) {
	if err := h.roasts.Retry(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, "Failed to retry roast", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(c, http.StatusNotFound, action+": "+service.ErrNotFound.Error())
	case errors.Is(err, service.ErrInvalidURL):
		writeError(c, http.StatusBadRequest, action+": "+err.Error())
	default:
		logger.CtxError(c.Request.Context(), "%s: %v", action, err)
		writeError(c, http.StatusInternalServerError, action+": "+err.Error())
	}
}
