package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/logger"
)

// RoastAdmin is the maintenance side of the roast service.
type RoastAdmin interface {
	Delete(ctx context.Context, id string) error
	ForceSimulated(ctx context.Context, id string) (*domain.Roast, error)
}

// AdminHandler handles maintenance operations on roasts.
type AdminHandler struct {
	roasts RoastAdmin
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(roasts RoastAdmin) *AdminHandler {
	return &AdminHandler{roasts: roasts}
}

// DeleteRoast handles DELETE /api/v1/admin/roasts/:id.
func (h *AdminHandler) DeleteRoast(c *gin.Context) {
	id := c.Param("id")
	if err := h.roasts.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, "Failed to delete roast", err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("Roast deleted by admin")
	c.Status(http.StatusNoContent)
}

// SimulateRoast handles POST /api/v1/admin/roasts/:id/simulate. The roast's
// result is replaced with a simulated critique before the response is sent.
func (h *AdminHandler) SimulateRoast(c *gin.Context) {
	roast, err := h.roasts.ForceSimulated(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, "Failed to simulate roast", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"roast":   roast,
	})
}
