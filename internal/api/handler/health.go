package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/roastpage/internal/service"
	"github.com/timmy/roastpage/internal/worker"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks the database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider reports background queue counters.
type StatsProvider interface {
	Stats() worker.Stats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      Pinger
	workers StatsProvider
	caps    service.Capabilities
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger, workers StatsProvider, caps service.Capabilities) *HealthHandler {
	return &HealthHandler{
		db:      db,
		workers: workers,
		caps:    caps,
	}
}

// Health reports database reachability, optional capabilities and queue stats.
// It answers 503 when the database cannot be reached.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":               "ok",
		"database":             "ok",
		"limitedFunctionality": h.caps.LimitedFunctionality(),
		"missingOptionalVars":  h.caps.Check(),
	}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	if h.workers != nil {
		body["workers"] = h.workers.Stats()
	}

	c.JSON(status, body)
}
