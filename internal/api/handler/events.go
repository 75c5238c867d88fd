package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/roastpage/internal/events"
	"github.com/timmy/roastpage/internal/logger"
)

const sseKeepAlive = 15 * time.Second

// EventsHandler streams roast updates as server-sent events.
type EventsHandler struct {
	hub    *events.Hub
	reader RoastQueries
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(hub *events.Hub, reader RoastQueries) *EventsHandler {
	return &EventsHandler{hub: hub, reader: reader}
}

// StreamRoast handles GET /api/v1/roasts/:id/events. The subscription is
// opened before the current state is read, and that state is the first
// message, so no update published in between is lost.
func (h *EventsHandler) StreamRoast(c *gin.Context) {
	id := c.Param("id")

	ch := h.hub.Subscribe(id)
	defer h.hub.Unsubscribe(ch)

	result := h.reader.Get(c.Request.Context(), id)
	if !result.Success {
		if result.NotFound() {
			c.JSON(http.StatusNotFound, result)
		} else {
			c.JSON(http.StatusInternalServerError, result)
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeEvent(c, events.MakeEvent(events.TypeRoastUpdated, id, events.RoastUpdate{
		Status:       string(result.Roast.Status),
		RoastVersion: result.Roast.Version,
	}))

	ctx := c.Request.Context()
	logger.CtxDebug(ctx, "Event stream opened")

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.CtxDebug(ctx, "Event stream closed")
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(c, evt)
		case <-ticker.C:
			c.SSEvent("ping", "")
			c.Writer.Flush()
		}
	}
}

func writeEvent(c *gin.Context, evt events.Event) {
	c.SSEvent("message", evt.Encode())
	c.Writer.Flush()
}
