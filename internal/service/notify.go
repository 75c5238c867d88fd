package service

import (
	"context"

	"github.com/timmy/roastpage/internal/domain"
	"github.com/timmy/roastpage/internal/events"
)

// EventPublisher forwards roast changes to an events.Hub.
type EventPublisher struct {
	hub *events.Hub
}

// NewEventPublisher creates an EventPublisher.
func NewEventPublisher(hub *events.Hub) *EventPublisher {
	return &EventPublisher{hub: hub}
}

// RoastChanged implements ChangeListener.
func (p *EventPublisher) RoastChanged(ctx context.Context, roastID string, status domain.RoastStatus, version int) {
	p.hub.Publish(events.MakeEvent(events.TypeRoastUpdated, roastID, events.RoastUpdate{
		Status:       string(status),
		RoastVersion: version,
	}))
}
