package events

import (
	"encoding/json"
	"time"
)

// TypeRoastUpdated is published whenever a roast's displayable state changes.
const TypeRoastUpdated = "roast.updated"

// Event is the envelope sent to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RoastID string          `json:"roast_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RoastUpdate is the payload of a roast.updated event.
type RoastUpdate struct {
	Status       string `json:"status"`
	RoastVersion int    `json:"roast_version"`
}

// MakeEvent builds an Event, encoding data as JSON.
func MakeEvent(typ, roastID string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{
		Type:    typ,
		Version: 1,
		At:      time.Now().UTC(),
		RoastID: roastID,
		Data:    raw,
	}
}

// Encode returns the event as a JSON string.
func (e Event) Encode() string {
	b, _ := json.Marshal(e)
	return string(b)
}
