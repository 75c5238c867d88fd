package events

import "sync"

// Hub fans events out to subscribers. A subscriber that is not keeping up
// misses events rather than blocking publishers.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]string
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]string)}
}

// Subscribe registers a subscriber for one roast's events, or for all of
// them when roastID is empty.
func (h *Hub) Subscribe(roastID string) chan Event {
	ch := make(chan Event, 10)
	h.mu.Lock()
	h.clients[ch] = roastID
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, roastID := range h.clients {
		if roastID != "" && roastID != evt.RoastID {
			continue
		}
		select {
		case ch <- evt:
		default:
			// drop if slow
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
