// Package notify is an in-process publish/subscribe registry for transient
// operator and session notices. The hub is constructor-injected wherever it
// is needed; there is no package-level instance.
package notify

import (
	"sync"
	"time"
)

// Notice is one transient message. SessionID is empty for notices
// addressed to every subscriber.
type Notice struct {
	Topic     string    `json:"topic"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// Hub fans notices out to subscribers. Delivery is best-effort: a
// subscriber that has fallen behind loses notices rather than blocking
// the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Notice
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Notice)}
}

// Subscribe registers a subscriber and returns its channel plus an
// unsubscribe func. The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan Notice, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Notice, 16)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Publish delivers a notice to all current subscribers. Publish never
// blocks; full subscriber buffers drop the notice.
func (h *Hub) Publish(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
