// Package events exposes session lifecycle events to the GUI layer over a
// local websocket. The hub is broadcast-only: subscribers that cannot keep
// up are disconnected rather than allowed to backpressure the pipeline.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State values carried by lifecycle events.
const (
	StatePrepared  = "prepared"
	StateRecording = "recording"
	StatePaused    = "paused"
	StateFinalized = "finalized"
	StateAborted   = "aborted"
)

// Event is one lifecycle notification.
type Event struct {
	State     string    `json:"state"`
	Path      string    `json:"path,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberQueue = 16

// Hub fans lifecycle events out to websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// GUI connects from the local machine only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[chan Event]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams events until the subscriber
// disconnects or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("event subscriber upgrade failed", "error", err)
		return
	}

	ch := make(chan Event, subscriberQueue)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Publish delivers ev to all subscribers without blocking. A subscriber with
// a full queue is dropped; the GUI reconnects and re-reads the status file.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
