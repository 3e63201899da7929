package sync

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// SyncEvent is broadcast to websocket subscribers after every completed cycle.
type SyncEvent struct {
	Type      string       `json:"type"` // "pull" or "push"
	Result    *CycleResult `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
}

// EventHub fans completed cycle results out to connected websocket clients.
type EventHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	log   *zap.Logger
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		conns: make(map[*websocket.Conn]bool),
		log:   log,
	}
}

// Handle serves one subscriber connection until the client goes away.
func (h *EventHub) Handle(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		c.Close()
	}()

	// Reads only to detect disconnect; clients never send payloads.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends an event to every subscriber; dead connections are dropped.
func (h *EventHub) Broadcast(eventType string, result *CycleResult) {
	event := SyncEvent{Type: eventType, Result: result, Timestamp: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteJSON(event); err != nil {
			h.log.Debug("dropping dead websocket subscriber", zap.Error(err))
			delete(h.conns, c)
			c.Close()
		}
	}
}
