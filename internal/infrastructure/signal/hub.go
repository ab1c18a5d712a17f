package signal

import (
	"fmt"
	"sync"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub maps registered identities to their live connection and implements
// ports.Notifier on top of it.
type Hub struct {
	mu          sync.RWMutex
	connections map[domain.Identity]*connection
	logger      *zap.SugaredLogger
}

var _ ports.Notifier = (*Hub)(nil)

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		connections: make(map[domain.Identity]*connection),
		logger:      logger,
	}
}

// bind makes c the live connection for identity and returns the connection
// it replaced, if any.
func (h *Hub) bind(identity domain.Identity, c *connection) *connection {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := h.connections[identity]
	h.connections[identity] = c
	c.setIdentity(identity)
	if previous == c {
		return nil
	}
	return previous
}

// unbind removes c if it is still the live connection for its identity and
// reports whether it was.
func (h *Hub) unbind(c *connection) bool {
	identity := c.Identity()
	if identity == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[identity] != c {
		return false
	}
	delete(h.connections, identity)
	return true
}

func (h *Hub) Send(identity domain.Identity, event domain.Event) error {
	h.mu.RLock()
	c := h.connections[identity]
	h.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("%w: %s is not connected", domain.ErrTransportFailure, identity)
	}

	frame, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}
	if err := c.trySend(frame); err != nil {
		h.logger.Warnw("event not queued", "identity", identity, "type", event.Type, "error", err)
		return err
	}
	return nil
}

// Broadcast fans event out to every registered identity. Slow receivers are
// disconnected rather than waited on.
func (h *Hub) Broadcast(event domain.Event) {
	frame, err := encodeEvent(event)
	if err != nil {
		h.logger.Errorw("failed to encode event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.trySend(frame); err != nil {
			h.logger.Warnw("dropping slow connection", "identity", c.Identity(), "type", event.Type, "error", err)
		}
	}
}

// Connected reports whether identity has a live connection.
func (h *Hub) Connected(identity domain.Identity) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[identity]
	return ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.connections {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
