package signal

import (
	"sync"
	"time"

	"skycast/internal/core/domain"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// connection is one client channel. Frames queued with trySend are written
// in order by writePump; a full queue closes the connection.
type connection struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu       sync.Mutex
	identity domain.Identity

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

func newConnection(id string, ws *websocket.Conn, buffer int, limiter *rate.Limiter) *connection {
	return &connection{
		id:        id,
		ws:        ws,
		send:      make(chan []byte, buffer),
		limiter:   limiter,
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (c *connection) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *connection) setIdentity(identity domain.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
}

// trySend never blocks. It fails with domain.ErrBackpressure when the queue
// is full, and the connection is closed so its cleanup can run.
func (c *connection) trySend(frame []byte) error {
	select {
	case <-c.done:
		return domain.ErrTransportFailure
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.closeWith(websocket.ClosePolicyViolation, "send queue full")
		return domain.ErrBackpressure
	}
}

func (c *connection) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// writePump owns all writes to ws.
func (c *connection) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush(writeTimeout)
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return
		}
	}
}

// flush writes frames already queued, such as the error that explains a
// takeover, before the close frame.
func (c *connection) flush(writeTimeout time.Duration) {
	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
