package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"
	"skycast/internal/core/services"
	"skycast/pkg/config"
	apperrors "skycast/pkg/errors"
	rlog "skycast/pkg/logger"
	"skycast/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the connection-level settings of the coordinator.
type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64

	// Zero MessagesPerSecond disables the per-connection limiter.
	MessagesPerSecond float64
	Burst             int
	MaxConnections    int

	AllowedOrigins []string
	AuthRequired   bool
}

func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		MaxMessageSize: cfg.Signal.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
		AuthRequired:   cfg.Auth.Required,
	}
	if cfg.RateLimiting.Enabled {
		c.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		c.Burst = cfg.RateLimiting.WebSocket.Burst
		c.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
	}
	return c
}

// Coordinator terminates client channels, binds them to identities and
// dispatches their messages to the registry and relay.
type Coordinator struct {
	cfg      Config
	hub      *Hub
	registry ports.BroadcastRegistry
	relay    ports.SignalingRelay
	friends  ports.FriendDirectory
	auth     services.AuthService
	metrics  ports.Metrics
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	slots    chan struct{}
}

// NewCoordinator wires a coordinator. friends and auth may be nil; without
// auth, registered identities are trusted as claimed.
func NewCoordinator(
	cfg Config,
	hub *Hub,
	registry ports.BroadcastRegistry,
	relay ports.SignalingRelay,
	friends ports.FriendDirectory,
	auth services.AuthService,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *Coordinator {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	s := &Coordinator{
		cfg:      cfg,
		hub:      hub,
		registry: registry,
		relay:    relay,
		friends:  friends,
		auth:     auth,
		metrics:  metrics,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, cfg.MaxConnections)
	}
	return s
}

func (s *Coordinator) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		default:
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}
	c := newConnection(utils.GenerateConnID(), ws, s.cfg.SendBuffer, limiter)
	ctx := rlog.WithConnID(r.Context(), c.id)

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	s.logger.Debugw("connection opened", "conn_id", c.id, "remote_addr", r.RemoteAddr)

	go c.writePump(s.cfg.PingInterval, s.cfg.WriteTimeout)
	s.readPump(ctx, c)

	c.closeWith(websocket.CloseNormalClosure, "")
	s.disconnect(ctx, c)
}

// readPump processes frames in arrival order until the channel fails.
func (s *Coordinator) readPump(ctx context.Context, c *connection) {
	c.ws.SetReadLimit(s.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		if identity := c.Identity(); identity != "" {
			s.registry.Touch(identity)
		}
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Infow("connection read failed", "conn_id", c.id, "identity", c.Identity(), "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			s.logger.Debugw("malformed frame", "conn_id", c.id, "frame", utils.TruncateString(string(data), 128))
			s.replyError(c, "", domainErr(domain.ErrInvalidArgument, "malformed frame"))
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			s.replyError(c, env.RequestID, apperrors.NewRateLimitError())
			continue
		}

		s.dispatch(ctx, c, env)
	}
}

// disconnect runs the registry cleanup for a connection that was still the
// live one for its identity. A connection replaced by takeover skips it.
func (s *Coordinator) disconnect(ctx context.Context, c *connection) {
	if !s.hub.unbind(c) {
		s.logger.Debugw("connection closed", "conn_id", c.id)
		return
	}
	identity := c.Identity()
	s.registry.ViewerDisconnected(context.WithoutCancel(ctx), identity)
	s.registry.OwnerDisconnected(identity)
	s.logger.Infow("identity disconnected", "conn_id", c.id, "identity", identity)
}

func (s *Coordinator) reply(c *connection, requestID string, payload any) {
	frame, err := json.Marshal(ReplyFrame{Type: FrameReply, RequestID: requestID, Payload: payload})
	if err != nil {
		s.logger.Errorw("failed to encode reply", "error", err)
		return
	}
	c.trySend(frame)
}

func (s *Coordinator) replyError(c *connection, requestID string, err error) {
	appErr := apperrors.FromDomain(err)
	if appErr.Code == apperrors.ErrCodeInternal {
		s.logger.Errorw("request failed", "conn_id", c.id, "identity", c.Identity(), "error", err)
	}

	frame, mErr := json.Marshal(ErrorFrame{
		Type:      FrameError,
		RequestID: requestID,
		Code:      string(appErr.Code),
		Message:   appErr.Message,
	})
	if mErr != nil {
		s.logger.Errorw("failed to encode error", "error", mErr)
		return
	}
	c.trySend(frame)
}

func (s *Coordinator) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Hub exposes the connection table, for shutdown and health reporting.
func (s *Coordinator) Hub() *Hub {
	return s.hub
}
