package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"skycast/internal/core/domain"
	"skycast/pkg/tracing"
	"skycast/pkg/utils"
	"skycast/pkg/validation"

	"github.com/gorilla/websocket"
)

func domainErr(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func (s *Coordinator) dispatch(ctx context.Context, c *connection, env Envelope) {
	ctx, span := tracing.TraceWebSocketMessage(ctx, env.Type, string(c.Identity()))
	defer span.End()

	result, err := s.handle(ctx, c, env)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Debugw("request rejected",
			"conn_id", c.id,
			"identity", c.Identity(),
			"type", env.Type,
			"error", err,
		)
		s.replyError(c, env.RequestID, err)
		return
	}
	if result != nil {
		s.reply(c, env.RequestID, result)
	}
}

// handle returns the reply payload, or nil for messages that get none.
func (s *Coordinator) handle(ctx context.Context, c *connection, env Envelope) (any, error) {
	if env.Type == MsgRegisterIdentity {
		return s.handleRegister(ctx, c, env.Payload)
	}

	identity := c.Identity()
	if identity == "" {
		return nil, domainErr(domain.ErrAuthenticationRequired, "register_identity first")
	}

	switch env.Type {
	case MsgStartBroadcast:
		return s.handleStart(ctx, identity, env.Payload)
	case MsgStopBroadcast:
		if err := s.registry.Stop(ctx, identity); err != nil {
			return nil, err
		}
		return ack{OK: true}, nil
	case MsgJoinBroadcast:
		return s.handleJoin(ctx, identity, env.Payload)
	case MsgLeaveBroadcast:
		var p BroadcastRef
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		if err := s.registry.Leave(ctx, p.BroadcastID, identity); err != nil {
			return nil, err
		}
		return ack{OK: true}, nil
	case MsgOffer:
		return nil, s.handleRelay(ctx, domain.RelayOffer, identity, env.Payload)
	case MsgAnswer:
		return nil, s.handleRelay(ctx, domain.RelayAnswer, identity, env.Payload)
	case MsgCandidate:
		return nil, s.handleRelay(ctx, domain.RelayCandidate, identity, env.Payload)
	case MsgTransportConnected:
		var p ConnectedPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.relay.Connected(ctx, identity, p.Peer)
	case MsgHeartbeat:
		s.registry.Touch(identity)
		return ack{OK: true}, nil
	case MsgListBroadcasts:
		list := s.registry.List(ctx)
		if list == nil {
			list = []domain.Summary{}
		}
		return listReply{Broadcasts: list}, nil
	}
	return nil, domainErr(domain.ErrInvalidArgument, fmt.Sprintf("unknown message type %q", env.Type))
}

func (s *Coordinator) handleRegister(ctx context.Context, c *connection, raw json.RawMessage) (any, error) {
	var p RegisterPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := validation.ValidateIdentity(string(p.Identity)); err != nil {
		return nil, domainErr(domain.ErrInvalidArgument, err.Error())
	}

	current := c.Identity()
	if current != "" && current != p.Identity {
		return nil, domainErr(domain.ErrInvalidArgument, fmt.Sprintf("connection is registered as %s", current))
	}
	if s.auth != nil && s.cfg.AuthRequired {
		if err := s.auth.VerifyIdentity(p.Identity, p.Token); err != nil {
			s.logger.Infow("identity not verified",
				"conn_id", c.id,
				"identity", p.Identity,
				"token", utils.MaskSensitive(p.Token, 8),
				"error", err,
			)
			return nil, err
		}
	}
	if current == p.Identity {
		return ack{OK: true}, nil
	}

	if previous := s.hub.bind(p.Identity, c); previous != nil {
		s.replyError(previous, "", domainErr(domain.ErrConflict, "identity registered from another connection"))
		previous.closeWith(websocket.ClosePolicyViolation, "replaced by a newer connection")
		s.logger.Infow("connection taken over", "identity", p.Identity, "old_conn_id", previous.id, "conn_id", c.id)
	}
	s.registry.OwnerReconnected(p.Identity)
	tracing.AddSpanAttributes(ctx, tracing.IdentityKey.String(string(p.Identity)))

	s.logger.Infow("identity registered", "conn_id", c.id, "identity", p.Identity)
	return ack{OK: true}, nil
}

func (s *Coordinator) handleStart(ctx context.Context, owner domain.Identity, raw json.RawMessage) (any, error) {
	var p StartPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	p.Title = utils.SanitizeString(p.Title)
	p.Category = utils.SanitizeString(p.Category)

	privacy, ok := domain.ParsePrivacyMode(p.PrivacyMode)
	if !ok {
		return nil, domainErr(domain.ErrInvalidArgument, fmt.Sprintf("unknown privacy_mode %q", p.PrivacyMode))
	}
	if err := validation.ValidateTitle(p.Title); err != nil {
		return nil, domainErr(domain.ErrInvalidArgument, err.Error())
	}
	if err := validation.ValidateCategory(p.Category); err != nil {
		return nil, domainErr(domain.ErrInvalidArgument, err.Error())
	}

	allowed := p.AllowedViewers
	if privacy == domain.PrivacyFriendsOnly && len(allowed) == 0 && s.friends != nil {
		friends, err := s.friends.Friends(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("resolve friends of %s: %w", owner, err)
		}
		allowed = friends
	}

	names := make([]string, len(allowed))
	for i, v := range allowed {
		names[i] = string(v)
	}
	if err := validation.ValidateAllowedViewers(names); err != nil {
		return nil, domainErr(domain.ErrInvalidArgument, err.Error())
	}

	id, err := s.registry.Start(ctx, domain.StartRequest{
		Owner:          owner,
		Title:          p.Title,
		Category:       p.Category,
		Privacy:        privacy,
		AllowedViewers: allowed,
	})
	if err != nil {
		return nil, err
	}
	tracing.AddSpanAttributes(ctx, tracing.BroadcastIDKey.String(string(id)))
	return startReply{BroadcastID: id}, nil
}

func (s *Coordinator) handleJoin(ctx context.Context, viewer domain.Identity, raw json.RawMessage) (any, error) {
	var p BroadcastRef
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := validation.ValidateBroadcastID(string(p.BroadcastID)); err != nil {
		return nil, domainErr(domain.ErrInvalidArgument, err.Error())
	}
	tracing.AddSpanAttributes(ctx, tracing.BroadcastIDKey.String(string(p.BroadcastID)))

	decision, err := s.registry.Join(ctx, p.BroadcastID, viewer)
	if err != nil {
		return nil, err
	}
	return joinReply{Accepted: decision.Accepted, Reason: decision.Reason}, nil
}

func (s *Coordinator) handleRelay(ctx context.Context, kind domain.RelayKind, from domain.Identity, raw json.RawMessage) error {
	var p RelayPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if err := validation.ValidateIdentity(string(p.Target)); err != nil {
		return domainErr(domain.ErrInvalidArgument, "target: "+err.Error())
	}
	if len(p.Payload) == 0 || string(p.Payload) == "null" {
		return domainErr(domain.ErrInvalidArgument, "payload is required")
	}
	tracing.AddSpanAttributes(ctx,
		tracing.PeerKey.String(string(p.Target)),
		tracing.RelayKindKey.String(string(kind)),
	)
	return s.relay.Relay(ctx, kind, from, p.Target, p.Payload)
}

// decode treats a missing payload as an empty object.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domainErr(domain.ErrInvalidArgument, "malformed payload: "+err.Error())
	}
	return nil
}
