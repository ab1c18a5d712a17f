package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"

	"go.uber.org/zap"
)

// PayloadValidator checks an opaque negotiation payload before it is relayed.
type PayloadValidator interface {
	Validate(kind domain.RelayKind, payload json.RawMessage) error
}

type SignalingRelay struct {
	registry  ports.BroadcastRegistry
	notifier  ports.Notifier
	validator PayloadValidator
	metrics   ports.Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time
}

var _ ports.SignalingRelay = (*SignalingRelay)(nil)

// NewSignalingRelay builds a relay. validator may be nil, in which case
// payloads are forwarded without inspection.
func NewSignalingRelay(
	registry ports.BroadcastRegistry,
	notifier ports.Notifier,
	validator PayloadValidator,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *SignalingRelay {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SignalingRelay{
		registry:  registry,
		notifier:  notifier,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Admit asks the broadcaster to produce an offer for a newly admitted viewer.
// It runs while the registry holds the broadcast's lock.
func (s *SignalingRelay) Admit(link *domain.PeerLink) {
	err := s.notifier.Send(link.Owner, domain.Event{
		Type:    domain.EventNegotiate,
		Payload: domain.Negotiate{BroadcastID: link.BroadcastID, Viewer: link.Viewer},
	})
	if err != nil {
		// The negotiation timer closes the link if the owner never answers.
		s.logger.Warnw("negotiate not delivered",
			"broadcast_id", link.BroadcastID,
			"owner", link.Owner,
			"viewer", link.Viewer,
			"error", err,
		)
		return
	}
	link.Advance(domain.LinkOfferSent, s.now())
}

func (s *SignalingRelay) Relay(ctx context.Context, kind domain.RelayKind, from, to domain.Identity, payload json.RawMessage) error {
	if s.validator != nil {
		if err := s.validator.Validate(kind, payload); err != nil {
			s.metrics.RelayDropped(kind)
			s.logger.Warnw("relay payload rejected", "kind", kind, "from", from, "to", to, "error", err)
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
	}

	err := s.registry.WithLink(ctx, from, to, func(link *domain.PeerLink) error {
		now := s.now()
		// Offers flow owner to viewer and answers flow back; a frame
		// sent the other way is forwarded without moving the link.
		switch {
		case kind == domain.RelayOffer && from == link.Owner:
			link.Advance(domain.LinkOfferSent, now)
		case kind == domain.RelayAnswer && from == link.Viewer:
			link.Advance(domain.LinkAnswerReceived, now)
		}

		return s.notifier.Send(to, domain.Event{
			Type: kind.EventType(),
			Payload: domain.Relayed{
				From:        from,
				BroadcastID: link.BroadcastID,
				Payload:     payload,
			},
		})
	})

	switch {
	case err == nil:
		s.metrics.RelayForwarded(kind)
		return nil
	case errors.Is(err, domain.ErrUnauthorized):
		s.metrics.RelayDropped(kind)
		s.logger.Warnw("relay dropped: no live peer link", "kind", kind, "from", from, "to", to)
		return fmt.Errorf("%w: %s is not linked to %s", domain.ErrUnauthorized, from, to)
	default:
		s.metrics.RelayDropped(kind)
		s.logger.Warnw("relay delivery failed", "kind", kind, "from", from, "to", to, "error", err)
		return fmt.Errorf("%w: deliver %s to %s: %v", domain.ErrTransportFailure, kind, to, err)
	}
}

// Connected records a peer's report that media is flowing. The transition is
// advisory; a report in the wrong state is ignored.
func (s *SignalingRelay) Connected(ctx context.Context, from, peer domain.Identity) error {
	err := s.registry.WithLink(ctx, from, peer, func(link *domain.PeerLink) error {
		if link.Advance(domain.LinkConnected, s.now()) {
			s.logger.Infow("peer link connected",
				"broadcast_id", link.BroadcastID,
				"owner", link.Owner,
				"viewer", link.Viewer,
			)
		}
		return nil
	})
	if errors.Is(err, domain.ErrUnauthorized) {
		s.logger.Warnw("transport report for unknown link", "from", from, "peer", peer)
	}
	return err
}
