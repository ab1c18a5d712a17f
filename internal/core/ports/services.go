package ports

import (
	"context"
	"encoding/json"

	"skycast/internal/core/domain"
)

// CostLedger holds funds for a broadcast at start and settles them at end.
type CostLedger interface {
	Reserve(ctx context.Context, account domain.Identity, broadcastID domain.BroadcastID, amount int64) (domain.ReservationHandle, error)
	Finalize(ctx context.Context, handle domain.ReservationHandle, actualAmount int64) error
}

// Notifier delivers events to connected identities.
type Notifier interface {
	Send(identity domain.Identity, event domain.Event) error
	Broadcast(event domain.Event)
}

type BroadcastRegistry interface {
	Start(ctx context.Context, req domain.StartRequest) (domain.BroadcastID, error)
	Stop(ctx context.Context, owner domain.Identity) error
	Join(ctx context.Context, id domain.BroadcastID, viewer domain.Identity) (domain.Decision, error)
	Leave(ctx context.Context, id domain.BroadcastID, viewer domain.Identity) error
	List(ctx context.Context) []domain.Summary
	Snapshot(ctx context.Context, id domain.BroadcastID) (*domain.Snapshot, error)

	// WithLink runs fn on the broadcast's serialized writer against the live
	// PeerLink whose two ends are from and to. It returns domain.ErrUnauthorized
	// when no such link exists.
	WithLink(ctx context.Context, from, to domain.Identity, fn func(link *domain.PeerLink) error) error

	Touch(owner domain.Identity)
	OwnerDisconnected(owner domain.Identity)
	OwnerReconnected(owner domain.Identity)
	ViewerDisconnected(ctx context.Context, viewer domain.Identity)
}

type SignalingRelay interface {
	Relay(ctx context.Context, kind domain.RelayKind, from, to domain.Identity, payload json.RawMessage) error
	Connected(ctx context.Context, from, peer domain.Identity) error
}
