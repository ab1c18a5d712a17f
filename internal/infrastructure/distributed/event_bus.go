package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "skycast:events"

// Event is the wire form of a lifecycle event on the shared channel.
type Event struct {
	Type       domain.EventType `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus is a Notifier that delivers to the local hub and mirrors
// broadcast_available and broadcast_ended to the other instances.
type EventBus struct {
	local      ports.Notifier
	client     redis.UniversalClient
	instanceID string
	logger     *zap.SugaredLogger
	outbox     chan *Event
}

func NewEventBus(
	local ports.Notifier,
	client redis.UniversalClient,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		local:      local,
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		outbox:     make(chan *Event, 256),
	}
}

func (eb *EventBus) Send(identity domain.Identity, event domain.Event) error {
	return eb.local.Send(identity, event)
}

// Broadcast never blocks: mirrored events are queued for the publisher and
// dropped with a warning when the queue is full.
func (eb *EventBus) Broadcast(event domain.Event) {
	eb.local.Broadcast(event)

	if !mirrored(event.Type) {
		return
	}
	wire, err := eb.encode(event)
	if err != nil {
		eb.logger.Warnw("failed to encode lifecycle event", "type", event.Type, "error", err)
		return
	}
	select {
	case eb.outbox <- wire:
	default:
		eb.logger.Warnw("event bus queue full, dropping event", "type", event.Type)
	}
}

// Run publishes queued events and re-emits remote ones until ctx is done.
func (eb *EventBus) Run(ctx context.Context) error {
	pubsub := eb.client.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	// Wait for the subscription so nothing published after Run starts is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eventsChannel, err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wire := <-eb.outbox:
			eb.publish(ctx, wire)
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eb.handle(msg.Payload)
		}
	}
}

func (eb *EventBus) publish(ctx context.Context, wire *Event) {
	data, err := json.Marshal(wire)
	if err != nil {
		eb.logger.Warnw("failed to marshal event", "type", wire.Type, "error", err)
		return
	}
	if err := eb.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		eb.logger.Warnw("failed to publish event", "type", wire.Type, "error", err)
		return
	}
	eb.logger.Debugw("published event", "type", wire.Type)
}

func (eb *EventBus) handle(raw string) {
	var wire Event
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", raw)
		return
	}
	if wire.InstanceID == eb.instanceID {
		return
	}
	event, err := decode(&wire)
	if err != nil {
		eb.logger.Warnw("dropping remote event", "type", wire.Type, "error", err)
		return
	}
	eb.local.Broadcast(event)
}

func (eb *EventBus) encode(event domain.Event) (*Event, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:       event.Type,
		InstanceID: eb.instanceID,
		Timestamp:  time.Now(),
		Payload:    payload,
	}, nil
}

func decode(wire *Event) (domain.Event, error) {
	switch wire.Type {
	case domain.EventBroadcastAvailable:
		var p domain.BroadcastAvailable
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.Event{Type: wire.Type, Payload: p}, nil
	case domain.EventBroadcastEnded:
		var p domain.BroadcastEnded
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return domain.Event{}, err
		}
		return domain.Event{Type: wire.Type, Payload: p}, nil
	}
	return domain.Event{}, fmt.Errorf("event type %q is not mirrored", wire.Type)
}

func mirrored(t domain.EventType) bool {
	return t == domain.EventBroadcastAvailable || t == domain.EventBroadcastEnded
}
