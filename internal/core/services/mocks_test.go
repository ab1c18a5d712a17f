package services

import (
	"context"
	"sync"

	"skycast/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockCostLedger struct {
	mock.Mock
}

func (m *MockCostLedger) Reserve(ctx context.Context, account domain.Identity, broadcastID domain.BroadcastID, amount int64) (domain.ReservationHandle, error) {
	args := m.Called(ctx, account, broadcastID, amount)
	return args.Get(0).(domain.ReservationHandle), args.Error(1)
}

func (m *MockCostLedger) Finalize(ctx context.Context, handle domain.ReservationHandle, actualAmount int64) error {
	args := m.Called(ctx, handle, actualAmount)
	return args.Error(0)
}

type noopLease struct{}

func (noopLease) Acquire(ctx context.Context, owner domain.Identity) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type sentEvent struct {
	to    domain.Identity // empty for fan-out
	event domain.Event
}

// recordingNotifier captures every event in delivery order.
type recordingNotifier struct {
	mu      sync.Mutex
	events  []sentEvent
	sendErr error
}

func (n *recordingNotifier) Send(identity domain.Identity, event domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.events = append(n.events, sentEvent{to: identity, event: event})
	return nil
}

func (n *recordingNotifier) Broadcast(event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{event: event})
}

func (n *recordingNotifier) ofType(t domain.EventType) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) last(t domain.EventType) (sentEvent, bool) {
	events := n.ofType(t)
	if len(events) == 0 {
		return sentEvent{}, false
	}
	return events[len(events)-1], true
}
