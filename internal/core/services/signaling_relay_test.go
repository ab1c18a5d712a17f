package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"skycast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type rejectingValidator struct{}

func (rejectingValidator) Validate(domain.RelayKind, json.RawMessage) error {
	return errors.New("malformed session description")
}

type relayFixture struct {
	*registryFixture
	relay *SignalingRelay
	id    domain.BroadcastID
}

func newRelayFixture(t *testing.T, validator PayloadValidator) *relayFixture {
	t.Helper()
	f := newRegistryFixture(t, testRegistryConfig())
	f.ledger.On("Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ReservationHandle("res-1"), nil)
	f.ledger.On("Finalize", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	relay := NewSignalingRelay(f.registry, f.notifier, validator, nil, zaptest.NewLogger(t).Sugar())
	f.registry.OnLinkOpened(relay.Admit)

	id, err := f.registry.Start(context.Background(), publicStart("B"))
	require.NoError(t, err)
	return &relayFixture{registryFixture: f, relay: relay, id: id}
}

func (f *relayFixture) linkState(t *testing.T, viewer domain.Identity) domain.LinkState {
	t.Helper()
	snap, err := f.registry.Snapshot(context.Background(), f.id)
	require.NoError(t, err)
	return snap.Links[viewer]
}

func TestSignalingRelay_AdmissionRequestsOffer(t *testing.T) {
	f := newRelayFixture(t, nil)

	_, err := f.registry.Join(context.Background(), f.id, "V1")
	require.NoError(t, err)

	negotiate, ok := f.notifier.last(domain.EventNegotiate)
	require.True(t, ok)
	assert.Equal(t, domain.Identity("B"), negotiate.to)
	assert.Equal(t, domain.Negotiate{BroadcastID: f.id, Viewer: "V1"}, negotiate.event.Payload)
	assert.Equal(t, domain.LinkOfferSent, f.linkState(t, "V1"))
}

func TestSignalingRelay_FullNegotiation(t *testing.T) {
	f := newRelayFixture(t, nil)
	ctx := context.Background()

	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, f.relay.Relay(ctx, domain.RelayOffer, "B", "V1", offer))

	relayed, ok := f.notifier.last(domain.EventOffer)
	require.True(t, ok)
	assert.Equal(t, domain.Identity("V1"), relayed.to)
	assert.Equal(t, domain.Relayed{From: "B", BroadcastID: f.id, Payload: offer}, relayed.event.Payload)

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	require.NoError(t, f.relay.Relay(ctx, domain.RelayAnswer, "V1", "B", answer))
	assert.Equal(t, domain.LinkAnswerReceived, f.linkState(t, "V1"))

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`)
	require.NoError(t, f.relay.Relay(ctx, domain.RelayCandidate, "V1", "B", candidate))
	require.NoError(t, f.relay.Relay(ctx, domain.RelayCandidate, "B", "V1", candidate))
	assert.Equal(t, domain.LinkAnswerReceived, f.linkState(t, "V1"))
	assert.Len(t, f.notifier.ofType(domain.EventCandidate), 2)

	require.NoError(t, f.relay.Connected(ctx, "V1", "B"))
	assert.Equal(t, domain.LinkConnected, f.linkState(t, "V1"))
}

func TestSignalingRelay_RejectsUnlinkedPair(t *testing.T) {
	f := newRelayFixture(t, nil)
	ctx := context.Background()

	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)

	err = f.relay.Relay(ctx, domain.RelayOffer, "intruder", "V1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.registry.Join(ctx, f.id, "V2")
	require.NoError(t, err)
	err = f.relay.Relay(ctx, domain.RelayCandidate, "V1", "V2", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.relay.Relay(ctx, domain.RelayOffer, "B", "B", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Empty(t, f.notifier.ofType(domain.EventOffer))
	assert.Empty(t, f.notifier.ofType(domain.EventCandidate))
}

func TestSignalingRelay_NoRelayAfterClose(t *testing.T) {
	f := newRelayFixture(t, nil)
	ctx := context.Background()

	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)
	require.NoError(t, f.registry.Leave(ctx, f.id, "V1"))

	err = f.relay.Relay(ctx, domain.RelayOffer, "B", "V1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.registry.Join(ctx, f.id, "V2")
	require.NoError(t, err)
	require.NoError(t, f.registry.Stop(ctx, "B"))

	err = f.relay.Relay(ctx, domain.RelayAnswer, "V2", "B", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, f.notifier.ofType(domain.EventOffer))
	assert.Empty(t, f.notifier.ofType(domain.EventAnswer))
}

func TestSignalingRelay_AnswerBeforeOfferKeepsState(t *testing.T) {
	f := newRelayFixture(t, nil)
	ctx := context.Background()

	f.notifier.sendErr = errors.New("owner offline")
	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkInit, f.linkState(t, "V1"))
	f.notifier.sendErr = nil

	require.NoError(t, f.relay.Relay(ctx, domain.RelayAnswer, "V1", "B", json.RawMessage(`{}`)))
	assert.Equal(t, domain.LinkInit, f.linkState(t, "V1"))

	require.NoError(t, f.relay.Connected(ctx, "V1", "B"))
	assert.Equal(t, domain.LinkInit, f.linkState(t, "V1"))
}

func TestSignalingRelay_StateFollowsDirection(t *testing.T) {
	f := newRelayFixture(t, nil)
	ctx := context.Background()

	f.notifier.sendErr = errors.New("owner offline")
	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)
	f.notifier.sendErr = nil
	require.Equal(t, domain.LinkInit, f.linkState(t, "V1"))

	// An offer from the viewer is forwarded but does not count as the owner's offer.
	require.NoError(t, f.relay.Relay(ctx, domain.RelayOffer, "V1", "B", json.RawMessage(`{}`)))
	assert.Equal(t, domain.LinkInit, f.linkState(t, "V1"))

	require.NoError(t, f.relay.Relay(ctx, domain.RelayOffer, "B", "V1", json.RawMessage(`{}`)))
	assert.Equal(t, domain.LinkOfferSent, f.linkState(t, "V1"))

	// The owner cannot answer its own offer.
	require.NoError(t, f.relay.Relay(ctx, domain.RelayAnswer, "B", "V1", json.RawMessage(`{}`)))
	assert.Equal(t, domain.LinkOfferSent, f.linkState(t, "V1"))

	require.NoError(t, f.relay.Relay(ctx, domain.RelayAnswer, "V1", "B", json.RawMessage(`{}`)))
	assert.Equal(t, domain.LinkAnswerReceived, f.linkState(t, "V1"))
	assert.Len(t, f.notifier.ofType(domain.EventOffer), 2)
	assert.Len(t, f.notifier.ofType(domain.EventAnswer), 2)
}

func TestSignalingRelay_DeliveryFailure(t *testing.T) {
	f := newRelayFixture(t, nil)
	ctx := context.Background()

	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)

	f.notifier.sendErr = domain.ErrBackpressure
	err = f.relay.Relay(ctx, domain.RelayOffer, "B", "V1", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
}

func TestSignalingRelay_ValidatorRejects(t *testing.T) {
	f := newRelayFixture(t, rejectingValidator{})
	ctx := context.Background()

	_, err := f.registry.Join(ctx, f.id, "V1")
	require.NoError(t, err)

	err = f.relay.Relay(ctx, domain.RelayOffer, "B", "V1", json.RawMessage(`"garbage"`))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, f.notifier.ofType(domain.EventOffer))
}
