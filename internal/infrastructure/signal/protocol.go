package signal

import (
	"encoding/json"

	"skycast/internal/core/domain"
)

// Inbound message types.
const (
	MsgRegisterIdentity   = "register_identity"
	MsgStartBroadcast     = "start_broadcast"
	MsgStopBroadcast      = "stop_broadcast"
	MsgJoinBroadcast      = "join_broadcast"
	MsgLeaveBroadcast     = "leave_broadcast"
	MsgOffer              = "offer"
	MsgAnswer             = "answer"
	MsgCandidate          = "candidate"
	MsgTransportConnected = "transport_connected"
	MsgHeartbeat          = "heartbeat"
	MsgListBroadcasts     = "list_broadcasts"
)

// Outbound frame types besides events.
const (
	FrameReply = "reply"
	FrameError = "error"
)

// Envelope is every client to coordinator frame.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type RegisterPayload struct {
	Identity domain.Identity `json:"identity"`
	Token    string          `json:"token,omitempty"`
}

// StartPayload is the body of start_broadcast. An empty privacy_mode means
// public. For friends_only, an empty allowed_viewers list is filled from the
// owner's friend list; if that is empty too the start fails with
// INVALID_ARGUMENT. A non-empty list is used as given.
type StartPayload struct {
	Title          string            `json:"title"`
	Category       string            `json:"category"`
	PrivacyMode    string            `json:"privacy_mode"`
	AllowedViewers []domain.Identity `json:"allowed_viewers"`
}

type BroadcastRef struct {
	BroadcastID domain.BroadcastID `json:"broadcast_id"`
}

type RelayPayload struct {
	Target  domain.Identity `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

type ConnectedPayload struct {
	Peer domain.Identity `json:"peer"`
}

// ReplyFrame answers a request.
type ReplyFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload"`
}

// ErrorFrame reports a failed request.
type ErrorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// EventFrame carries a coordinator push.
type EventFrame struct {
	Type    domain.EventType `json:"type"`
	Payload any              `json:"payload"`
}

type ack struct {
	OK bool `json:"ok"`
}

type startReply struct {
	BroadcastID domain.BroadcastID `json:"broadcast_id"`
}

type joinReply struct {
	Accepted bool              `json:"accepted"`
	Reason   domain.DenyReason `json:"reason,omitempty"`
}

type listReply struct {
	Broadcasts []domain.Summary `json:"broadcasts"`
}

func encodeEvent(event domain.Event) ([]byte, error) {
	return json.Marshal(EventFrame{Type: event.Type, Payload: event.Payload})
}
