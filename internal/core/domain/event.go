package domain

import "encoding/json"

type EventType string

const (
	EventBroadcastAvailable EventType = "broadcast_available"
	EventBroadcastEnded     EventType = "broadcast_ended"
	EventViewerJoined       EventType = "viewer_joined"
	EventViewerLeft         EventType = "viewer_left"
	EventNegotiate          EventType = "negotiate"
	EventOffer              EventType = "offer"
	EventAnswer             EventType = "answer"
	EventCandidate          EventType = "candidate"
	EventTransportFailure   EventType = "transport_failure"
)

// Event is a coordinator to client push.
type Event struct {
	Type    EventType
	Payload any
}

type BroadcastAvailable struct {
	ID       BroadcastID `json:"id"`
	Title    string      `json:"title"`
	Category string      `json:"category"`
}

type BroadcastEnded struct {
	ID BroadcastID `json:"id"`
}

type ViewerCount struct {
	BroadcastID BroadcastID `json:"broadcast_id"`
	ViewerCount int         `json:"viewer_count"`
}

type Negotiate struct {
	BroadcastID BroadcastID `json:"broadcast_id"`
	Viewer      Identity    `json:"viewer"`
}

type Relayed struct {
	From        Identity        `json:"from"`
	BroadcastID BroadcastID     `json:"broadcast_id"`
	Payload     json.RawMessage `json:"payload"`
}

type TransportFailure struct {
	BroadcastID BroadcastID `json:"broadcast_id"`
	Peer        Identity    `json:"peer"`
}

// RelayKind is the negotiation message family carried by SignalingRelay.
type RelayKind string

const (
	RelayOffer     RelayKind = "offer"
	RelayAnswer    RelayKind = "answer"
	RelayCandidate RelayKind = "candidate"
)

func (k RelayKind) EventType() EventType {
	switch k {
	case RelayOffer:
		return EventOffer
	case RelayAnswer:
		return EventAnswer
	default:
		return EventCandidate
	}
}
