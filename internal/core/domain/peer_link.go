package domain

import "time"

type LinkState string

const (
	LinkInit           LinkState = "init"
	LinkOfferSent      LinkState = "offer_sent"
	LinkAnswerReceived LinkState = "answer_received"
	LinkConnected      LinkState = "connected"
	LinkClosed         LinkState = "closed"
)

// linkTransitions lists the forward moves of the negotiation state machine.
// Closed is reachable from every state and handled separately.
var linkTransitions = map[LinkState][]LinkState{
	LinkInit:           {LinkOfferSent},
	LinkOfferSent:      {LinkAnswerReceived},
	LinkAnswerReceived: {LinkConnected},
	LinkConnected:      {},
	LinkClosed:         {},
}

// CanTransition reports whether a link may move from one state to another.
func CanTransition(from, to LinkState) bool {
	if from == LinkClosed {
		return false
	}
	if to == LinkClosed {
		return true
	}
	for _, next := range linkTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CloseReason string

const (
	CloseLeft             CloseReason = "left"
	CloseViewerGone       CloseReason = "viewer_disconnected"
	CloseOwnerGone        CloseReason = "owner_disconnected"
	CloseBroadcastEnded   CloseReason = "broadcast_ended"
	CloseNegotiationTimer CloseReason = "negotiation_timeout"
)

// PeerLink is the negotiation record between a broadcaster and one viewer.
type PeerLink struct {
	BroadcastID BroadcastID
	Owner       Identity
	Viewer      Identity
	State       LinkState
	Seq         uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedBy    CloseReason
}

// Advance moves the link to state if the transition table allows it.
func (l *PeerLink) Advance(to LinkState, now time.Time) bool {
	if l.State == to {
		return false
	}
	if !CanTransition(l.State, to) {
		return false
	}
	l.State = to
	l.UpdatedAt = now
	return true
}

func (l *PeerLink) Close(reason CloseReason, now time.Time) bool {
	if l.State == LinkClosed {
		return false
	}
	l.State = LinkClosed
	l.ClosedBy = reason
	l.UpdatedAt = now
	return true
}

// Connects reports whether the ordered pair (from, to) are the two ends of the link.
func (l *PeerLink) Connects(from, to Identity) bool {
	return (from == l.Owner && to == l.Viewer) || (from == l.Viewer && to == l.Owner)
}
