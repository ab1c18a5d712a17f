package domain

import (
	"strings"
	"time"
)

type PrivacyMode string

const (
	PrivacyPublic      PrivacyMode = "public"
	PrivacyFriendsOnly PrivacyMode = "friends_only"
)

// ParsePrivacyMode accepts the wire spelling of a privacy mode. An empty
// value defaults to public.
func ParsePrivacyMode(s string) (PrivacyMode, bool) {
	switch PrivacyMode(strings.ToLower(strings.TrimSpace(s))) {
	case PrivacyPublic, "":
		return PrivacyPublic, true
	case PrivacyFriendsOnly, "friendsonly", "friends":
		return PrivacyFriendsOnly, true
	}
	return "", false
}

type BroadcastStatus string

const (
	StatusActive BroadcastStatus = "active"
	StatusEnded  BroadcastStatus = "ended"
)

type Broadcast struct {
	ID             BroadcastID
	Owner          Identity
	Title          string
	Category       string
	Privacy        PrivacyMode
	AllowedViewers map[Identity]struct{}
	Reservation    ReservationHandle
	Status         BroadcastStatus
	StartedAt      time.Time
	EndedAt        time.Time
}

// StartRequest carries the owner-supplied parameters of start_broadcast.
type StartRequest struct {
	Owner          Identity
	Title          string
	Category       string
	Privacy        PrivacyMode
	AllowedViewers []Identity
}

// Summary is the listing view of an active broadcast.
type Summary struct {
	ID          BroadcastID `json:"id"`
	Owner       Identity    `json:"owner"`
	Title       string      `json:"title"`
	Category    string      `json:"category"`
	Privacy     PrivacyMode `json:"privacy_mode"`
	ViewerCount int         `json:"viewer_count"`
	StartedAt   time.Time   `json:"started_at"`
}

// Snapshot is a consistent point-in-time copy of one broadcast's mutable state.
type Snapshot struct {
	Summary
	Status BroadcastStatus
	Roster []Identity
	Links  map[Identity]LinkState
}

// Allows reports whether viewer is in the allow-list snapshot.
func (b *Broadcast) Allows(viewer Identity) bool {
	_, ok := b.AllowedViewers[viewer]
	return ok
}

func NewAllowList(viewers []Identity) map[Identity]struct{} {
	set := make(map[Identity]struct{}, len(viewers))
	for _, v := range viewers {
		v = Identity(strings.TrimSpace(string(v)))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
