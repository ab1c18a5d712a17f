package domain

// Identity is the stable, opaque name of an authenticated participant.
type Identity string

type BroadcastID string

// ReservationHandle is the opaque token a CostLedger returns from Reserve.
// It must be finalized exactly once.
type ReservationHandle string
