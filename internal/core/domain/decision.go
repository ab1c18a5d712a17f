package domain

type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyEnded        DenyReason = "ended"
	DenyNotPermitted DenyReason = "not_permitted"
	DenyOwner        DenyReason = "owner"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Accepted bool
	Reason   DenyReason
}

func Accept() Decision { return Decision{Accepted: true} }

func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }
