package services

import "skycast/internal/core/domain"

// PermissionGate decides admission from the broadcast's materialized state
// only. It never calls out to the friend directory at join time.
type PermissionGate struct{}

func NewPermissionGate() PermissionGate {
	return PermissionGate{}
}

func (PermissionGate) Evaluate(b *domain.Broadcast, viewer domain.Identity) domain.Decision {
	if b == nil || b.Status == domain.StatusEnded {
		return domain.Deny(domain.DenyEnded)
	}
	if viewer == b.Owner {
		return domain.Deny(domain.DenyOwner)
	}

	switch b.Privacy {
	case domain.PrivacyPublic:
		return domain.Accept()
	case domain.PrivacyFriendsOnly:
		if b.Allows(viewer) {
			return domain.Accept()
		}
		return domain.Deny(domain.DenyNotPermitted)
	default:
		return domain.Deny(domain.DenyNotPermitted)
	}
}
