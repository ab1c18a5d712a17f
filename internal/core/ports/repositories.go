package ports

import (
	"context"

	"skycast/internal/core/domain"
)

// FriendDirectory resolves an owner to the identities allowed to watch its
// friends-only broadcasts.
type FriendDirectory interface {
	Friends(ctx context.Context, owner domain.Identity) ([]domain.Identity, error)
}

// OwnerLease makes "one active broadcast per owner" hold across every
// coordinator instance that shares the lease backend.
type OwnerLease interface {
	Acquire(ctx context.Context, owner domain.Identity) (release func(context.Context) error, err error)
}
