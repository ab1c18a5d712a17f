package memory

import (
	"context"
	"fmt"
	"sync"

	"skycast/internal/core/domain"
)

// MemoryOwnerLease is the single-instance OwnerLease.
type MemoryOwnerLease struct {
	held map[domain.Identity]uint64
	next uint64
	mu   sync.Mutex
}

func NewMemoryOwnerLease() *MemoryOwnerLease {
	return &MemoryOwnerLease{held: make(map[domain.Identity]uint64)}
}

func (l *MemoryOwnerLease) Acquire(ctx context.Context, owner domain.Identity) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[owner]; busy {
		return nil, fmt.Errorf("%w: %s already holds a lease", domain.ErrConflict, owner)
	}
	l.next++
	token := l.next
	l.held[owner] = token

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A stale release must not drop a newer holder's lease.
		if l.held[owner] == token {
			delete(l.held, owner)
		}
		return nil
	}, nil
}
