package memory

import (
	"context"
	"sort"
	"sync"

	"skycast/internal/core/domain"
)

type MemoryFriendDirectory struct {
	friends map[domain.Identity]map[domain.Identity]struct{}
	mu      sync.RWMutex
}

// NewMemoryFriendDirectory builds a directory from owner -> friends seed data.
func NewMemoryFriendDirectory(seed map[string][]string) *MemoryFriendDirectory {
	d := &MemoryFriendDirectory{
		friends: make(map[domain.Identity]map[domain.Identity]struct{}, len(seed)),
	}
	for owner, friends := range seed {
		for _, f := range friends {
			d.AddFriend(domain.Identity(owner), domain.Identity(f))
		}
	}
	return d
}

func (d *MemoryFriendDirectory) Friends(ctx context.Context, owner domain.Identity) ([]domain.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := d.friends[owner]
	result := make([]domain.Identity, 0, len(set))
	for f := range set {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (d *MemoryFriendDirectory) AddFriend(owner, friend domain.Identity) {
	if owner == "" || friend == "" || owner == friend {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.friends[owner]
	if !ok {
		set = make(map[domain.Identity]struct{})
		d.friends[owner] = set
	}
	set[friend] = struct{}{}
}

func (d *MemoryFriendDirectory) RemoveFriend(owner, friend domain.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.friends[owner], friend)
}
