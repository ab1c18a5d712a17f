package repositories

import (
	"context"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"
	"skycast/pkg/cache"
)

// CachedFriendDirectory fronts a FriendDirectory with a TTL cache. Lookups
// only happen at start_broadcast, so a short TTL is enough to absorb bursts.
type CachedFriendDirectory struct {
	base  ports.FriendDirectory
	cache *cache.Cache[[]domain.Identity]
}

func NewCachedFriendDirectory(base ports.FriendDirectory, ttl time.Duration) *CachedFriendDirectory {
	return &CachedFriendDirectory{
		base:  base,
		cache: cache.New[[]domain.Identity](ttl),
	}
}

func (d *CachedFriendDirectory) Friends(ctx context.Context, owner domain.Identity) ([]domain.Identity, error) {
	friends, err := d.cache.GetOrLoad(ctx, "friends:"+string(owner), func(ctx context.Context) ([]domain.Identity, error) {
		return d.base.Friends(ctx, owner)
	})
	if err != nil {
		return nil, err
	}
	// Callers own the returned slice.
	return append([]domain.Identity(nil), friends...), nil
}

func (d *CachedFriendDirectory) Invalidate(owner domain.Identity) {
	d.cache.Delete("friends:" + string(owner))
}

func (d *CachedFriendDirectory) Close() {
	d.cache.Stop()
}
