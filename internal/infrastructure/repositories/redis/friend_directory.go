package redis

import (
	"context"
	"fmt"
	"sort"

	"skycast/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	friendsPrefix   = "skycast:friends:"
	friendOwnersKey = "skycast:friends-owners"
)

// RedisFriendDirectory reads friend sets stored as skycast:friends:<owner>.
type RedisFriendDirectory struct {
	client *redis.Client
}

func NewRedisFriendDirectory(client *redis.Client) *RedisFriendDirectory {
	return &RedisFriendDirectory{client: client}
}

func (d *RedisFriendDirectory) Friends(ctx context.Context, owner domain.Identity) ([]domain.Identity, error) {
	members, err := d.client.SMembers(ctx, friendsKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load friends of %s: %w", owner, err)
	}

	result := make([]domain.Identity, 0, len(members))
	for _, m := range members {
		result = append(result, domain.Identity(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

func (d *RedisFriendDirectory) AddFriend(ctx context.Context, owner, friend domain.Identity) error {
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, friendsKey(owner), string(friend))
		pipe.SAdd(ctx, friendOwnersKey, string(owner))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add friend: %w", err)
	}
	return nil
}

// Seed loads owner -> friends pairs, leaving existing entries in place.
func (d *RedisFriendDirectory) Seed(ctx context.Context, seed map[string][]string) error {
	for owner, friends := range seed {
		for _, f := range friends {
			if err := d.AddFriend(ctx, domain.Identity(owner), domain.Identity(f)); err != nil {
				return err
			}
		}
	}
	return nil
}

func friendsKey(owner domain.Identity) string {
	return friendsPrefix + string(owner)
}
