package repositories

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"skycast/internal/core/domain"
	"skycast/internal/infrastructure/repositories/memory"
	"skycast/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingDirectory struct {
	calls atomic.Int32
	err   error
}

func (d *countingDirectory) Friends(ctx context.Context, owner domain.Identity) ([]domain.Identity, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return []domain.Identity{"bob"}, nil
}

type nopNotifier struct{}

func (nopNotifier) Send(domain.Identity, domain.Event) error { return nil }
func (nopNotifier) Broadcast(domain.Event)                   {}

func TestCachedFriendDirectory(t *testing.T) {
	base := &countingDirectory{}
	d := NewCachedFriendDirectory(base, time.Minute)
	defer d.Close()
	ctx := context.Background()

	first, err := d.Friends(ctx, "alice")
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := d.Friends(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"bob"}, second)
	assert.Equal(t, int32(1), base.calls.Load())

	d.Invalidate("alice")
	_, _ = d.Friends(ctx, "alice")
	assert.Equal(t, int32(2), base.calls.Load())
}

func TestCachedFriendDirectory_ErrorsAreNotCached(t *testing.T) {
	base := &countingDirectory{err: errors.New("directory down")}
	d := NewCachedFriendDirectory(base, time.Minute)
	defer d.Close()

	_, err := d.Friends(context.Background(), "alice")
	assert.Error(t, err)
	_, err = d.Friends(context.Background(), "alice")
	assert.Error(t, err)
	assert.Equal(t, int32(2), base.calls.Load())
}

func TestRepositoryFactory_MemoryMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Friends.Seed = map[string][]string{"alice": {"bob"}}

	f, err := NewRepositoryFactory(cfg, "node-a", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, f.UsingRedis())
	assert.NoError(t, f.HealthCheck(context.Background()))

	dir, err := f.CreateFriendDirectory(context.Background())
	require.NoError(t, err)
	friends, err := dir.Friends(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"bob"}, friends)

	assert.IsType(t, &memory.MemoryOwnerLease{}, f.CreateOwnerLease())

	local := nopNotifier{}
	n, run := f.CreateNotifier(local)
	assert.Equal(t, local, n)
	assert.Nil(t, run)
}

func TestRepositoryFactory_RedisUnreachableFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	f, err := NewRepositoryFactory(cfg, "node-a", zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, f.UsingRedis())
	assert.Nil(t, f.RedisClient())
}
