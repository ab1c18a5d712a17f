package distributed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis connects to SKYCAST_TEST_REDIS or skips.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("SKYCAST_TEST_REDIS")
	if addr == "" {
		t.Skip("SKYCAST_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLock_ExclusiveAndRelease(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	lm := NewLockManager(client, "skycast:test:lock:")
	key := t.Name()

	first, err := lm.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)

	_, err = lm.TryAcquire(ctx, key, time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx))

	second, err := lm.TryAcquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestLock_RenewsPastTTL(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	lm := NewLockManager(client, "skycast:test:lock:")

	l, err := lm.TryAcquire(ctx, t.Name(), 200*time.Millisecond)
	require.NoError(t, err)
	defer l.Release(ctx)

	time.Sleep(500 * time.Millisecond)

	val, err := client.Get(ctx, l.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, l.token, val)
}

func TestLock_LostWhenStolen(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	lm := NewLockManager(client, "skycast:test:lock:")

	l, err := lm.TryAcquire(ctx, t.Name(), 100*time.Millisecond)
	require.NoError(t, err)
	defer l.Release(ctx)

	require.NoError(t, client.Set(ctx, l.Key(), "someone-else", time.Minute).Err())
	defer client.Del(ctx, l.Key())

	select {
	case <-l.Lost():
	case <-time.After(time.Second):
		t.Fatal("lock loss was not detected")
	}
}
