package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired reports that another holder owns the lock.
var ErrNotAcquired = errors.New("lock held by another owner")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while we still hold the key.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a Redis SET NX lock that renews itself at half its TTL until it
// is released or lost.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	lost     chan struct{}
}

// LockManager namespaces locks under a key prefix.
type LockManager struct {
	client redis.UniversalClient
	prefix string
}

func NewLockManager(client redis.UniversalClient, prefix string) *LockManager {
	return &LockManager{client: client, prefix: prefix}
}

// TryAcquire takes the lock without waiting. It returns ErrNotAcquired when
// the key is already held.
func (lm *LockManager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	l := &Lock{
		client: lm.client,
		key:    lm.prefix + key,
		token:  uuid.NewString(),
		ttl:    ttl,
		stop:   make(chan struct{}),
		lost:   make(chan struct{}),
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		return nil, ErrNotAcquired
	}

	// Renewal outlives the acquiring request, so it runs on its own context.
	go l.renew()
	return l, nil
}

// Key is the full Redis key of the lock.
func (l *Lock) Key() string { return l.key }

// Lost is closed when renewal finds the key gone or owned by someone else.
func (l *Lock) Lost() <-chan struct{} { return l.lost }

// Released is closed once Release has been called.
func (l *Lock) Released() <-chan struct{} { return l.stop }

// Release stops renewal and deletes the key if still ours. Safe to call more
// than once.
func (l *Lock) Release(ctx context.Context) error {
	released := false
	l.stopOnce.Do(func() {
		close(l.stop)
		released = true
	})
	if !released {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}

func (l *Lock) renew() {
	interval := l.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				// Transient; the next tick retries before the TTL runs out.
				continue
			}
			if n == 0 {
				close(l.lost)
				return
			}
		}
	}
}
