package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skycast/internal/core/domain"
	"skycast/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OwnerLease keeps one active broadcast per identity across every instance
// that shares the Redis database.
type OwnerLease struct {
	locks      *distributed.LockManager
	ttl        time.Duration
	instanceID string
	logger     *zap.SugaredLogger
}

func NewOwnerLease(
	client redis.UniversalClient,
	ttl time.Duration,
	instanceID string,
	logger *zap.SugaredLogger,
) *OwnerLease {
	return &OwnerLease{
		locks:      distributed.NewLockManager(client, "skycast:owner:"),
		ttl:        ttl,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Acquire claims owner for this instance. It fails with domain.ErrConflict
// when another instance already holds the claim.
func (l *OwnerLease) Acquire(ctx context.Context, owner domain.Identity) (func(context.Context) error, error) {
	lock, err := l.locks.TryAcquire(ctx, string(owner), l.ttl)
	if errors.Is(err, distributed.ErrNotAcquired) {
		return nil, fmt.Errorf("%w: %s is broadcasting elsewhere", domain.ErrConflict, owner)
	}
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-lock.Lost():
			l.logger.Warnw("owner lease lost",
				"owner", owner,
				"instance_id", l.instanceID,
			)
		case <-lock.Released():
		}
	}()

	return lock.Release, nil
}
