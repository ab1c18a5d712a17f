package monitoring

import (
	"context"
	"errors"
	"time"

	"skycast/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddLedgerCheck fails readiness while the ledger breaker is open, since no
// broadcast could start.
func (h *HealthChecker) AddLedgerCheck(state func() circuitbreaker.State) {
	h.AddCheck("ledger", func(ctx context.Context) error {
		if state() == circuitbreaker.StateOpen {
			return errors.New("ledger circuit breaker is open")
		}
		return nil
	}, time.Second)
}
