package reliability

import (
	"context"
	"errors"

	"skycast/internal/core/domain"
	"skycast/internal/core/ports"
	"skycast/pkg/circuitbreaker"
	"skycast/pkg/retry"

	"go.uber.org/zap"
)

// answered lists ledger replies that are decisions, not outages. They are
// neither retried nor counted against the breaker.
var answered = []error{
	domain.ErrInsufficientResource,
	domain.ErrNotFound,
	domain.ErrInvalidArgument,
}

// LedgerWrapper wraps a CostLedger with retry logic and a circuit breaker.
type LedgerWrapper struct {
	ledger         ports.CostLedger
	logger         *zap.SugaredLogger
	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewLedgerWrapper(
	ledger ports.CostLedger,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *LedgerWrapper {
	retryConfig.Permanent = append(append([]error(nil), answered...), circuitbreaker.ErrOpen)
	cbConfig.IsFailure = func(err error) bool { return !isAnswer(err) }

	w := &LedgerWrapper{
		ledger:         ledger,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("ledger circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

func (w *LedgerWrapper) Reserve(ctx context.Context, account domain.Identity, broadcastID domain.BroadcastID, amount int64) (domain.ReservationHandle, error) {
	return retry.DoWithResult(ctx, w.retryConfig, func(ctx context.Context) (domain.ReservationHandle, error) {
		return circuitbreaker.Execute(ctx, w.circuitBreaker, func(ctx context.Context) (domain.ReservationHandle, error) {
			return w.ledger.Reserve(ctx, account, broadcastID, amount)
		})
	})
}

func (w *LedgerWrapper) Finalize(ctx context.Context, handle domain.ReservationHandle, actualAmount int64) error {
	err := retry.Do(ctx, w.retryConfig, func(ctx context.Context) error {
		return w.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
			return w.ledger.Finalize(ctx, handle, actualAmount)
		})
	})
	if err != nil && !isAnswer(err) {
		w.logger.Errorw("finalize failed after retries",
			"reservation", handle,
			"amount", actualAmount,
			"error", err,
		)
	}
	return err
}

func (w *LedgerWrapper) State() circuitbreaker.State {
	return w.circuitBreaker.State()
}

func isAnswer(err error) bool {
	for _, target := range answered {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
