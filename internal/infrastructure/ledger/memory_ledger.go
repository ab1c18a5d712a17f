package ledger

import (
	"context"
	"fmt"
	"sync"

	"skycast/internal/core/domain"
	"skycast/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type hold struct {
	account     domain.Identity
	broadcastID domain.BroadcastID
	amount      int64
}

// MemoryLedger keeps credit balances in process. Accounts start with the
// configured default balance the first time they are seen.
type MemoryLedger struct {
	mu             sync.Mutex
	balances       map[domain.Identity]int64
	holds          map[domain.ReservationHandle]hold
	defaultBalance int64
	logger         *zap.SugaredLogger
}

func NewMemoryLedger(defaultBalance int64, logger *zap.SugaredLogger) *MemoryLedger {
	return &MemoryLedger{
		balances:       make(map[domain.Identity]int64),
		holds:          make(map[domain.ReservationHandle]hold),
		defaultBalance: defaultBalance,
		logger:         logger,
	}
}

func (l *MemoryLedger) Reserve(ctx context.Context, account domain.Identity, broadcastID domain.BroadcastID, amount int64) (domain.ReservationHandle, error) {
	ctx, span := tracing.TraceLedgerCall(ctx, "reserve", amount)
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.BroadcastIDKey.String(string(broadcastID)))

	if amount < 0 {
		return "", fmt.Errorf("%w: negative reservation", domain.ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balanceLocked(account)
	if balance < amount {
		err := fmt.Errorf("%w: balance %d below %d", domain.ErrInsufficientResource, balance, amount)
		tracing.RecordError(ctx, err)
		return "", err
	}

	handle := domain.ReservationHandle(uuid.NewString())
	l.balances[account] = balance - amount
	l.holds[handle] = hold{account: account, broadcastID: broadcastID, amount: amount}
	tracing.AddSpanAttributes(ctx, tracing.ReservationKey.String(string(handle)))

	l.logger.Debugw("reserved credits",
		"account", account,
		"broadcast_id", broadcastID,
		"amount", amount,
		"balance", l.balances[account],
	)
	return handle, nil
}

// Finalize charges actualAmount against the hold. The balance may go
// negative when the actual cost exceeds what was available.
func (l *MemoryLedger) Finalize(ctx context.Context, handle domain.ReservationHandle, actualAmount int64) error {
	ctx, span := tracing.TraceLedgerCall(ctx, "finalize", actualAmount)
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.ReservationKey.String(string(handle)))

	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[handle]
	if !ok {
		err := fmt.Errorf("%w: reservation %s", domain.ErrNotFound, handle)
		tracing.RecordError(ctx, err)
		return err
	}
	delete(l.holds, handle)

	l.balances[h.account] += h.amount - actualAmount

	l.logger.Debugw("finalized reservation",
		"account", h.account,
		"broadcast_id", h.broadcastID,
		"reserved", h.amount,
		"actual", actualAmount,
		"balance", l.balances[h.account],
	)
	return nil
}

func (l *MemoryLedger) Balance(account domain.Identity) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account)
}

// Credit adds amount to account, creating it if needed.
func (l *MemoryLedger) Credit(account domain.Identity, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balanceLocked(account) + amount
}

// Outstanding is the number of reservations not yet finalized.
func (l *MemoryLedger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holds)
}

func (l *MemoryLedger) balanceLocked(account domain.Identity) int64 {
	balance, ok := l.balances[account]
	if !ok {
		balance = l.defaultBalance
		l.balances[account] = balance
	}
	return balance
}
