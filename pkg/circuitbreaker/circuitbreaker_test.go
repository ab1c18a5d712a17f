package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTestError = errors.New("test error")
	errBusiness  = errors.New("insufficient funds")
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *manualClock) {
	clock := &manualClock{now: time.Now()}
	cb := New(cfg)
	cb.now = clock.Now
	return cb, clock
}

func failing(context.Context) error { return errTestError }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failing), errTestError)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	require.NoError(t, cb.Execute(ctx, passing))
	_ = cb.Execute(ctx, failing)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(Config{
		FailureThreshold:    1,
		SuccessThreshold:    2,
		Timeout:             time.Second,
		MaxRequestsHalfOpen: 2,
	})
	ctx := context.Background()

	var transitions []State
	cb.OnStateChange(func(_, to State) { transitions = append(transitions, to) })

	_ = cb.Execute(ctx, failing)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, passing))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	clock.Advance(2 * time.Second)
	_ = cb.Execute(ctx, failing)

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	cb, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errBusiness) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := cb.Execute(ctx, func(context.Context) error { return errBusiness })
		assert.ErrorIs(t, err, errBusiness)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_Generic(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig())

	v, err := Execute(context.Background(), cb, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	_ = cb.Execute(context.Background(), failing)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), passing))
}
