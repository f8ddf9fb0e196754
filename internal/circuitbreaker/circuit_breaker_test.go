package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 503")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "cosmos", ConsecutiveFailures: 2, Cooldown: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errUpstream }), errUpstream)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errUpstream }), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(&Config{Name: "sui", ConsecutiveFailures: 1, Cooldown: time.Second})
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errUpstream })
	require.Equal(t, StateOpen, cb.GetState())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(&Config{Name: "aptos", ConsecutiveFailures: 3, Cooldown: time.Second})
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errUpstream })
	}
	now = now.Add(2 * time.Second)
	_ = cb.Execute(ctx, func() error { return errUpstream })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "evm", ConsecutiveFailures: 1, Cooldown: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cb.Execute(ctx, func() error { return ctx.Err() })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Get("coingecko")
	assert.Same(t, a, r.Get("coingecko"))
	assert.NotSame(t, a, r.Get("debank"))
	assert.Equal(t, map[string]State{"coingecko": StateClosed, "debank": StateClosed}, r.States())
}
