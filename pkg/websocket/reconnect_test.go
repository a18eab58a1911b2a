package websocket

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestReconnect(t *testing.T, jitter float64) (*ReconnectManager, *[]time.Duration) {
	t.Helper()

	rm := NewReconnectManager(ReconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
		JitterPercent:     0.2,
	}, zaptest.NewLogger(t))

	slept := &[]time.Duration{}
	rm.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	rm.jitter = func() float64 { return jitter }
	return rm, slept
}

func TestReconnect_BacksOffUntilDialSucceeds(t *testing.T) {
	rm, slept := newTestReconnect(t, 0)

	calls := 0
	err := rm.Reconnect(context.Background(), func(context.Context) error {
		calls++
		if calls < 5 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
	}, *slept)
}

func TestReconnect_ResetAfterSuccess(t *testing.T) {
	rm, slept := newTestReconnect(t, 0)

	fail := true
	dial := func(context.Context) error {
		if fail {
			fail = false
			return errors.New("eof")
		}
		return nil
	}
	require.NoError(t, rm.Reconnect(context.Background(), dial))

	*slept = nil
	require.NoError(t, rm.Reconnect(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, *slept)
}

func TestReconnect_JitterNeverExceedsMax(t *testing.T) {
	rm, slept := newTestReconnect(t, 1)

	calls := 0
	_ = rm.Reconnect(context.Background(), func(context.Context) error {
		calls++
		if calls < 6 {
			return errors.New("timeout")
		}
		return nil
	})

	assert.Equal(t, 120*time.Millisecond, (*slept)[0])
	for _, d := range *slept {
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestReconnect_StopsOnAuthBlock(t *testing.T) {
	rm, _ := newTestReconnect(t, 0)

	calls := 0
	err := rm.Reconnect(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("dial: %w", types.ErrAuthBlocked)
	})

	require.ErrorIs(t, err, types.ErrAuthBlocked)
	assert.Equal(t, 1, calls)
}

func TestReconnect_ContextCancelled(t *testing.T) {
	rm, _ := newTestReconnect(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rm.Reconnect(ctx, func(context.Context) error {
		t.Fatal("dial after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
