package common

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRateLimiterUsage(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2400, time.Minute, 50, zaptest.NewLogger(t))

	rl.UpdateFromHeader("")
	rl.UpdateFromHeader("not-a-number")
	used, limit, _ := rl.Usage()
	assert.Zero(t, used)
	assert.Equal(t, 2400, limit)
	assert.False(t, rl.ShouldDelay())

	rl.UpdateFromHeader("1200")
	_, _, pct := rl.Usage()
	assert.InDelta(t, 50, pct, 1e-9)
	assert.False(t, rl.ShouldDelay())

	rl.UpdateFromHeader("2200")
	assert.True(t, rl.ShouldDelay())
}

func TestRateLimiterWindowExpires(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(100, 20*time.Millisecond, 50, nil)
	rl.UpdateFromHeader("99")
	assert.True(t, rl.ShouldDelay())
	time.Sleep(30 * time.Millisecond)
	assert.False(t, rl.ShouldDelay())
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(100, time.Minute, 50, nil)
	require.NoError(t, rl.Wait(context.Background()))

	rl.UpdateFromHeader("95")
	require.NoError(t, rl.Wait(context.Background()), "first slow token is free")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestTimeSyncOffset(t *testing.T) {
	t.Parallel()
	calls := 0
	server := func(context.Context) (int64, error) {
		calls++
		return time.Now().UnixMilli() + 1500, nil
	}
	ts := NewTimeSync(server, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, ts.Sync(context.Background()))
	assert.InDelta(t, 1500, ts.Offset(), 50)
	assert.InDelta(t, time.Now().UnixMilli()+1500, ts.Now(), 50)
	assert.False(t, ts.LastSync().IsZero())

	ts.EnsureFresh(context.Background())
	assert.Equal(t, 1, calls, "fresh offset is reused")
}

func TestTimeSyncKeepsOffsetOnFailure(t *testing.T) {
	t.Parallel()
	fail := false
	server := func(context.Context) (int64, error) {
		if fail {
			return 0, errors.New("unreachable")
		}
		return time.Now().UnixMilli() - 800, nil
	}
	ts := NewTimeSync(server, time.Millisecond, nil)
	require.NoError(t, ts.Sync(context.Background()))
	fail = true
	time.Sleep(2 * time.Millisecond)
	ts.EnsureFresh(context.Background())
	assert.InDelta(t, -800, ts.Offset(), 50)
}

func TestOrderTypeAndSide(t *testing.T) {
	t.Parallel()
	assert.True(t, OrderTypeStopMarket.IsConditional())
	assert.True(t, OrderType("trailing_stop_market").IsConditional())
	assert.False(t, OrderTypeLimit.IsConditional())
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}
