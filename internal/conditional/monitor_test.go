package conditional

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		reduceOnly, closePosition bool
		want                      Category
	}{
		{false, false, AddPosition},
		{true, false, ClosePosition},
		{false, true, ClosePosition},
		{true, true, ClosePosition},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.reduceOnly, tt.closePosition))
	}
}

func TestMapStatusAndTransitions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, StatusPending, MapStatus(common.StatusNew))
	assert.Equal(t, StatusPending, MapStatus("SOMETHING_NEW"))
	assert.Equal(t, StatusTriggered, MapStatus(common.StatusFilled))
	assert.Equal(t, StatusCancelled, MapStatus(common.StatusCanceled))

	assert.True(t, CanTransition(StatusPending, StatusTriggered))
	assert.True(t, CanTransition(StatusPending, StatusPartiallyFilled))
	assert.True(t, CanTransition(StatusPartiallyFilled, StatusTriggered))
	assert.False(t, CanTransition(StatusPartiallyFilled, StatusRejected))
	assert.False(t, CanTransition(StatusTriggered, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusTriggered))
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusPartiallyFilled.Terminal())
}

func live(id int64, typ common.OrderType, reduceOnly bool) *state.OpenOrder {
	return &state.OpenOrder{OrderID: id, Symbol: "BTCUSDT", Side: common.SideBuy, Type: typ,
		OrigQty: 1, StopPrice: 50000, ReduceOnly: reduceOnly, Status: common.StatusNew}
}

func TestSyncBreakoutTakeProfitIsEntry(t *testing.T) {
	t.Parallel()
	m := NewMonitor(zaptest.NewLogger(t))
	res := m.Sync([]*state.OpenOrder{live(1, common.OrderTypeTakeProfitMarket, false)})

	require.Len(t, res.Added, 1)
	assert.Equal(t, AddPosition, res.Added[0].Category)
	assert.Len(t, m.Conditional(), 1)
	assert.Empty(t, m.ReduceOnly())
}

func TestSyncHedgeModeStopIsProtective(t *testing.T) {
	t.Parallel()
	m := NewMonitor(zaptest.NewLogger(t))
	// openOrders echoes hedge-mode stops without reduceOnly
	stop := &state.OpenOrder{OrderID: 7, Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeStopMarket,
		OrigQty: 1, StopPrice: 95000, PositionSide: common.PositionSideLong, Status: common.StatusNew}
	entry := &state.OpenOrder{OrderID: 8, Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeStopMarket,
		OrigQty: 1, StopPrice: 105000, PositionSide: common.PositionSideLong, Status: common.StatusNew}

	res := m.Sync([]*state.OpenOrder{stop, entry})
	require.Len(t, res.Added, 2)
	reduce := m.ReduceOnly()
	require.Len(t, reduce, 1)
	assert.Equal(t, int64(7), reduce[0].OrderID)
	entries := m.Conditional()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(8), entries[0].OrderID)
}

func TestSyncAddsRemovesAndSkipsPlainOrders(t *testing.T) {
	t.Parallel()
	m := NewMonitor(zaptest.NewLogger(t))

	res := m.Sync([]*state.OpenOrder{
		live(1, common.OrderTypeStopMarket, true),
		live(2, common.OrderTypeTrailingStop, true),
		live(3, common.OrderTypeLimit, false),
	})
	assert.Len(t, res.Added, 2)
	assert.Equal(t, 2, m.Len())
	assert.Len(t, m.ReduceOnly(), 2)

	res = m.Sync([]*state.OpenOrder{live(2, common.OrderTypeTrailingStop, true)})
	assert.Empty(t, res.Added)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, int64(1), res.Removed[0].OrderID)

	// idempotent
	res = m.Sync([]*state.OpenOrder{live(2, common.OrderTypeTrailingStop, true)})
	assert.False(t, res.Changed())
}

func TestSyncTransitions(t *testing.T) {
	t.Parallel()
	m := NewMonitor(zaptest.NewLogger(t))
	o := live(7, common.OrderTypeStop, false)
	m.Sync([]*state.OpenOrder{o})

	o.Status = common.StatusPartiallyFilled
	res := m.Sync([]*state.OpenOrder{o})
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, StatusPending, res.Transitions[0].From)
	assert.Equal(t, StatusPartiallyFilled, res.Transitions[0].To)

	// partially filled cannot become rejected
	o.Status = common.StatusRejected
	res = m.Sync([]*state.OpenOrder{o})
	assert.Empty(t, res.Transitions)
	assert.Equal(t, StatusPartiallyFilled, m.Records()[0].Status)

	o.Status = common.StatusFilled
	res = m.Sync([]*state.OpenOrder{o})
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, StatusTriggered, res.Transitions[0].To)
	require.Len(t, res.Removed, 1, "terminal records leave the monitor")
	assert.Zero(t, m.Len())
}

func TestTrackConfirmAndClientIDMatch(t *testing.T) {
	t.Parallel()
	m := NewMonitor(zaptest.NewLogger(t))

	assert.Nil(t, m.Track(common.OrderRequest{Symbol: "BTCUSDT", Type: common.OrderTypeMarket}, ""))

	r := m.Track(common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeStopMarket,
		Qty: 1, StopPrice: 95, ReduceOnly: true, ClientID: "abc"}, "protective stop")
	require.NotNil(t, r)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Confirmed())

	// unconfirmed records survive a sync that does not mention them
	res := m.Sync(nil)
	assert.Empty(t, res.Removed)
	assert.Equal(t, 1, m.Len())

	o := live(42, common.OrderTypeStopMarket, true)
	o.ClientID = "abc"
	res = m.Sync([]*state.OpenOrder{o})
	assert.Empty(t, res.Added, "client id match confirms the local record")
	recs := m.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, int64(42), recs[0].OrderID)
	assert.Equal(t, "protective stop", recs[0].Description)

	other := m.Track(common.OrderRequest{Symbol: "ETHUSDT", Type: common.OrderTypeTakeProfitMarket, StopPrice: 4000}, "")
	assert.True(t, m.Confirm(other.ID, 99))
	assert.False(t, m.Confirm("missing", 1))
	m.Discard(other.ID)
	assert.Equal(t, 1, m.Len())

	m.Reset()
	assert.Zero(t, m.Len())
}
