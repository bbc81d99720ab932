package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures-terminal/internal/rules"
	"futures-terminal/pkg/config"
	"futures-terminal/pkg/exchanges/binance/futures_usdt"
	"futures-terminal/pkg/exchanges/common"
)

func newMock(t *testing.T) *MockSource {
	return NewMockSource(MockConfig{Balance: 10000, Seed: 7}, zaptest.NewLogger(t))
}

func TestMockMarketOrderOpensAndClosesPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMock(t)
	m.SetPrice("BTCUSDT", 40000)

	ack, err := m.PlaceOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 0.5})
	require.NoError(t, err)
	assert.Equal(t, common.StatusFilled, ack.Status)

	ps, err := m.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, 0.5, ps[0].Amount)
	assert.Equal(t, 40000.0, ps[0].EntryPrice)

	m.SetPrice("BTCUSDT", 41000)
	px, ok := m.Price("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 41000.0, px)
	acct, err := m.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 500, acct.UnrealizedProfit, 1e-6)
	assert.InDelta(t, 10500, acct.MarginBalance, 1e-6)

	_, err = m.PlaceOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 2, ReduceOnly: true})
	require.NoError(t, err)
	ps, _ = m.Positions(ctx)
	assert.Empty(t, ps, "reduce-only is capped at the position size")
	acct, _ = m.Account(ctx)
	assert.InDelta(t, 10500, acct.WalletBalance, 1e-6)
}

func TestMockStopTriggersOnCross(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMock(t)
	m.SetPrice("ETHUSDT", 2000)
	_, err := m.PlaceOrder(ctx, common.OrderRequest{Symbol: "ETHUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 1})
	require.NoError(t, err)

	ack, err := m.PlaceOrder(ctx, common.OrderRequest{Symbol: "ETHUSDT", Side: common.SideBuy, Type: common.OrderTypeStopMarket,
		Qty: 1, StopPrice: 2100, ReduceOnly: true})
	require.NoError(t, err)
	open, _ := m.OpenOrders(ctx, "ETHUSDT")
	require.Len(t, open, 1)

	m.SetPrice("ETHUSDT", 2100)
	open, _ = m.OpenOrders(ctx, "")
	assert.Empty(t, open)
	ps, _ := m.Positions(ctx)
	assert.Empty(t, ps)

	hist, err := m.AllOrders(ctx, "ETHUSDT", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, ack.OrderID, hist[1].OrderID)
	assert.Equal(t, common.StatusFilled, hist[1].Status)
}

func TestMockCloseShortWithClosePosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMock(t)
	m.SetPrice("SOLUSDT", 150)
	_, err := m.PlaceOrder(ctx, common.OrderRequest{Symbol: "SOLUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 3})
	require.NoError(t, err)
	_, err = m.PlaceOrder(ctx, common.OrderRequest{Symbol: "SOLUSDT", Side: common.SideBuy, Type: common.OrderTypeStopMarket,
		StopPrice: 155, ClosePosition: true})
	require.NoError(t, err)

	m.SetPrice("SOLUSDT", 156)
	ps, _ := m.Positions(ctx)
	assert.Empty(t, ps)
}

func TestMockCancelAndModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMock(t)

	ack, err := m.PlaceOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeLimit, Qty: 1, Price: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, m.CancelOrder(ctx, "BTCUSDT", ack.OrderID+100), ErrUnknownOrder)
	require.NoError(t, m.CancelOrder(ctx, "BTCUSDT", ack.OrderID))

	require.NoError(t, m.SetPositionMode(ctx, true))
	dual, _ := m.PositionMode(ctx)
	assert.True(t, dual)
	_, err = m.PlaceOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 1})
	assert.Error(t, err, "hedge mode needs an explicit side")

	assert.Error(t, m.SetLeverage(ctx, "BTCUSDT", 0))
	assert.NoError(t, m.SetLeverage(ctx, "BTCUSDT", 20))
}

func TestMockIsolatedMargin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMock(t)
	m.SetPrice("BTCUSDT", 10000)
	require.NoError(t, m.SetMarginType(ctx, "BTCUSDT", common.MarginIsolated))
	require.NoError(t, m.SetLeverage(ctx, "BTCUSDT", 10))
	_, err := m.PlaceOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Qty: 1})
	require.NoError(t, err)

	require.NoError(t, m.ModifyPositionMargin(ctx, "BTCUSDT", common.PositionSideBoth, 100, true))
	ps, _ := m.Positions(ctx)
	require.Len(t, ps, 1)
	assert.InDelta(t, 1100, ps[0].IsolatedMargin, 1e-9)
	assert.Error(t, m.ModifyPositionMargin(ctx, "BTCUSDT", common.PositionSideBoth, 5000, false))
}

func TestMockTickerWalksAndRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMock(t)
	before := m.prices["BTCUSDT"]
	prices, err := m.TickerPrices(ctx, "BTCUSDT", "NOPEUSDT")
	require.NoError(t, err)
	require.Contains(t, prices, "BTCUSDT")
	assert.NotContains(t, prices, "NOPEUSDT")
	assert.InEpsilon(t, before, prices["BTCUSDT"], 0.002)

	rs, err := m.SymbolRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rs)
	for _, r := range rs {
		assert.Equal(t, rules.SourceExchange, r.Source)
		assert.NoError(t, r.Validate())
	}
}

func TestBinancePublicFallback(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/ticker/price" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"50000.5"}]`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"down"}`))
	}))
	defer srv.Close()

	log := zaptest.NewLogger(t)
	client := futures_usdt.NewClient(futures_usdt.Config{BaseURL: srv.URL}, log)
	b := NewBinance("main", client, newMock(t), log)
	ctx := context.Background()

	rs, err := b.SymbolRules(ctx)
	require.Error(t, err, "the rule cache owns the fallback tiers")
	assert.Empty(t, rs)
	assert.True(t, b.Degraded())
	assert.True(t, b.Mock())

	prices, err := b.TickerPrices(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.5, prices["BTCUSDT"])
	assert.False(t, b.Degraded(), "a live call clears the flag")

	_, err = b.Account(ctx)
	assert.Error(t, err, "account calls never fall back")
}

func TestBinanceRulesSurviveOutage(t *testing.T) {
	t.Parallel()
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/exchangeInfo" || down.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":-1000,"msg":"down"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"LINKUSDT","status":"TRADING","filters":[` +
			`{"filterType":"PRICE_FILTER","tickSize":"0.0005"},` +
			`{"filterType":"LOT_SIZE","stepSize":"0.05","minQty":"0.05","maxQty":"10000"}]}]}`))
	}))
	defer srv.Close()

	log := zaptest.NewLogger(t)
	client := futures_usdt.NewClient(futures_usdt.Config{BaseURL: srv.URL}, log)
	b := NewBinance("main", client, newMock(t), log)
	now := time.Unix(1700000000, 0)
	cache := rules.NewCache(b, log, rules.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	live := cache.Rule(ctx, "LINKUSDT")
	require.Equal(t, rules.SourceExchange, live.Source)
	assert.Equal(t, 0.0005, live.TickSize)
	assert.Equal(t, 0.05, live.StepSize)

	down.Store(true)
	now = now.Add(rules.DefaultPayloadTTL)
	stale := cache.Rule(ctx, "LINKUSDT")
	assert.Equal(t, rules.SourceStale, stale.Source, "stale payload beats the static tables")
	assert.Equal(t, 0.0005, stale.TickSize)
	assert.Equal(t, 0.05, stale.StepSize)
	assert.True(t, b.Degraded())

	btc := cache.Rule(ctx, "BTCUSDT")
	assert.Equal(t, rules.SourceSymbolTable, btc.Source, "synthetic rules are never labelled exchange")

	down.Store(false)
	now = now.Add(2 * time.Minute)
	recovered := cache.Rule(ctx, "LINKUSDT")
	assert.Equal(t, rules.SourceExchange, recovered.Source)
	assert.Equal(t, 0.05, recovered.StepSize)
	assert.False(t, b.Degraded())
}

func TestFactory(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t)

	src := New(config.AccountCredential{Name: "paper", RiskDivisionFactor: 10}, config.Default(), log)
	assert.True(t, src.Mock())

	eng := config.Default()
	eng.MockMode = true
	src = New(config.AccountCredential{Name: "main", APIKey: "k", SecretKey: "s", RiskDivisionFactor: 10}, eng, log)
	assert.True(t, src.Mock())

	src = New(config.AccountCredential{Name: "main", APIKey: "k", SecretKey: "s", RiskDivisionFactor: 10}, config.Default(), log)
	_, ok := src.(*Binance)
	assert.True(t, ok)
	assert.Equal(t, "main", src.Name())
}
