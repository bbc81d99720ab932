package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-terminal/internal/conditional"
	"futures-terminal/internal/engine"
	"futures-terminal/internal/events"
	"futures-terminal/internal/metrics"
	"futures-terminal/internal/risk"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeReader struct {
	view   engine.View
	snap   risk.Snapshot
	status engine.Status
	err    error
}

func (f *fakeReader) View(context.Context) (engine.View, error)   { return f.view, f.err }
func (f *fakeReader) Risk(context.Context) (risk.Snapshot, error) { return f.snap, f.err }
func (f *fakeReader) Status() engine.Status                       { return f.status }

func loaded() *fakeReader {
	return &fakeReader{
		status: engine.Status{Running: true, Account: "main"},
		view: engine.View{
			Account:      "main",
			ActiveSymbol: "BTCUSDT",
			Balance:      state.Account{WalletBalance: 1000, MarginBalance: 1010},
			Positions:    []state.Position{{Symbol: "BTCUSDT", Amount: 0.5, EntryPrice: 100, PositionSide: common.PositionSideBoth}},
			Orders: []state.OpenOrder{
				{OrderID: 1, Symbol: "BTCUSDT", Type: common.OrderTypeStopMarket, ReduceOnly: true},
				{OrderID: 2, Symbol: "ETHUSDT", Type: common.OrderTypeLimit},
			},
			Conditional: []conditional.Record{{ID: "a", Symbol: "ETHUSDT", Category: conditional.AddPosition}},
			ReduceOnly:  []conditional.Record{{ID: "b", OrderID: 1, Symbol: "BTCUSDT", Category: conditional.ClosePosition}},
		},
		snap: risk.Snapshot{Symbol: "BTCUSDT", Standard: 101, Pnl: -5, Total: 96},
	}
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	h := NewHandler(loaded())

	var st engine.Status
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", &st))
	assert.Equal(t, "main", st.Account)

	var acct struct {
		Account string        `json:"account"`
		Symbol  string        `json:"active_symbol"`
		Balance state.Account `json:"balance"`
	}
	assert.Equal(t, http.StatusOK, get(t, h, "/account", &acct))
	assert.Equal(t, "BTCUSDT", acct.Symbol)
	assert.Equal(t, 1010.0, acct.Balance.MarginBalance)

	var positions []state.Position
	assert.Equal(t, http.StatusOK, get(t, h, "/positions", &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, 0.5, positions[0].Amount)

	var orders []state.OpenOrder
	assert.Equal(t, http.StatusOK, get(t, h, "/orders", &orders))
	assert.Len(t, orders, 2)
	assert.Equal(t, http.StatusOK, get(t, h, "/orders?symbol=ETHUSDT", &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, int64(2), orders[0].OrderID)

	var recs []conditional.Record
	assert.Equal(t, http.StatusOK, get(t, h, "/conditional", &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, conditional.AddPosition, recs[0].Category)
	assert.Equal(t, http.StatusOK, get(t, h, "/reduce-only", &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].OrderID)

	var snap risk.Snapshot
	assert.Equal(t, http.StatusOK, get(t, h, "/risk", &snap))
	assert.Equal(t, 96.0, snap.Total)
}

func TestErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		reader *fakeReader
		path   string
		status int
		code   string
	}{
		{"no account", &fakeReader{status: engine.Status{Running: true}}, "/positions", http.StatusConflict, "NO_ACCOUNT"},
		{"no account risk", &fakeReader{status: engine.Status{Running: true}}, "/risk", http.StatusConflict, "NO_ACCOUNT"},
		{"stopped", &fakeReader{err: engine.ErrStopped}, "/orders", http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE"},
		{"risk error", &fakeReader{status: engine.Status{Account: "x"}, err: errors.New("boom")}, "/risk", http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var body struct {
				Code string `json:"code"`
			}
			assert.Equal(t, tt.status, get(t, NewHandler(tt.reader), tt.path, &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}

	assert.Equal(t, http.StatusServiceUnavailable, get(t, NewHandler(&fakeReader{}), "/healthz", nil))
}

func TestReadOnly(t *testing.T) {
	t.Parallel()
	h := NewHandler(loaded())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/positions", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDAndRateLimit(t *testing.T) {
	t.Parallel()
	h := NewHandler(loaded(), WithRateLimit(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	req.RemoteAddr = "10.0.0.9:1234"
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestEventStream(t *testing.T) {
	t.Parallel()
	bus := events.NewBus()
	ts := httptest.NewServer(NewHandler(loaded(), WithBus(bus)))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return bus.Subscribers(events.EventSnapshotApplied) == 1
	}, time.Second, 5*time.Millisecond)
	bus.Publish(events.EventSnapshotApplied, events.SnapshotApplied{Account: "main", Sequence: 7})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Event string                 `json:"event"`
		Data  events.SnapshotApplied `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(events.EventSnapshotApplied), msg.Event)
	assert.Equal(t, uint64(7), msg.Data.Sequence)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusNotFound, get(t, NewHandler(loaded()), "/metrics", nil))

	m := metrics.New()
	m.SnapshotApplied()
	var snap metrics.Snapshot
	assert.Equal(t, http.StatusOK, get(t, NewHandler(loaded(), WithMetrics(m)), "/metrics", &snap))
	assert.Equal(t, uint64(1), snap.SnapshotsApplied)
}
