package futures_usdt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"futures-terminal/pkg/exchanges/common"
)

const testSecret = "s3cr3t"

// signedPayload returns the raw payload of a signed request and asserts its signature.
func signedPayload(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	raw := r.URL.RawQuery
	if r.Method == http.MethodPost {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw = string(b)
	}
	idx := strings.LastIndex(raw, "&signature=")
	require.True(t, idx > 0, "signature missing in %q", raw)
	payload, sig := raw[:idx], raw[idx+len("&signature="):]
	assert.Equal(t, sign(payload, testSecret), sig)
	assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
	vals, err := url.ParseQuery(payload)
	require.NoError(t, err)
	assert.NotEmpty(t, vals.Get("timestamp"))
	assert.Equal(t, "5000", vals.Get("recvWindow"))
	return vals
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serverTime":1700000000000}`))
	})
	mux.HandleFunc("/", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "key", APISecret: testSecret, BaseURL: srv.URL, RequestsPerSec: 1000}, zaptest.NewLogger(t))
}

func TestSign(t *testing.T) {
	// reference vector from the exchange API documentation
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", sign(payload, secret))
}

func TestPlaceOrderSignsAndEncodes(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/order", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		got = signedPayload(t, r)
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"abc","status":"NEW"}`))
	})

	res, err := c.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol:       "BTCUSDT",
		Side:         common.SideSell,
		Type:         common.OrderTypeStopMarket,
		Qty:          0.01,
		StopPrice:    95000.5,
		ReduceOnly:   true,
		PositionSide: common.PositionSideBoth,
		WorkingType:  common.WorkingTypeMark,
		ClientID:     "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.OrderID)
	assert.Equal(t, "NEW", res.Status)

	assert.Equal(t, "STOP_MARKET", got.Get("type"))
	assert.Equal(t, "0.01", got.Get("quantity"))
	assert.Equal(t, "95000.5", got.Get("stopPrice"))
	assert.Equal(t, "true", got.Get("reduceOnly"))
	assert.Equal(t, "MARK_PRICE", got.Get("workingType"))
	assert.Equal(t, "BOTH", got.Get("positionSide"))
}

func TestOrderParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		req     common.OrderRequest
		present map[string]string
		absent  []string
	}{
		{
			name:    "limit defaults to GTC",
			req:     common.OrderRequest{Symbol: "ETHUSDT", Side: common.SideBuy, Type: common.OrderTypeLimit, Qty: 1, Price: 2500},
			present: map[string]string{"price": "2500", "timeInForce": "GTC", "quantity": "1"},
			absent:  []string{"stopPrice", "reduceOnly"},
		},
		{
			name: "hedge mode drops reduceOnly",
			req: common.OrderRequest{Symbol: "ETHUSDT", Side: common.SideSell, Type: common.OrderTypeStopMarket, Qty: 1,
				StopPrice: 2400, ReduceOnly: true, PositionSide: common.PositionSideLong},
			present: map[string]string{"positionSide": "LONG", "stopPrice": "2400"},
			absent:  []string{"reduceOnly"},
		},
		{
			name: "close position omits quantity",
			req: common.OrderRequest{Symbol: "ETHUSDT", Side: common.SideSell, Type: common.OrderTypeTakeProfitMarket,
				StopPrice: 2600, ClosePosition: true},
			present: map[string]string{"closePosition": "true"},
			absent:  []string{"quantity", "reduceOnly"},
		},
		{
			name: "trailing stop",
			req: common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeTrailingStop, Qty: 0.5,
				CallbackRate: 2, ActivationPrice: 103000, ReduceOnly: true},
			present: map[string]string{"callbackRate": "2", "activationPrice": "103000", "reduceOnly": "true"},
			absent:  []string{"stopPrice", "price"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := orderParams(tt.req)
			for k, v := range tt.present {
				assert.Equal(t, v, p.Get(k), k)
			}
			for _, k := range tt.absent {
				assert.False(t, p.Has(k), k)
			}
		})
	}
}

func TestSetMarginTypeNoChangeIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		signedPayload(t, r)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-4046,"msg":"No need to change margin type."}`))
	})
	assert.NoError(t, c.SetMarginType(context.Background(), "BTCUSDT", "isolated"))
}

func TestSetPositionModeNoChangeIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-4059,"msg":"No need to change position side."}`))
	})
	assert.NoError(t, c.SetPositionMode(context.Background(), true))
}

func TestAPIErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})
	err := c.SetLeverage(context.Background(), "BTCUSDT", 20)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -2019, apiErr.Code)
	assert.Equal(t, "/fapi/v1/leverage", apiErr.Endpoint)
	assert.False(t, IsNoChange(err))
}

func TestCredentialsRequired(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	_, err := c.AccountInfo(context.Background())
	assert.ErrorIs(t, err, ErrCredentialsRequired)
}

func TestAccountAndPositions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		signedPayload(t, r)
		switch r.URL.Path {
		case "/fapi/v2/account":
			_, _ = w.Write([]byte(`{"totalWalletBalance":"10000.5","totalMarginBalance":"10120.5","totalUnrealizedProfit":"120","availableBalance":"8000"}`))
		case "/fapi/v1/positionRisk":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","positionSide":"BOTH","positionAmt":"-0.010","entryPrice":"100000","markPrice":"99000","unRealizedProfit":"10","leverage":"20","marginType":"cross","isolatedMargin":"0"}]`))
		default:
			http.NotFound(w, r)
		}
	})
	info, err := c.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10120.5, info.MarginBalance(), 1e-9)
	assert.InDelta(t, 8000, info.Available(), 1e-9)

	pos, err := c.PositionRisk(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.InDelta(t, -0.01, pos[0].Amount(), 1e-12)
	assert.Equal(t, 20, pos[0].LeverageInt())
}

func TestExchangeInfoFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","filters":[
			{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"556.80","maxPrice":"4529764"},
			{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"}]}]}`))
	})
	info, err := c.ExchangeInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Symbols, 1)
	pf, ok := info.Symbols[0].Filter("PRICE_FILTER")
	require.True(t, ok)
	assert.InDelta(t, 0.1, pf.Tick(), 1e-12)
	lot, ok := info.Symbols[0].Filter("LOT_SIZE")
	require.True(t, ok)
	assert.InDelta(t, 0.001, lot.Step(), 1e-12)
	assert.InDelta(t, 1000, lot.Max(), 1e-12)
}

func TestTickerPricesFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","price":"100000.1"},{"symbol":"ETHUSDT","price":"2500"}]`))
	})
	prices, err := c.TickerPrices(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"ETHUSDT": 2500}, prices)
}

func TestParseMarkPrice(t *testing.T) {
	mp, err := parseMarkPrice([]byte(`{"stream":"btcusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1562305380000,"s":"BTCUSDT","p":"11794.15000000"}}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", mp.Symbol)
	assert.InDelta(t, 11794.15, mp.Price, 1e-9)

	_, err = parseMarkPrice([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
}
