package gateway

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"futures-terminal/internal/rules"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/binance/futures_usdt"
	"futures-terminal/pkg/exchanges/common"
)

// Binance adapts the USDT-M client. Public market calls that fail are served
// from the synthetic source and mark the adapter degraded until a live call
// succeeds again; account calls always report their errors.
type Binance struct {
	client   *futures_usdt.Client
	fallback *MockSource
	name     string
	log      *zap.Logger
	degraded atomic.Bool
}

// NewBinance wraps client. fallback may be nil, in which case public errors
// are returned as is.
func NewBinance(name string, client *futures_usdt.Client, fallback *MockSource, log *zap.Logger) *Binance {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binance{client: client, fallback: fallback, name: name, log: log.Named("binance")}
}

// Client exposes the wrapped REST client.
func (b *Binance) Client() *futures_usdt.Client { return b.client }

func (b *Binance) Name() string { return b.name }

func (b *Binance) Mock() bool { return b.degraded.Load() }

// Degraded reports whether public data currently comes from the fallback.
func (b *Binance) Degraded() bool { return b.degraded.Load() }

func (b *Binance) Account(ctx context.Context) (state.Account, error) {
	info, err := b.client.AccountInfo(ctx)
	if err != nil {
		return state.Account{}, err
	}
	return state.Account{
		WalletBalance:    info.WalletBalance(),
		MarginBalance:    info.MarginBalance(),
		UnrealizedProfit: info.UnrealizedProfit(),
		AvailableBalance: info.Available(),
		UpdatedAt:        time.Now(),
	}, nil
}

func (b *Binance) Positions(ctx context.Context) ([]state.Position, error) {
	rows, err := b.client.PositionRisk(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]state.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, state.Position{
			Symbol:           r.Symbol,
			Amount:           r.Amount(),
			EntryPrice:       r.Entry(),
			MarkPrice:        r.Mark(),
			UnrealizedProfit: r.Unrealized(),
			PositionSide:     common.PositionSide(r.PositionSide),
			Leverage:         r.LeverageInt(),
			MarginType:       strings.ToUpper(r.MarginType),
			IsolatedMargin:   r.Isolated(),
		})
	}
	return out, nil
}

func (b *Binance) OpenOrders(ctx context.Context, symbol string) ([]state.OpenOrder, error) {
	rows, err := b.client.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return convertOrders(rows), nil
}

func (b *Binance) AllOrders(ctx context.Context, symbol string, limit int) ([]state.OpenOrder, error) {
	rows, err := b.client.AllOrders(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	return convertOrders(rows), nil
}

func convertOrders(rows []futures_usdt.Order) []state.OpenOrder {
	out := make([]state.OpenOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, state.OpenOrder{
			OrderID:         r.OrderID,
			ClientID:        r.ClientOrderID,
			Symbol:          r.Symbol,
			Side:            common.Side(r.Side),
			Type:            common.OrderType(r.Type),
			OrigQty:         r.Qty(),
			ExecutedQty:     r.Executed(),
			Price:           r.LimitPrice(),
			StopPrice:       r.Trigger(),
			ActivationPrice: r.Activation(),
			CallbackRate:    r.CallbackRate(),
			Status:          r.Status,
			ReduceOnly:      r.ReduceOnly,
			ClosePosition:   r.ClosePosition,
			PositionSide:    common.PositionSide(r.PositionSide),
			WorkingType:     common.WorkingType(r.WorkingType),
			UpdateTime:      r.UpdateTime,
		})
	}
	return out
}

func (b *Binance) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	return b.client.PlaceOrder(ctx, req)
}

func (b *Binance) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return b.client.CancelOrder(ctx, symbol, orderID)
}

func (b *Binance) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return b.client.CancelAllOpenOrders(ctx, symbol)
}

func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return b.client.SetLeverage(ctx, symbol, leverage)
}

func (b *Binance) SetMarginType(ctx context.Context, symbol string, mt common.MarginType) error {
	return b.client.SetMarginType(ctx, symbol, string(mt))
}

func (b *Binance) PositionMode(ctx context.Context) (bool, error) {
	return b.client.PositionMode(ctx)
}

func (b *Binance) SetPositionMode(ctx context.Context, dual bool) error {
	return b.client.SetPositionMode(ctx, dual)
}

func (b *Binance) ModifyPositionMargin(ctx context.Context, symbol string, side common.PositionSide, amount float64, add bool) error {
	direction := futures_usdt.MarginReduce
	if add {
		direction = futures_usdt.MarginAdd
	}
	return b.client.ModifyPositionMargin(ctx, symbol, string(side), amount, direction)
}

func (b *Binance) SymbolRules(ctx context.Context) ([]rules.SymbolRule, error) {
	info, err := b.client.ExchangeInfo(ctx)
	if err != nil {
		// The rule cache owns the fallback tiers and keeps the stale
		// payload, so synthetic rules must never reach it as exchange data.
		if b.fallback != nil {
			b.degrade("exchange info", err)
		}
		return nil, err
	}
	b.restore()
	return rules.FromExchangeInfo(info), nil
}

func (b *Binance) TickerPrices(ctx context.Context, symbols ...string) (map[string]float64, error) {
	prices, err := b.client.TickerPrices(ctx, symbols...)
	if err != nil {
		if b.fallback == nil {
			return nil, err
		}
		b.degrade("ticker prices", err)
		return b.fallback.TickerPrices(ctx, symbols...)
	}
	b.restore()
	return prices, nil
}

func (b *Binance) ServerTime(ctx context.Context) (int64, error) {
	ts, err := b.client.ServerTime(ctx)
	if err != nil {
		if b.fallback == nil {
			return 0, err
		}
		b.degrade("server time", err)
		return b.fallback.ServerTime(ctx)
	}
	b.restore()
	return ts, nil
}

func (b *Binance) degrade(what string, err error) {
	if !b.degraded.Swap(true) {
		b.log.Warn("public data unavailable, serving synthetic data",
			zap.String("call", what), zap.Error(err))
	}
}

func (b *Binance) restore() {
	if b.degraded.Swap(false) {
		b.log.Info("public data restored")
	}
}
