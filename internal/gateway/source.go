// Package gateway puts the live exchange and the mock account behind one
// data-source interface.
package gateway

import (
	"context"

	"futures-terminal/internal/rules"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

// DataSource is everything the engine needs from an account. The Binance
// client and the mock account both implement it.
type DataSource interface {
	Name() string
	// Mock reports whether the source is synthetic, either by selection or
	// because public calls fell back to synthetic data.
	Mock() bool

	Account(ctx context.Context) (state.Account, error)
	Positions(ctx context.Context) ([]state.Position, error)
	OpenOrders(ctx context.Context, symbol string) ([]state.OpenOrder, error)
	AllOrders(ctx context.Context, symbol string, limit int) ([]state.OpenOrder, error)

	PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol string, mt common.MarginType) error
	PositionMode(ctx context.Context) (bool, error)
	SetPositionMode(ctx context.Context, dual bool) error
	ModifyPositionMargin(ctx context.Context, symbol string, side common.PositionSide, amount float64, add bool) error

	SymbolRules(ctx context.Context) ([]rules.SymbolRule, error)
	TickerPrices(ctx context.Context, symbols ...string) (map[string]float64, error)
	ServerTime(ctx context.Context) (int64, error)
}
