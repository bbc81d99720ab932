// Package engine runs one exchange account: periodic reconciliation, risk
// derivation, conditional order tracking and trailing stop conversion, all
// owned by a single loop goroutine.
package engine

import (
	"context"

	"futures-terminal/internal/order"
	"futures-terminal/internal/risk"
	"futures-terminal/pkg/config"
	"futures-terminal/pkg/exchanges/common"
)

// Reader is the read side the status API depends on.
type Reader interface {
	View(ctx context.Context) (View, error)
	Risk(ctx context.Context) (risk.Snapshot, error)
	Status() Status
}

// Service is the full engine surface.
type Service interface {
	Reader

	SelectAccount(ctx context.Context, cred config.AccountCredential) error
	ClearAccount(ctx context.Context) error
	SetActiveSymbol(ctx context.Context, symbol string) error
	SelectPosition(ctx context.Context, key string, selected bool) (bool, error)
	SelectOrder(ctx context.Context, orderID int64, selected bool) (bool, error)
	Refresh(ctx context.Context) error

	QuantityFromLoss(ctx context.Context, symbol string, loss, price, stopLossRatio float64) (float64, error)
	PlaceOrder(ctx context.Context, p order.Params) (common.OrderResult, error)
	PlaceConditional(ctx context.Context, p order.Params, desc string) (common.OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	CancelAll(ctx context.Context, selectedOnly bool) (order.BatchResult, error)
	CloseAll(ctx context.Context, selectedOnly bool) (order.BatchResult, error)
	PlaceStopLosses(ctx context.Context, stopLossRatio float64, selectedOnly bool) (order.BatchResult, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol string, mt common.MarginType) error
	SetPositionMode(ctx context.Context, dual bool) error
	ModifyPositionMargin(ctx context.Context, symbol string, side common.PositionSide, amount float64, add bool) error
}

var _ Service = (*Engine)(nil)
