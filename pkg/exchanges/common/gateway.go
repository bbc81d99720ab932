package common

import "context"

// Gateway is the order lifecycle subset of a trading venue.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
}
