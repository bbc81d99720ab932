package common

import "strings"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that reduces a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes USDT-M futures order types.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStop             OrderType = "STOP"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTrailingStop     OrderType = "TRAILING_STOP_MARKET"
)

// IsConditional reports whether the type carries a trigger price
// (stop, take-profit or trailing).
func (t OrderType) IsConditional() bool {
	switch OrderType(strings.ToUpper(string(t))) {
	case OrderTypeStop, OrderTypeStopMarket, OrderTypeTakeProfit,
		OrderTypeTakeProfitMarket, OrderTypeTrailingStop:
		return true
	}
	return false
}

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
	TIFGTX TimeInForce = "GTX" // Post Only
)

// PositionSide tags an order or position in hedge mode.
type PositionSide string

const (
	PositionSideBoth  PositionSide = "BOTH"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// WorkingType selects the price a conditional order triggers against.
type WorkingType string

const (
	WorkingTypeMark     WorkingType = "MARK_PRICE"
	WorkingTypeContract WorkingType = "CONTRACT_PRICE"
)

// MarginType is the per-symbol margin mode.
type MarginType string

const (
	MarginIsolated MarginType = "ISOLATED"
	MarginCrossed  MarginType = "CROSSED"
)

// Exchange order status strings as reported by the futures API.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

// OrderRequest captures an order intent to be sent to the exchange.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Qty           float64
	Price         float64 // LIMIT only
	StopPrice     float64 // STOP_MARKET / TAKE_PROFIT_MARKET
	TimeInForce   TimeInForce
	ClientID      string
	ReduceOnly    bool
	ClosePosition bool
	PositionSide  PositionSide
	WorkingType   WorkingType

	// Trailing stop
	ActivationPrice float64
	CallbackRate    float64 // percent
}

// OrderResult is the exchange ack.
type OrderResult struct {
	OrderID  int64
	ClientID string
	Status   string
}
