package order

import (
	"fmt"

	"github.com/pkg/errors"

	"futures-terminal/pkg/exchanges/common"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("order validation failed")

// ValidationError reports a user-input problem with an order ticket.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Params is an order ticket before precision and position-side resolution.
type Params struct {
	Symbol          string
	Side            common.Side
	Type            common.OrderType
	Quantity        float64
	Price           float64 // LIMIT
	StopPrice       float64 // STOP_MARKET / TAKE_PROFIT_MARKET
	CallbackRate    float64 // TRAILING_STOP_MARKET, percent
	ActivationPrice float64 // TRAILING_STOP_MARKET, optional
	ReduceOnly      bool
	ClosePosition   bool
	PositionSide    common.PositionSide
	WorkingType     common.WorkingType
	TimeInForce     common.TimeInForce
	ClientID        string
}
