package conditional

import (
	"time"

	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

// Category splits conditional orders into entries and protective exits.
type Category string

const (
	AddPosition   Category = "add_position"
	ClosePosition Category = "close_position"
)

// Classify derives the category from the reduce flags only. Order type is
// ignored: breakout entries use stop and take-profit types too. Hedge-mode
// callers fold the side/positionSide pairing into reduceOnly.
func Classify(reduceOnly, closePosition bool) Category {
	if reduceOnly || closePosition {
		return ClosePosition
	}
	return AddPosition
}

// Status is the local lifecycle of a conditional order.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPartiallyFilled Status = "partially_filled"
	StatusTriggered       Status = "triggered"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusTriggered, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// MapStatus translates an exchange order status. Unknown strings map to
// pending.
func MapStatus(exchange string) Status {
	switch exchange {
	case common.StatusPartiallyFilled:
		return StatusPartiallyFilled
	case common.StatusFilled:
		return StatusTriggered
	case common.StatusCanceled:
		return StatusCancelled
	case common.StatusRejected:
		return StatusRejected
	case common.StatusExpired:
		return StatusExpired
	}
	return StatusPending
}

var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPartiallyFilled: true,
		StatusTriggered:       true,
		StatusCancelled:       true,
		StatusRejected:        true,
		StatusExpired:         true,
	},
	StatusPartiallyFilled: {
		StatusTriggered: true,
		StatusCancelled: true,
		StatusExpired:   true,
	},
}

// CanTransition reports whether from -> to is a legal step. Staying put is
// always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// Record tracks one conditional order. OrderID is zero until the exchange
// has acknowledged it.
type Record struct {
	ID              string              `json:"id"`
	OrderID         int64               `json:"order_id"`
	ClientID        string              `json:"client_id"`
	Symbol          string              `json:"symbol"`
	Side            common.Side         `json:"side"`
	Type            common.OrderType    `json:"type"`
	Quantity        float64             `json:"quantity"`
	StopPrice       float64             `json:"stop_price"`
	ActivationPrice float64             `json:"activation_price,omitempty"`
	CallbackRate    float64             `json:"callback_rate,omitempty"`
	ReduceOnly      bool                `json:"reduce_only"`
	ClosePosition   bool                `json:"close_position"`
	PositionSide    common.PositionSide `json:"position_side"`
	Category        Category            `json:"category"`
	Status          Status              `json:"status"`
	Description     string              `json:"description,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Confirmed reports whether the exchange knows the order.
func (r *Record) Confirmed() bool { return r.OrderID != 0 }

func (r *Record) fill(o *state.OpenOrder) {
	r.OrderID = o.OrderID
	if o.ClientID != "" {
		r.ClientID = o.ClientID
	}
	r.Symbol = o.Symbol
	r.Side = o.Side
	r.Type = o.Type
	r.Quantity = o.OrigQty
	r.StopPrice = o.StopPrice
	r.ActivationPrice = o.ActivationPrice
	r.CallbackRate = o.CallbackRate
	r.ReduceOnly = o.ReduceOnly
	r.ClosePosition = o.ClosePosition
	r.PositionSide = o.PositionSide
	r.Category = Classify(o.IsClose(), o.ClosePosition)
}

// Transition is one observed status change.
type Transition struct {
	RecordID string   `json:"record_id"`
	OrderID  int64    `json:"order_id"`
	Symbol   string   `json:"symbol"`
	Category Category `json:"category"`
	From     Status   `json:"from"`
	To       Status   `json:"to"`
}
