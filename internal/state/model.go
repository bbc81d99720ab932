package state

import (
	"math"
	"time"

	"futures-terminal/pkg/exchanges/common"
)

// Account is the read-only projection of the account-info response plus
// derived fields.
type Account struct {
	WalletBalance    float64   `json:"wallet_balance"`
	MarginBalance    float64   `json:"margin_balance"` // equity, includes unrealized PnL
	UnrealizedProfit float64   `json:"unrealized_profit"`
	AvailableBalance float64   `json:"available_balance"`
	UsedMargin       float64   `json:"used_margin"` // derived from positions
	UpdatedAt        time.Time `json:"updated_at"`
}

// Position is one open position. Amount is signed: positive long, negative short.
type Position struct {
	Symbol           string              `json:"symbol"`
	Amount           float64             `json:"amount"`
	EntryPrice       float64             `json:"entry_price"`
	MarkPrice        float64             `json:"mark_price"`
	UnrealizedProfit float64             `json:"unrealized_profit"`
	PositionSide     common.PositionSide `json:"position_side"`
	Leverage         int                 `json:"leverage"`
	MarginType       string              `json:"margin_type"`
	IsolatedMargin   float64             `json:"isolated_margin"`
	Selected         bool                `json:"selected"`
}

// PositionKey identifies a position across snapshots.
func PositionKey(symbol string, side common.PositionSide) string {
	if side == "" {
		side = common.PositionSideBoth
	}
	return symbol + ":" + string(side)
}

// Key identifies the position across snapshots.
func (p *Position) Key() string { return PositionKey(p.Symbol, p.PositionSide) }

// Long reports the direction. Hedge-mode side wins over the amount sign.
func (p *Position) Long() bool {
	switch p.PositionSide {
	case common.PositionSideLong:
		return true
	case common.PositionSideShort:
		return false
	}
	return p.Amount > 0
}

// Qty is the absolute position size.
func (p *Position) Qty() float64 { return math.Abs(p.Amount) }

// CloseSide is the order side that reduces the position.
func (p *Position) CloseSide() common.Side {
	if p.Long() {
		return common.SideSell
	}
	return common.SideBuy
}

// InProfit reports whether mark is strictly beyond entry in the profit direction.
func (p *Position) InProfit() bool {
	if p.EntryPrice <= 0 || p.MarkPrice <= 0 {
		return false
	}
	if p.Long() {
		return p.MarkPrice > p.EntryPrice
	}
	return p.MarkPrice < p.EntryPrice
}

// Margin is the margin the position holds: isolated margin, or notional over leverage.
func (p *Position) Margin() float64 {
	if p.IsolatedMargin > 0 {
		return p.IsolatedMargin
	}
	if p.Leverage <= 0 {
		return 0
	}
	price := p.MarkPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return p.Qty() * price / float64(p.Leverage)
}

// patch copies exchange-owned fields, keeping identity and selection.
func (p *Position) patch(src Position) {
	p.Amount = src.Amount
	p.EntryPrice = src.EntryPrice
	p.MarkPrice = src.MarkPrice
	p.UnrealizedProfit = src.UnrealizedProfit
	p.Leverage = src.Leverage
	p.MarginType = src.MarginType
	p.IsolatedMargin = src.IsolatedMargin
}

// OpenOrder is one live order.
type OpenOrder struct {
	OrderID         int64               `json:"order_id"`
	ClientID        string              `json:"client_id"`
	Symbol          string              `json:"symbol"`
	Side            common.Side         `json:"side"`
	Type            common.OrderType    `json:"type"`
	OrigQty         float64             `json:"orig_qty"`
	ExecutedQty     float64             `json:"executed_qty"`
	Price           float64             `json:"price"`
	StopPrice       float64             `json:"stop_price"`
	ActivationPrice float64             `json:"activation_price"`
	CallbackRate    float64             `json:"callback_rate"`
	Status          string              `json:"status"`
	ReduceOnly      bool                `json:"reduce_only"`
	ClosePosition   bool                `json:"close_position"`
	PositionSide    common.PositionSide `json:"position_side"`
	WorkingType     common.WorkingType  `json:"working_type"`
	UpdateTime      int64               `json:"update_time"`
	Selected        bool                `json:"selected"`
}

// IsClose reports whether the order can only reduce a position.
func (o *OpenOrder) IsClose() bool {
	return o.ReduceOnly || o.ClosePosition || HedgeClose(o.Side, o.PositionSide)
}

// HedgeClose reports whether side reduces positionSide in hedge mode: SELL
// on LONG or BUY on SHORT. The exchange takes no reduceOnly flag there, so
// the pairing alone marks a close.
func HedgeClose(side common.Side, positionSide common.PositionSide) bool {
	switch positionSide {
	case common.PositionSideLong:
		return side == common.SideSell
	case common.PositionSideShort:
		return side == common.SideBuy
	}
	return false
}

// Remaining is the unfilled quantity.
func (o *OpenOrder) Remaining() float64 {
	r := o.OrigQty - o.ExecutedQty
	if r < 0 {
		return 0
	}
	return r
}

// ClosesLong reports whether a close-type order reduces the long side.
func (o *OpenOrder) ClosesLong() bool {
	switch o.PositionSide {
	case common.PositionSideLong:
		return true
	case common.PositionSideShort:
		return false
	}
	return o.Side == common.SideSell
}

// OpensLong reports whether an entry order adds to the long side.
func (o *OpenOrder) OpensLong() bool {
	switch o.PositionSide {
	case common.PositionSideLong:
		return true
	case common.PositionSideShort:
		return false
	}
	return o.Side == common.SideBuy
}

func (o *OpenOrder) patch(src OpenOrder) {
	o.ClientID = src.ClientID
	o.Side = src.Side
	o.Type = src.Type
	o.OrigQty = src.OrigQty
	o.ExecutedQty = src.ExecutedQty
	o.Price = src.Price
	o.StopPrice = src.StopPrice
	o.ActivationPrice = src.ActivationPrice
	o.CallbackRate = src.CallbackRate
	o.Status = src.Status
	o.ReduceOnly = src.ReduceOnly
	o.ClosePosition = src.ClosePosition
	o.PositionSide = src.PositionSide
	o.WorkingType = src.WorkingType
	o.UpdateTime = src.UpdateTime
}
