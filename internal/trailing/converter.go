package trailing

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-terminal/internal/order"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

// Callback rate bounds in percent.
const (
	MinRate = 0.1
	MaxRate = 5.0
)

// ErrInFlight is returned when the position is already being converted.
var ErrInFlight = errors.New("trailing: conversion already in flight")

// CallbackRate is the stop distance from entry in percent, rounded to 0.1
// and clamped to [MinRate, MaxRate].
func CallbackRate(entry, stop float64) float64 {
	if entry <= 0 {
		return MinRate
	}
	raw := math.Abs(entry-stop) / entry * 100
	rate, _ := decimal.NewFromFloat(raw).Round(1).Float64()
	return math.Min(MaxRate, math.Max(MinRate, rate))
}

// Eligible returns the protective stop to convert. A position qualifies when
// it is in profit, has a reduce-only STOP_MARKET on its side and no trailing
// stop yet. With several stops the one closest to trigger is chosen.
func Eligible(p *state.Position, orders []*state.OpenOrder) (*state.OpenOrder, bool) {
	if p == nil || p.Amount == 0 || !p.InProfit() {
		return nil, false
	}
	var best *state.OpenOrder
	for _, o := range orders {
		if o.Symbol != p.Symbol || !o.IsClose() || o.ClosesLong() != p.Long() {
			continue
		}
		if hedged(o.PositionSide) && o.PositionSide != p.PositionSide {
			continue
		}
		switch o.Type {
		case common.OrderTypeTrailingStop:
			return nil, false
		case common.OrderTypeStopMarket:
			if o.StopPrice <= 0 {
				continue
			}
			if best == nil || (p.Long() && o.StopPrice > best.StopPrice) || (!p.Long() && o.StopPrice < best.StopPrice) {
				best = o
			}
		}
	}
	return best, best != nil
}

func hedged(s common.PositionSide) bool {
	return s == common.PositionSideLong || s == common.PositionSideShort
}

// Builder builds validated order requests.
type Builder interface {
	Build(ctx context.Context, p order.Params) (*common.OrderRequest, error)
}

// Result describes one conversion. CancelError is set when the new trailing
// order went in but the old stop could not be cancelled.
type Result struct {
	Symbol          string              `json:"symbol"`
	PositionSide    common.PositionSide `json:"position_side"`
	OldOrderID      int64               `json:"old_order_id"`
	NewOrderID      int64               `json:"new_order_id"`
	CallbackRate    float64             `json:"callback_rate"`
	ActivationPrice float64             `json:"activation_price"`
	CancelError     string              `json:"cancel_error,omitempty"`
}

// Converter replaces protective stops with trailing stops.
type Converter struct {
	gw      common.Gateway
	builder Builder
	log     *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewConverter wires a converter.
func NewConverter(gw common.Gateway, b Builder, log *zap.Logger) *Converter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Converter{gw: gw, builder: b, log: log.Named("trailing"), inflight: make(map[string]struct{})}
}

// Convert places a trailing stop mirroring stop, activated at mark, and only
// then cancels stop. A failed cancel is logged and reported in the result;
// the trailing order is kept, so the position is never left unprotected.
func (c *Converter) Convert(ctx context.Context, p state.Position, stop state.OpenOrder, mark float64) (Result, error) {
	key := p.Key()
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return Result{}, ErrInFlight
	}
	c.inflight[key] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	if mark <= 0 {
		mark = p.MarkPrice
	}
	qty := stop.Remaining()
	if qty <= 0 {
		qty = p.Qty()
	}
	rate := CallbackRate(p.EntryPrice, stop.StopPrice)

	req, err := c.builder.Build(ctx, order.Params{
		Symbol:          p.Symbol,
		Side:            stop.Side,
		Type:            common.OrderTypeTrailingStop,
		Quantity:        qty,
		CallbackRate:    rate,
		ActivationPrice: mark,
		ReduceOnly:      true,
		PositionSide:    stop.PositionSide,
		WorkingType:     stop.WorkingType,
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "build trailing stop for %s", key)
	}

	ack, err := c.gw.PlaceOrder(ctx, *req)
	if err != nil {
		return Result{}, errors.Wrapf(err, "place trailing stop for %s", key)
	}
	res := Result{
		Symbol:          p.Symbol,
		PositionSide:    p.PositionSide,
		OldOrderID:      stop.OrderID,
		NewOrderID:      ack.OrderID,
		CallbackRate:    req.CallbackRate,
		ActivationPrice: req.ActivationPrice,
	}

	if err := c.gw.CancelOrder(ctx, stop.Symbol, stop.OrderID); err != nil {
		res.CancelError = err.Error()
		c.log.Warn("original stop not cancelled; both orders remain",
			zap.String("symbol", p.Symbol),
			zap.Int64("stop_order_id", stop.OrderID),
			zap.Int64("trailing_order_id", ack.OrderID),
			zap.Error(err))
		return res, nil
	}
	c.log.Info("stop converted to trailing",
		zap.String("symbol", p.Symbol),
		zap.Int64("old_order_id", stop.OrderID),
		zap.Int64("new_order_id", ack.OrderID),
		zap.Float64("callback_rate", res.CallbackRate),
		zap.Float64("activation_price", res.ActivationPrice))
	return res, nil
}
