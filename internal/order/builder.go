package order

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures-terminal/internal/rules"
	"futures-terminal/pkg/exchanges/common"
)

// Trailing callback bounds accepted by the exchange, percent.
const (
	MinCallbackRate = 0.1
	MaxCallbackRate = 10.0
)

// RuleSource resolves trading rules.
type RuleSource interface {
	Rule(ctx context.Context, symbol string) rules.SymbolRule
}

// ModeSource reads the account position mode (true = hedge).
type ModeSource interface {
	PositionMode(ctx context.Context) (bool, error)
}

// Builder turns tickets into exchange-legal requests.
type Builder struct {
	rules RuleSource
	modes ModeSource
	log   *zap.Logger

	mu    sync.Mutex
	hedge *bool
}

// NewBuilder creates an order constructor.
func NewBuilder(rs RuleSource, modes ModeSource, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{rules: rs, modes: modes, log: log.Named("order")}
}

// HedgeMode returns the cached position mode, reading it once per session.
func (b *Builder) HedgeMode(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hedge != nil {
		return *b.hedge, nil
	}
	if b.modes == nil {
		return false, nil
	}
	dual, err := b.modes.PositionMode(ctx)
	if err != nil {
		return false, errors.Wrap(err, "read position mode")
	}
	b.hedge = &dual
	b.log.Debug("position mode cached", zap.Bool("hedge", dual))
	return dual, nil
}

// SetHedgeMode records a mode change made through this session.
func (b *Builder) SetHedgeMode(dual bool) {
	b.mu.Lock()
	b.hedge = &dual
	b.mu.Unlock()
}

// ResetMode forgets the cached mode; called when the account changes.
func (b *Builder) ResetMode() {
	b.mu.Lock()
	b.hedge = nil
	b.mu.Unlock()
}

// Build validates p, snaps price and quantity to the symbol grid and
// resolves the position side. A *ValidationError reports bad input; any
// other error means the position mode could not be read.
func (b *Builder) Build(ctx context.Context, p Params) (*common.OrderRequest, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Side = common.Side(strings.ToUpper(string(p.Side)))
	p.Type = common.OrderType(strings.ToUpper(string(p.Type)))

	if p.Symbol == "" {
		return nil, invalid("symbol", "required")
	}
	if p.Side != common.SideBuy && p.Side != common.SideSell {
		return nil, invalid("side", "must be BUY or SELL, got %q", p.Side)
	}
	// NaN slips past the <= 0 checks below
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"quantity", p.Quantity},
		{"price", p.Price},
		{"stopPrice", p.StopPrice},
		{"callbackRate", p.CallbackRate},
		{"activationPrice", p.ActivationPrice},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return nil, invalid(f.name, "must be a finite number")
		}
	}

	rule := b.rules.Rule(ctx, p.Symbol)
	req := &common.OrderRequest{
		Symbol:        p.Symbol,
		Side:          p.Side,
		Type:          p.Type,
		ReduceOnly:    p.ReduceOnly,
		ClosePosition: p.ClosePosition,
		ClientID:      p.ClientID,
	}

	switch p.Type {
	case common.OrderTypeMarket:
		if p.Quantity <= 0 {
			return nil, invalid("quantity", "must be > 0")
		}
		req.Qty = rules.AdjustQuantity(p.Quantity, rule)

	case common.OrderTypeLimit:
		if p.Price <= 0 {
			return nil, invalid("price", "must be > 0")
		}
		if p.Quantity <= 0 {
			return nil, invalid("quantity", "must be > 0")
		}
		req.Price = rules.AdjustPrice(p.Price, rule)
		req.Qty = rules.AdjustQuantity(p.Quantity, rule)
		req.TimeInForce = p.TimeInForce
		if req.TimeInForce == "" {
			req.TimeInForce = common.TIFGTC
		}

	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		if p.StopPrice <= 0 {
			return nil, invalid("stopPrice", "must be > 0")
		}
		if p.Quantity <= 0 && !p.ClosePosition {
			return nil, invalid("quantity", "must be > 0 unless closing the whole position")
		}
		req.StopPrice = rules.AdjustPrice(p.StopPrice, rule)
		if !p.ClosePosition {
			req.Qty = rules.AdjustQuantity(p.Quantity, rule)
		}

	case common.OrderTypeStop, common.OrderTypeTakeProfit:
		if p.Price <= 0 || p.StopPrice <= 0 {
			return nil, invalid("price", "price and stopPrice must be > 0")
		}
		if p.Quantity <= 0 {
			return nil, invalid("quantity", "must be > 0")
		}
		req.Price = rules.AdjustPrice(p.Price, rule)
		req.StopPrice = rules.AdjustPrice(p.StopPrice, rule)
		req.Qty = rules.AdjustQuantity(p.Quantity, rule)
		req.TimeInForce = p.TimeInForce
		if req.TimeInForce == "" {
			req.TimeInForce = common.TIFGTC
		}

	case common.OrderTypeTrailingStop:
		if p.Quantity <= 0 {
			return nil, invalid("quantity", "must be > 0")
		}
		if p.CallbackRate <= 0 {
			return nil, invalid("callbackRate", "must be > 0")
		}
		rate := math.Round(p.CallbackRate*10) / 10
		if rate < MinCallbackRate {
			rate = MinCallbackRate
		}
		if rate > MaxCallbackRate {
			return nil, invalid("callbackRate", "must be <= %.1f, got %.2f", MaxCallbackRate, p.CallbackRate)
		}
		req.Qty = rules.AdjustQuantity(p.Quantity, rule)
		req.CallbackRate = rate
		if p.ActivationPrice > 0 {
			req.ActivationPrice = rules.AdjustPrice(p.ActivationPrice, rule)
		}

	default:
		return nil, invalid("type", "unsupported order type %q", p.Type)
	}

	if p.Type.IsConditional() {
		req.WorkingType = p.WorkingType
		if req.WorkingType == "" {
			req.WorkingType = common.WorkingTypeContract
		}
	}

	hedge, err := b.HedgeMode(ctx)
	if err != nil {
		return nil, err
	}
	req.PositionSide = resolvePositionSide(hedge, p)

	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	return req, nil
}

// resolvePositionSide forces BOTH in one-way mode. In hedge mode an explicit
// LONG/SHORT is kept; otherwise it is inferred from the side, reversed for
// reducing orders.
func resolvePositionSide(hedge bool, p Params) common.PositionSide {
	if !hedge {
		return common.PositionSideBoth
	}
	switch p.PositionSide {
	case common.PositionSideLong, common.PositionSideShort:
		return p.PositionSide
	}
	buy := p.Side == common.SideBuy
	if p.ReduceOnly || p.ClosePosition {
		buy = !buy
	}
	if buy {
		return common.PositionSideLong
	}
	return common.PositionSideShort
}

// ClosePosition builds a reduce-only market order flattening amount (signed).
func (b *Builder) ClosePosition(ctx context.Context, symbol string, amount float64, side common.PositionSide) (*common.OrderRequest, error) {
	if amount == 0 {
		return nil, invalid("quantity", "position %s is flat", symbol)
	}
	closeSide := common.SideSell
	if amount < 0 {
		closeSide = common.SideBuy
	}
	return b.Build(ctx, Params{
		Symbol:       symbol,
		Side:         closeSide,
		Type:         common.OrderTypeMarket,
		Quantity:     math.Abs(amount),
		ReduceOnly:   true,
		PositionSide: side,
	})
}

// StopLoss builds a reduce-only stop-market order protecting amount (signed).
func (b *Builder) StopLoss(ctx context.Context, symbol string, amount, stopPrice float64, side common.PositionSide) (*common.OrderRequest, error) {
	if amount == 0 {
		return nil, invalid("quantity", "position %s is flat", symbol)
	}
	closeSide := common.SideSell
	if amount < 0 {
		closeSide = common.SideBuy
	}
	return b.Build(ctx, Params{
		Symbol:       symbol,
		Side:         closeSide,
		Type:         common.OrderTypeStopMarket,
		Quantity:     math.Abs(amount),
		StopPrice:    stopPrice,
		ReduceOnly:   true,
		PositionSide: side,
		WorkingType:  common.WorkingTypeMark,
	})
}
