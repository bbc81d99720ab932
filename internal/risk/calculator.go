package risk

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"futures-terminal/internal/rules"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

// ErrInvalidInput is returned for non-positive inputs; the value returned
// alongside it is always 0.
var ErrInvalidInput = errors.New("risk: invalid input")

const qtyEpsilon = 1e-12

// Snapshot is the derived risk budget of the active symbol.
type Snapshot struct {
	Symbol     string    `json:"symbol"`
	Standard   float64   `json:"standard_risk_capital"`
	Pnl        float64   `json:"pnl_risk_capital"`
	Total      float64   `json:"total_risk_capital"`
	Message    string    `json:"message,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// StandardRiskCapital is ceil(equity / factor).
func StandardRiskCapital(equity float64, factor int) (float64, error) {
	if factor <= 0 {
		return 0, errors.Wrapf(ErrInvalidInput, "risk division factor must be > 0, got %d", factor)
	}
	if !positive(equity) {
		return 0, errors.Wrapf(ErrInvalidInput, "equity must be finite and > 0, got %.2f", equity)
	}
	return math.Ceil(equity / float64(factor)), nil
}

// TotalRiskCapital is ceil(standard + pnl). It may be negative.
func TotalRiskCapital(standard, pnl float64) float64 {
	return math.Ceil(standard + pnl)
}

// QuantityFromLoss sizes a position so that a stop lossRatio percent away
// from price loses lossAmount, snapped and clamped to the symbol grid.
func QuantityFromLoss(lossAmount, price, stopLossRatio float64, rule rules.SymbolRule) (float64, error) {
	if !positive(lossAmount, price, stopLossRatio) {
		return 0, errors.Wrapf(ErrInvalidInput, "loss %.4f, price %.4f and stop ratio %.4f must be finite and > 0", lossAmount, price, stopLossRatio)
	}
	raw := lossAmount / (price * stopLossRatio / 100)
	return rules.AdjustQuantity(raw, rule), nil
}

// positive rejects NaN and ±Inf along with non-positive values.
func positive(vs ...float64) bool {
	for _, v := range vs {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type exposure struct {
	qty   float64
	price float64
}

type stop struct {
	price float64
	qty   float64 // +Inf for closePosition
}

// PnlRiskCapital projects the P&L of the symbol's exposure if every
// protective stop triggers. Stops are matched greedily against entries in
// order; exposure no stop covers contributes nothing.
func PnlRiskCapital(symbol string, positions []*state.Position, orders []*state.OpenOrder) float64 {
	return sidePnl(symbol, true, positions, orders) + sidePnl(symbol, false, positions, orders)
}

func sidePnl(symbol string, long bool, positions []*state.Position, orders []*state.OpenOrder) float64 {
	var entries []exposure
	for _, p := range positions {
		if p.Symbol != symbol || p.Amount == 0 || p.Long() != long {
			continue
		}
		entries = append(entries, exposure{qty: p.Qty(), price: p.EntryPrice})
	}
	var stops []stop
	for _, o := range orders {
		if o.Symbol != symbol {
			continue
		}
		if !o.IsClose() {
			if o.OpensLong() == long {
				if price := entryPrice(o); price > 0 && o.Remaining() > 0 {
					entries = append(entries, exposure{qty: o.Remaining(), price: price})
				}
			}
			continue
		}
		if !isStop(o.Type) || o.ClosesLong() != long || o.StopPrice <= 0 {
			continue
		}
		s := stop{price: o.StopPrice, qty: o.Remaining()}
		if o.ClosePosition {
			s.qty = math.Inf(1)
		}
		if s.qty > 0 {
			stops = append(stops, s)
		}
	}
	if len(entries) == 0 || len(stops) == 0 {
		return 0
	}

	// closest to trigger first
	sort.SliceStable(stops, func(i, j int) bool {
		if long {
			return stops[i].price > stops[j].price
		}
		return stops[i].price < stops[j].price
	})

	var pnl float64
	i := 0
	for _, s := range stops {
		need := s.qty
		for need > qtyEpsilon && i < len(entries) {
			e := &entries[i]
			covered := math.Min(need, e.qty)
			if long {
				pnl += (s.price - e.price) * covered
			} else {
				pnl += (e.price - s.price) * covered
			}
			e.qty -= covered
			need -= covered
			if e.qty <= qtyEpsilon {
				i++
			}
		}
		if i >= len(entries) {
			break
		}
	}
	return pnl
}

func entryPrice(o *state.OpenOrder) float64 {
	switch {
	case o.Price > 0:
		return o.Price
	case o.StopPrice > 0:
		return o.StopPrice
	default:
		return o.ActivationPrice
	}
}

func isStop(t common.OrderType) bool {
	return t == common.OrderTypeStopMarket || t == common.OrderTypeStop
}

// Calculator derives the risk snapshot from the current local state.
type Calculator struct {
	now func() time.Time
}

// NewCalculator returns a calculator using the wall clock.
func NewCalculator() *Calculator { return &Calculator{now: time.Now} }

// Compute re-derives the snapshot for symbol. Validation problems are
// reported in Message with zero values, never as a panic.
func (c *Calculator) Compute(equity float64, factor int, symbol string, positions []*state.Position, orders []*state.OpenOrder) Snapshot {
	snap := Snapshot{Symbol: symbol, ComputedAt: c.now()}
	std, err := StandardRiskCapital(equity, factor)
	if err != nil {
		snap.Message = err.Error()
	}
	snap.Standard = std
	if symbol != "" {
		snap.Pnl = PnlRiskCapital(symbol, positions, orders)
	}
	snap.Total = TotalRiskCapital(snap.Standard, snap.Pnl)
	return snap
}
