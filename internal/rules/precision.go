package rules

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// AdjustQuantity floors value to the step grid, lifts it by one step when it
// fell under minQty and the next step still fits, then clamps to
// [minQty, maxQty]. A non-positive step or a non-finite value returns
// value unchanged.
func AdjustQuantity(value float64, rule SymbolRule) float64 {
	if !(rule.StepSize > 0) || !finite(value, rule.StepSize, rule.MinQty, rule.MaxQty) {
		return value
	}
	step := decimal.NewFromFloat(rule.StepSize)
	minQty := decimal.NewFromFloat(rule.MinQty)
	maxQty := decimal.NewFromFloat(rule.MaxQty)
	bounded := rule.MaxQty > 0

	qty := snap(decimal.NewFromFloat(value), step)
	if qty.LessThan(minQty) && (!bounded || qty.Add(step).LessThanOrEqual(maxQty)) {
		qty = qty.Add(step)
	}
	if qty.LessThan(minQty) {
		qty = minQty
	}
	if bounded && qty.GreaterThan(maxQty) {
		qty = maxQty
	}
	return qty.Round(Decimals(rule.StepSize)).InexactFloat64()
}

// AdjustPrice floors value to the tick grid and rounds to the decimals the
// tick implies (tick 0.001 gives 3 decimals). Non-finite values pass
// through unchanged.
func AdjustPrice(value float64, rule SymbolRule) float64 {
	if !(rule.TickSize > 0) || !finite(value, rule.TickSize) {
		return value
	}
	tick := decimal.NewFromFloat(rule.TickSize)
	return snap(decimal.NewFromFloat(value), tick).Round(Decimals(rule.TickSize)).InexactFloat64()
}

// Decimals returns the number of fractional digits of a grid size.
func Decimals(size float64) int32 {
	if !finite(size) {
		return 0
	}
	exp := decimal.NewFromFloat(size).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// FormatQuantity renders an adjusted quantity with the step's decimals.
func FormatQuantity(value float64, rule SymbolRule) string {
	if !finite(value) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return decimal.NewFromFloat(value).StringFixed(Decimals(rule.StepSize))
}

// FormatPrice renders an adjusted price with the tick's decimals.
func FormatPrice(value float64, rule SymbolRule) string {
	if !finite(value) {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return decimal.NewFromFloat(value).StringFixed(Decimals(rule.TickSize))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func snap(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Floor().Mul(step)
}
