package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var btc = SymbolRule{Symbol: "BTCUSDT", MinQty: 0.001, MaxQty: 1000, StepSize: 0.001, TickSize: 0.1}

func TestAdjustQuantity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		value float64
		rule  SymbolRule
		want  float64
	}{
		{"floors to step", 0.2222222, btc, 0.222},
		{"below min lifts one step", 0.0004, btc, 0.001},
		{"zero lifts to min", 0, btc, 0.001},
		{"above max clamps", 5000, btc, 1000},
		{"integer step", 12.9, SymbolRule{MinQty: 1, MaxQty: 100, StepSize: 1, TickSize: 0.01}, 12},
		{"coarse min", 0.5, SymbolRule{MinQty: 2, MaxQty: 100, StepSize: 1, TickSize: 0.01}, 2},
		{"non-positive step unchanged", 0.123456, SymbolRule{StepSize: 0}, 0.123456},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, AdjustQuantity(tt.value, tt.rule), 1e-12)
		})
	}
}

func TestAdjustQuantityIdempotentAndOnGrid(t *testing.T) {
	t.Parallel()
	ruleSet := []SymbolRule{
		btc,
		{MinQty: 0.01, MaxQty: 10000, StepSize: 0.01, TickSize: 0.01},
		{MinQty: 1, MaxQty: 800000000, StepSize: 1, TickSize: 0.0000001},
		{MinQty: 0.1, MaxQty: 10000000, StepSize: 0.1, TickSize: 0.0001},
	}
	values := []float64{0, 0.0001, 0.0015, 0.2222, 0.99999, 1, 1.05, 3.14159, 77.7777, 12345.6789, 1e9}
	for _, r := range ruleSet {
		for _, v := range values {
			once := AdjustQuantity(v, r)
			assert.Equal(t, once, AdjustQuantity(once, r), "idempotent for %v step %v", v, r.StepSize)

			steps := once / r.StepSize
			assert.InDelta(t, math.Round(steps), steps, 1e-6, "on grid for %v step %v", v, r.StepSize)
			assert.GreaterOrEqual(t, once, r.MinQty)
			assert.LessOrEqual(t, once, r.MaxQty)
		}
	}
}

func TestAdjustPrice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		value, tick, want float64
	}{
		{45000.07, 0.1, 45000.0},
		{2500.129, 0.01, 2500.12},
		{0.123456, 0.001, 0.123},
		{0.00001234567, 0.0000001, 0.0000123},
		{101, 0, 101},
	}
	for _, tt := range tests {
		r := SymbolRule{TickSize: tt.tick}
		got := AdjustPrice(tt.value, r)
		assert.InDelta(t, tt.want, got, 1e-12, "value %v tick %v", tt.value, tt.tick)
		assert.Equal(t, got, AdjustPrice(got, r))
	}
}

func TestAdjustNonFinitePassesThrough(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		value float64
	}{
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotPanics(t, func() {
				q := AdjustQuantity(tt.value, btc)
				p := AdjustPrice(tt.value, btc)
				if math.IsNaN(tt.value) {
					assert.True(t, math.IsNaN(q))
					assert.True(t, math.IsNaN(p))
					return
				}
				assert.Equal(t, tt.value, q)
				assert.Equal(t, tt.value, p)
				assert.NotEmpty(t, FormatQuantity(tt.value, btc))
				assert.NotEmpty(t, FormatPrice(tt.value, btc))
			})
		})
	}
	assert.NotPanics(t, func() {
		assert.Equal(t, 5.0, AdjustQuantity(5, SymbolRule{StepSize: math.NaN()}))
	})
}

func TestDecimals(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int32(3), Decimals(0.001))
	assert.Equal(t, int32(1), Decimals(0.1))
	assert.Equal(t, int32(0), Decimals(1))
	assert.Equal(t, int32(7), Decimals(0.0000001))
	assert.Equal(t, "0.220", FormatQuantity(0.22, btc))
	assert.Equal(t, "45000.0", FormatPrice(45000, btc))
}
