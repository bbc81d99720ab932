package rules

import (
	"time"

	"github.com/pkg/errors"
)

// Source names the tier a rule was resolved from.
type Source string

const (
	SourceExchange    Source = "exchange"
	SourceStale       Source = "exchange_stale"
	SourceSymbolTable Source = "symbol_table"
	SourcePrefixTable Source = "prefix_table"
	SourcePriceBucket Source = "price_bucket"
	SourceGeneric     Source = "generic"
)

// DefaultMaxLeverage applies when no table knows the symbol.
const DefaultMaxLeverage = 20

// SymbolRule is the trading grid of one instrument.
type SymbolRule struct {
	Symbol      string    `json:"symbol"`
	MinQty      float64   `json:"min_qty"`
	MaxQty      float64   `json:"max_qty"`
	StepSize    float64   `json:"step_size"`
	TickSize    float64   `json:"tick_size"`
	MaxLeverage int       `json:"max_leverage"`
	FetchedAt   time.Time `json:"fetched_at"`
	Source      Source    `json:"source"`
}

// Validate checks stepSize>0, tickSize>0 and minQty<=maxQty.
func (r SymbolRule) Validate() error {
	if r.StepSize <= 0 || r.TickSize <= 0 {
		return errors.Errorf("rule %s: step %g and tick %g must be positive", r.Symbol, r.StepSize, r.TickSize)
	}
	if r.MaxQty > 0 && r.MinQty > r.MaxQty {
		return errors.Errorf("rule %s: min qty %g above max qty %g", r.Symbol, r.MinQty, r.MaxQty)
	}
	return nil
}

// Fallback reports whether the rule came from a static table rather than the exchange.
func (r SymbolRule) Fallback() bool {
	return r.Source != SourceExchange && r.Source != SourceStale
}
