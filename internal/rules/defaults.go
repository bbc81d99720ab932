package rules

import (
	"sort"
	"strings"
)

type grid struct {
	minQty, maxQty, step, tick float64
	maxLeverage                int
}

func (g grid) rule(symbol string, src Source) SymbolRule {
	lev := g.maxLeverage
	if lev == 0 {
		lev = DefaultMaxLeverage
	}
	return SymbolRule{
		Symbol:      symbol,
		MinQty:      g.minQty,
		MaxQty:      g.maxQty,
		StepSize:    g.step,
		TickSize:    g.tick,
		MaxLeverage: lev,
		Source:      src,
	}
}

// Exact per-symbol defaults for the most traded USDT-M contracts.
var symbolTable = map[string]grid{
	"BTCUSDT":      {0.001, 1000, 0.001, 0.1, 125},
	"ETHUSDT":      {0.001, 10000, 0.001, 0.01, 100},
	"BNBUSDT":      {0.01, 10000, 0.01, 0.01, 75},
	"SOLUSDT":      {1, 100000, 1, 0.01, 75},
	"XRPUSDT":      {0.1, 10000000, 0.1, 0.0001, 75},
	"DOGEUSDT":     {1, 50000000, 1, 0.00001, 75},
	"ADAUSDT":      {1, 10000000, 1, 0.0001, 75},
	"LTCUSDT":      {0.001, 100000, 0.001, 0.01, 75},
	"LINKUSDT":     {0.01, 1000000, 0.01, 0.001, 75},
	"AVAXUSDT":     {1, 1000000, 1, 0.001, 75},
	"1000PEPEUSDT": {1, 800000000, 1, 0.0000001, 50},
	"1000SHIBUSDT": {1, 800000000, 1, 0.000001, 50},
}

type prefixGrid struct {
	prefix string
	grid
}

// Coarse precision by symbol prefix, longest prefix wins.
var prefixTable = func() []prefixGrid {
	t := []prefixGrid{
		{"BTC", grid{0.001, 1000, 0.001, 0.1, 125}},
		{"ETH", grid{0.001, 10000, 0.001, 0.01, 100}},
		{"BNB", grid{0.01, 10000, 0.01, 0.01, 50}},
		{"SOL", grid{1, 100000, 1, 0.01, 50}},
		{"1000", grid{1, 800000000, 1, 0.0000001, 25}},
	}
	sort.SliceStable(t, func(i, j int) bool { return len(t[i].prefix) > len(t[j].prefix) })
	return t
}()

type bucket struct {
	minPrice float64
	grid
}

// Price-bucketed precision for symbols no table knows, highest bucket first.
var priceBuckets = []bucket{
	{1000, grid{0.001, 1000, 0.001, 0.1, 0}},
	{100, grid{0.01, 100000, 0.01, 0.01, 0}},
	{1, grid{0.1, 1000000, 0.1, 0.001, 0}},
	{0.01, grid{1, 10000000, 1, 0.00001, 0}},
	{0, grid{1, 1000000000, 1, 0.0000001, 0}},
}

var genericGrid = grid{0.001, 100000, 0.001, 0.01, 0}

// Fallback resolves a rule without the exchange. lastPrice may be zero when
// no price is known.
func Fallback(symbol string, lastPrice float64) SymbolRule {
	symbol = strings.ToUpper(symbol)
	if g, ok := symbolTable[symbol]; ok {
		return g.rule(symbol, SourceSymbolTable)
	}
	for _, p := range prefixTable {
		if strings.HasPrefix(symbol, p.prefix) {
			return p.rule(symbol, SourcePrefixTable)
		}
	}
	if lastPrice > 0 {
		for _, b := range priceBuckets {
			if lastPrice >= b.minPrice {
				return b.rule(symbol, SourcePriceBucket)
			}
		}
	}
	return genericGrid.rule(symbol, SourceGeneric)
}

// maxLeverage is not part of exchangeInfo; it comes from the tables.
func maxLeverage(symbol string) int {
	if g, ok := symbolTable[symbol]; ok {
		return g.maxLeverage
	}
	for _, p := range prefixTable {
		if strings.HasPrefix(symbol, p.prefix) {
			return p.maxLeverage
		}
	}
	return DefaultMaxLeverage
}

// DefaultSymbols lists the symbols with exact defaults, sorted.
func DefaultSymbols() []string {
	out := make([]string, 0, len(symbolTable))
	for s := range symbolTable {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
