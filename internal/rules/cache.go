package rules

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures-terminal/pkg/exchanges/binance/futures_usdt"
)

const (
	DefaultPayloadTTL = 30 * time.Minute
	DefaultRuleTTL    = time.Hour
	// minimum gap between instrument list fetches after a failure
	retryBackoff = 30 * time.Second
)

// Fetcher loads the instrument list from the exchange.
type Fetcher interface {
	SymbolRules(ctx context.Context) ([]SymbolRule, error)
}

// PriceLookup returns the last known price of a symbol.
type PriceLookup func(symbol string) (float64, bool)

// Cache resolves per-symbol rules with time-boxed caching and static
// fallback tiers. It is safe for concurrent use.
type Cache struct {
	fetcher    Fetcher
	prices     PriceLookup
	payloadTTL time.Duration
	ruleTTL    time.Duration
	now        func() time.Time
	log        *zap.Logger

	mu        sync.Mutex
	payload   map[string]SymbolRule
	payloadAt time.Time
	failedAt  time.Time
	rules     map[string]SymbolRule
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrices feeds the price-bucket fallback tier.
func WithPrices(p PriceLookup) Option { return func(c *Cache) { c.prices = p } }

// WithTTL overrides the payload and rule TTLs.
func WithTTL(payload, rule time.Duration) Option {
	return func(c *Cache) {
		if payload > 0 {
			c.payloadTTL = payload
		}
		if rule > 0 {
			c.ruleTTL = rule
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// NewCache builds a rule cache. fetcher may be nil for table-only lookups.
func NewCache(fetcher Fetcher, log *zap.Logger, opts ...Option) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		fetcher:    fetcher,
		payloadTTL: DefaultPayloadTTL,
		ruleTTL:    DefaultRuleTTL,
		now:        time.Now,
		log:        log.Named("rules"),
		rules:      make(map[string]SymbolRule),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Rule returns the rule for symbol. It never fails: when the exchange is
// unavailable the stale payload or a fallback tier answers.
func (c *Cache) Rule(ctx context.Context, symbol string) SymbolRule {
	symbol = strings.ToUpper(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if r, ok := c.rules[symbol]; ok && now.Sub(r.FetchedAt) < c.ruleTTL && now.Sub(c.payloadAt) < c.payloadTTL {
		return r
	}

	c.refreshLocked(ctx, now, false)

	if r, ok := c.payload[symbol]; ok {
		r.FetchedAt = now
		if now.Sub(c.payloadAt) >= c.payloadTTL {
			// stale rules are re-resolved on every lookup so a recovered
			// fetch replaces them once the backoff ends
			r.Source = SourceStale
			return r
		}
		c.rules[symbol] = r
		return r
	}

	var last float64
	if c.prices != nil {
		last, _ = c.prices(symbol)
	}
	r := Fallback(symbol, last)
	r.FetchedAt = now
	c.log.Debug("fallback rule", zap.String("symbol", symbol), zap.String("source", string(r.Source)))
	return r
}

// Refresh forces an instrument list fetch.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, c.now(), true)
}

// Invalidate drops resolved rules so the next lookup re-resolves them.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.rules = make(map[string]SymbolRule)
	c.mu.Unlock()
}

// Symbols lists instruments from the last payload.
func (c *Cache) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.payload))
	for s := range c.payload {
		out = append(out, s)
	}
	return out
}

func (c *Cache) refreshLocked(ctx context.Context, now time.Time, force bool) error {
	if c.fetcher == nil {
		return nil
	}
	if !force {
		if c.payload != nil && now.Sub(c.payloadAt) < c.payloadTTL {
			return nil
		}
		if !c.failedAt.IsZero() && now.Sub(c.failedAt) < retryBackoff {
			return nil
		}
	}

	list, err := c.fetcher.SymbolRules(ctx)
	if err != nil {
		c.failedAt = now
		c.log.Warn("instrument list fetch failed", zap.Error(err), zap.Bool("stale_payload", c.payload != nil))
		return errors.Wrap(err, "fetch symbol rules")
	}

	payload := make(map[string]SymbolRule, len(list))
	for _, r := range list {
		if err := r.Validate(); err != nil {
			c.log.Debug("skip invalid rule", zap.Error(err))
			continue
		}
		r.Source = SourceExchange
		payload[strings.ToUpper(r.Symbol)] = r
	}
	c.payload = payload
	c.payloadAt = now
	c.failedAt = time.Time{}
	c.rules = make(map[string]SymbolRule)
	c.log.Debug("instrument list refreshed", zap.Int("symbols", len(payload)))
	return nil
}

// FromExchangeInfo turns exchangeInfo into rules, reading PRICE_FILTER and
// LOT_SIZE. Symbols not TRADING are skipped.
func FromExchangeInfo(info *futures_usdt.ExchangeInfo) []SymbolRule {
	if info == nil {
		return nil
	}
	out := make([]SymbolRule, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "" && s.Status != "TRADING" {
			continue
		}
		r := SymbolRule{Symbol: s.Symbol, MaxLeverage: maxLeverage(s.Symbol)}
		if pf, ok := s.Filter("PRICE_FILTER"); ok {
			r.TickSize = pf.Tick()
		}
		if lot, ok := s.Filter("LOT_SIZE"); ok {
			r.StepSize = lot.Step()
			r.MinQty = lot.Min()
			r.MaxQty = lot.Max()
		}
		out = append(out, r)
	}
	return out
}
