package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// PriceBook holds the latest mark/last price per symbol. Writers are the
// engine's REST poller or the mark price stream; readers are anywhere.
type PriceBook struct {
	shards [numShards]*priceShard
	now    func() time.Time
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

// Quote is one cached price.
type Quote struct {
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPriceBook creates an empty book.
func NewPriceBook() *PriceBook {
	b := &PriceBook{now: time.Now}
	for i := 0; i < numShards; i++ {
		b.shards[i] = &priceShard{items: make(map[string]Quote)}
	}
	return b
}

func (b *PriceBook) shard(symbol string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return b.shards[h.Sum32()%numShards]
}

// Set stores a price. Non-positive prices are ignored.
func (b *PriceBook) Set(symbol string, price float64, source string) {
	if price <= 0 {
		return
	}
	s := b.shard(symbol)
	s.mu.Lock()
	s.items[symbol] = Quote{Price: price, Source: source, UpdatedAt: b.now()}
	s.mu.Unlock()
}

// SetAll stores a batch from one source.
func (b *PriceBook) SetAll(prices map[string]float64, source string) {
	for sym, p := range prices {
		b.Set(sym, p, source)
	}
}

// Get retrieves a price for a symbol.
func (b *PriceBook) Get(symbol string) (float64, bool) {
	q, ok := b.Quote(symbol)
	return q.Price, ok
}

// Quote returns the full cached entry.
func (b *PriceBook) Quote(symbol string) (Quote, bool) {
	s := b.shard(symbol)
	s.mu.RLock()
	q, ok := s.items[symbol]
	s.mu.RUnlock()
	return q, ok
}

// GetWithAge retrieves price and its age.
func (b *PriceBook) GetWithAge(symbol string) (float64, time.Duration, bool) {
	q, ok := b.Quote(symbol)
	if !ok {
		return 0, 0, false
	}
	return q.Price, b.now().Sub(q.UpdatedAt), true
}

// Len returns total items across all shards.
func (b *PriceBook) Len() int {
	total := 0
	for _, s := range b.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge.
func (b *PriceBook) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := b.now().Add(-maxAge)
	for _, s := range b.shards {
		s.mu.Lock()
		for sym, q := range s.items {
			if q.UpdatedAt.Before(cutoff) {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Reset drops every entry; used when the active account changes.
func (b *PriceBook) Reset() {
	for _, s := range b.shards {
		s.mu.Lock()
		s.items = make(map[string]Quote)
		s.mu.Unlock()
	}
}

// Snapshot returns all cached prices.
func (b *PriceBook) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, s := range b.shards {
		s.mu.RLock()
		for sym, q := range s.items {
			out[sym] = q.Price
		}
		s.mu.RUnlock()
	}
	return out
}
