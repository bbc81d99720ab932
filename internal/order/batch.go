package order

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"futures-terminal/pkg/exchanges/common"
)

// BatchGateway is what batch operations need from the data source.
type BatchGateway interface {
	common.Gateway
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

// BatchItem is the outcome of one call in a batch.
type BatchItem struct {
	Key     string `json:"key"`
	OrderID int64  `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the item succeeded.
func (i BatchItem) OK() bool { return i.Error == "" }

// BatchResult aggregates a batch; one failure never stops the rest.
type BatchResult struct {
	Operation string      `json:"operation"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

func (r *BatchResult) record(key string, orderID int64, err error) {
	item := BatchItem{Key: key, OrderID: orderID}
	if err != nil {
		item.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Items = append(r.Items, item)
}

// Record adds an item prepared outside the batch, e.g. a ticket that failed
// to build.
func (r *BatchResult) Record(key string, orderID int64, err error) { r.record(key, orderID, err) }

// OrderRef names an order to cancel.
type OrderRef struct {
	Symbol  string
	OrderID int64
}

// Batcher runs batch operations sequentially with a pause between calls.
type Batcher struct {
	gw    BatchGateway
	delay time.Duration
	log   *zap.Logger
}

// NewBatcher creates a batcher pacing calls delay apart.
func NewBatcher(gw BatchGateway, delay time.Duration, log *zap.Logger) *Batcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Batcher{gw: gw, delay: delay, log: log.Named("batch")}
}

func (b *Batcher) limiter() *rate.Limiter {
	if b.delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(b.delay), 1)
}

// run calls fn for each of n items. Once ctx ends, the remaining items are
// recorded as failed with the context error.
func (b *Batcher) run(ctx context.Context, op string, n int, key func(int) string, fn func(int) (int64, error)) BatchResult {
	res := BatchResult{Operation: op}
	lim := b.limiter()
	for i := 0; i < n; i++ {
		if err := lim.Wait(ctx); err != nil {
			for ; i < n; i++ {
				res.record(key(i), 0, ctx.Err())
			}
			break
		}
		id, err := fn(i)
		if err != nil {
			b.log.Warn("batch item failed", zap.String("op", op), zap.String("key", key(i)), zap.Error(err))
		}
		res.record(key(i), id, err)
	}
	b.log.Info("batch done", zap.String("op", op), zap.Int("succeeded", res.Succeeded), zap.Int("failed", res.Failed))
	return res
}

// CancelOrders cancels each order individually.
func (b *Batcher) CancelOrders(ctx context.Context, refs []OrderRef) BatchResult {
	return b.run(ctx, "cancel_orders", len(refs),
		func(i int) string { return fmt.Sprintf("%s#%d", refs[i].Symbol, refs[i].OrderID) },
		func(i int) (int64, error) {
			return refs[i].OrderID, b.gw.CancelOrder(ctx, refs[i].Symbol, refs[i].OrderID)
		})
}

// CancelAllForSymbols clears every open order of each symbol.
func (b *Batcher) CancelAllForSymbols(ctx context.Context, symbols []string) BatchResult {
	return b.run(ctx, "cancel_all", len(symbols),
		func(i int) string { return symbols[i] },
		func(i int) (int64, error) { return 0, b.gw.CancelAllOpenOrders(ctx, symbols[i]) })
}

// CloseAll submits the prepared reduce-only market orders.
func (b *Batcher) CloseAll(ctx context.Context, reqs []*common.OrderRequest) BatchResult {
	return b.place(ctx, "close_all", reqs)
}

// PlaceStopLosses submits the prepared stop-market orders.
func (b *Batcher) PlaceStopLosses(ctx context.Context, reqs []*common.OrderRequest) BatchResult {
	return b.place(ctx, "place_stop_losses", reqs)
}

func (b *Batcher) place(ctx context.Context, op string, reqs []*common.OrderRequest) BatchResult {
	return b.run(ctx, op, len(reqs),
		func(i int) string { return fmt.Sprintf("%s:%s", reqs[i].Symbol, reqs[i].PositionSide) },
		func(i int) (int64, error) {
			r, err := b.gw.PlaceOrder(ctx, *reqs[i])
			return r.OrderID, err
		})
}
