package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures-terminal/internal/events"
	"futures-terminal/internal/metrics"
	"futures-terminal/internal/order"
	"futures-terminal/internal/risk"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/config"
	"futures-terminal/pkg/exchanges/common"
)

// SelectAccount switches the engine to cred. A credential without keys runs
// on the mock source; a non-positive risk factor is rejected.
func (e *Engine) SelectAccount(ctx context.Context, cred config.AccountCredential) error {
	if err := cred.Validate(); err != nil && !errors.Is(err, config.ErrNoCredentials) {
		return err
	}
	return e.do(ctx, func() { e.openSession(cred) })
}

// ClearAccount stops the timers and drops all account state.
func (e *Engine) ClearAccount(ctx context.Context) error {
	return e.do(ctx, e.closeSession)
}

// SetActiveSymbol changes the symbol risk is derived for.
func (e *Engine) SetActiveSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return errors.New("engine: symbol is empty")
	}
	return e.do(ctx, func() {
		e.activeSymbol = symbol
		e.recomputeRisk()
	})
}

// SelectPosition marks a position by key; it reports whether it exists.
func (e *Engine) SelectPosition(ctx context.Context, key string, selected bool) (bool, error) {
	var ok bool
	err := e.do(ctx, func() { ok = e.store.SelectPosition(key, selected) })
	return ok, err
}

// SelectOrder marks an order by ID; it reports whether it exists.
func (e *Engine) SelectOrder(ctx context.Context, orderID int64, selected bool) (bool, error) {
	var ok bool
	err := e.do(ctx, func() { ok = e.store.SelectOrder(orderID, selected) })
	return ok, err
}

// Refresh requests an immediate price and account refresh.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.do(ctx, func() {
		e.refreshPrices()
		e.refreshAccount()
	})
}

// View copies the current derived state.
func (e *Engine) View(ctx context.Context) (View, error) {
	var v View
	err := e.do(ctx, func() { v = e.snapshotView() })
	return v, err
}

// Risk returns the last derived risk snapshot.
func (e *Engine) Risk(ctx context.Context) (risk.Snapshot, error) {
	var snap risk.Snapshot
	err := e.do(ctx, func() { snap = e.riskSnap })
	return snap, err
}

// Status is safe to call from anywhere without going through the loop.
func (e *Engine) Status() Status {
	st := *e.status.Load()
	st.Running = e.running.Load()
	return st
}

// QuantityFromLoss sizes an order. A zero price uses the last known price.
func (e *Engine) QuantityFromLoss(ctx context.Context, symbol string, loss, price, stopLossRatio float64) (float64, error) {
	s, err := e.current(ctx)
	if err != nil {
		return 0, err
	}
	symbol = strings.ToUpper(symbol)
	if price <= 0 {
		price, _ = e.prices.Get(symbol)
	}
	if stopLossRatio <= 0 {
		stopLossRatio = e.defaults.StopLossRatio
	}
	return risk.QuantityFromLoss(loss, price, stopLossRatio, s.rules.Rule(ctx, symbol))
}

// PlaceOrder builds and submits one order. Conditional types are tracked by
// the monitor from submission on.
func (e *Engine) PlaceOrder(ctx context.Context, p order.Params) (common.OrderResult, error) {
	return e.place(ctx, p, "")
}

// PlaceConditional submits a stop, take-profit or trailing order with a
// description shown in the monitor views.
func (e *Engine) PlaceConditional(ctx context.Context, p order.Params, desc string) (common.OrderResult, error) {
	if !p.Type.IsConditional() {
		return common.OrderResult{}, &order.ValidationError{Field: "type", Reason: "not a conditional order type: " + string(p.Type)}
	}
	return e.place(ctx, p, desc)
}

func (e *Engine) place(ctx context.Context, p order.Params, desc string) (common.OrderResult, error) {
	s, err := e.current(ctx)
	if err != nil {
		return common.OrderResult{}, err
	}
	req, err := s.builder.Build(ctx, p)
	if err != nil {
		e.reject(s, p.Symbol, err)
		return common.OrderResult{}, err
	}

	var recordID string
	if req.Type.IsConditional() {
		if err := e.do(ctx, func() {
			if e.sess == s {
				if r := e.monitor.Track(*req, desc); r != nil {
					recordID = r.ID
				}
			}
		}); err != nil {
			return common.OrderResult{}, err
		}
	}

	timer := metrics.NewTimer(e.metrics.OrderLatency)
	ack, err := s.src.PlaceOrder(ctx, *req)
	timer.Stop()
	if err != nil {
		e.reject(s, req.Symbol, err)
		if recordID != "" {
			_ = e.post(s.ctx, func() { e.monitor.Discard(recordID) })
		}
		return common.OrderResult{}, err
	}
	e.metrics.OrderPlaced()

	_ = e.post(s.ctx, func() {
		if e.sess != s {
			return
		}
		if recordID != "" {
			e.monitor.Confirm(recordID, ack.OrderID)
		}
		e.bus.Publish(events.EventOrderPlaced, events.OrderPlaced{
			Account: s.cred.Name, Symbol: req.Symbol, OrderID: ack.OrderID, ClientID: ack.ClientID, Type: string(req.Type),
		})
		e.refreshAccount()
	})
	return ack, nil
}

func (e *Engine) reject(s *session, symbol string, err error) {
	e.metrics.OrderRejected()
	e.log.Warn("order rejected", zap.String("account", s.cred.Name), zap.String("symbol", symbol), zap.Error(err))
	e.bus.Publish(events.EventOrderRejected, events.OrderRejected{Account: s.cred.Name, Symbol: symbol, Reason: err.Error()})
}

// CancelOrder cancels one order.
func (e *Engine) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	s, err := e.current(ctx)
	if err != nil {
		return err
	}
	timer := metrics.NewTimer(e.metrics.OrderLatency)
	err = s.src.CancelOrder(ctx, symbol, orderID)
	timer.Stop()
	if err != nil {
		return errors.Wrapf(err, "cancel %s #%d", symbol, orderID)
	}
	e.afterCommand(s)
	return nil
}

// CancelAll cancels the selected orders one by one, or with selectedOnly
// false every open order symbol by symbol.
func (e *Engine) CancelAll(ctx context.Context, selectedOnly bool) (order.BatchResult, error) {
	s, v, err := e.sessionView(ctx)
	if err != nil {
		return order.BatchResult{}, err
	}
	var res order.BatchResult
	if selectedOnly {
		var refs []order.OrderRef
		for _, o := range v.Orders {
			if o.Selected {
				refs = append(refs, order.OrderRef{Symbol: o.Symbol, OrderID: o.OrderID})
			}
		}
		res = s.batcher.CancelOrders(ctx, refs)
	} else {
		res = s.batcher.CancelAllForSymbols(ctx, orderSymbols(v.Orders))
	}
	e.afterBatch(s, res)
	return res, nil
}

// CloseAll flattens positions with reduce-only market orders.
func (e *Engine) CloseAll(ctx context.Context, selectedOnly bool) (order.BatchResult, error) {
	s, v, err := e.sessionView(ctx)
	if err != nil {
		return order.BatchResult{}, err
	}
	var reqs []*common.OrderRequest
	var failed []buildFailure
	for _, p := range pick(v.Positions, selectedOnly) {
		req, err := s.builder.ClosePosition(ctx, p.Symbol, p.Amount, p.PositionSide)
		if err != nil {
			failed = append(failed, buildFailure{p.Key(), err})
			continue
		}
		reqs = append(reqs, req)
	}
	res := s.batcher.CloseAll(ctx, reqs)
	for _, f := range failed {
		res.Record(f.key, 0, f.err)
	}
	e.afterBatch(s, res)
	return res, nil
}

// PlaceStopLosses puts a reduce-only stop stopLossRatio percent from entry
// on every position that has no protective stop yet. A zero ratio uses the
// trading default.
func (e *Engine) PlaceStopLosses(ctx context.Context, stopLossRatio float64, selectedOnly bool) (order.BatchResult, error) {
	if stopLossRatio <= 0 {
		stopLossRatio = e.defaults.StopLossRatio
	}
	if stopLossRatio >= 100 {
		return order.BatchResult{}, &order.ValidationError{Field: "stopLossRatio", Reason: "must be below 100"}
	}
	s, v, err := e.sessionView(ctx)
	if err != nil {
		return order.BatchResult{}, err
	}
	var reqs []*common.OrderRequest
	var failed []buildFailure
	for _, p := range pick(v.Positions, selectedOnly) {
		if hasStop(p, v.Orders) {
			continue
		}
		stop := p.EntryPrice * (1 - stopLossRatio/100)
		if !p.Long() {
			stop = p.EntryPrice * (1 + stopLossRatio/100)
		}
		req, err := s.builder.StopLoss(ctx, p.Symbol, p.Amount, stop, p.PositionSide)
		if err != nil {
			failed = append(failed, buildFailure{p.Key(), err})
			continue
		}
		reqs = append(reqs, req)
	}
	res := s.batcher.PlaceStopLosses(ctx, reqs)
	for _, f := range failed {
		res.Record(f.key, 0, f.err)
	}
	e.afterBatch(s, res)
	return res, nil
}

// SetLeverage changes a symbol's leverage.
func (e *Engine) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	s, err := e.current(ctx)
	if err != nil {
		return err
	}
	if maxLev := s.rules.Rule(ctx, symbol).MaxLeverage; leverage < 1 || (maxLev > 0 && leverage > maxLev) {
		return &order.ValidationError{Field: "leverage", Reason: "out of range for " + symbol}
	}
	if err := s.src.SetLeverage(ctx, symbol, leverage); err != nil {
		return err
	}
	e.afterCommand(s)
	return nil
}

// SetMarginType switches a symbol between isolated and cross margin.
func (e *Engine) SetMarginType(ctx context.Context, symbol string, mt common.MarginType) error {
	s, err := e.current(ctx)
	if err != nil {
		return err
	}
	mt = common.MarginType(strings.ToUpper(string(mt)))
	if mt != common.MarginIsolated && mt != common.MarginCrossed {
		return &order.ValidationError{Field: "marginType", Reason: "must be ISOLATED or CROSSED"}
	}
	if err := s.src.SetMarginType(ctx, symbol, mt); err != nil {
		return err
	}
	e.afterCommand(s)
	return nil
}

// SetPositionMode switches hedge mode and updates the builder's cached mode.
func (e *Engine) SetPositionMode(ctx context.Context, dual bool) error {
	s, err := e.current(ctx)
	if err != nil {
		return err
	}
	if err := s.src.SetPositionMode(ctx, dual); err != nil {
		return err
	}
	s.builder.SetHedgeMode(dual)
	e.afterCommand(s)
	return nil
}

// ModifyPositionMargin adds or removes isolated margin.
func (e *Engine) ModifyPositionMargin(ctx context.Context, symbol string, side common.PositionSide, amount float64, add bool) error {
	if amount <= 0 {
		return &order.ValidationError{Field: "amount", Reason: "must be > 0"}
	}
	s, err := e.current(ctx)
	if err != nil {
		return err
	}
	if side == "" {
		side = common.PositionSideBoth
	}
	if err := s.src.ModifyPositionMargin(ctx, symbol, side, amount, add); err != nil {
		return err
	}
	e.afterCommand(s)
	return nil
}

func (e *Engine) sessionView(ctx context.Context) (*session, View, error) {
	var s *session
	var v View
	if err := e.do(ctx, func() {
		s = e.sess
		v = e.snapshotView()
	}); err != nil {
		return nil, View{}, err
	}
	if s == nil {
		return nil, View{}, ErrNoAccount
	}
	return s, v, nil
}

func (e *Engine) afterCommand(s *session) {
	_ = e.post(s.ctx, func() {
		if e.sess == s {
			e.refreshAccount()
		}
	})
}

func (e *Engine) afterBatch(s *session, res order.BatchResult) {
	s.journal.RecordBatch(res)
	_ = e.post(s.ctx, func() {
		if e.sess != s {
			return
		}
		e.bus.Publish(events.EventBatchCompleted, res)
		e.refreshAccount()
	})
}

type buildFailure struct {
	key string
	err error
}

func pick(ps []state.Position, selectedOnly bool) []state.Position {
	if !selectedOnly {
		return ps
	}
	var out []state.Position
	for _, p := range ps {
		if p.Selected {
			out = append(out, p)
		}
	}
	return out
}

func hasStop(p state.Position, orders []state.OpenOrder) bool {
	for i := range orders {
		o := &orders[i]
		if o.Symbol != p.Symbol || !o.IsClose() || o.ClosesLong() != p.Long() {
			continue
		}
		switch o.Type {
		case common.OrderTypeStopMarket, common.OrderTypeStop, common.OrderTypeTrailingStop:
			return true
		}
	}
	return false
}

func orderSymbols(orders []state.OpenOrder) []string {
	set := map[string]struct{}{}
	for _, o := range orders {
		set[o.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
