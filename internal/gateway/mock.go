package gateway

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures-terminal/internal/rules"
	"futures-terminal/internal/state"
	"futures-terminal/pkg/exchanges/common"
)

// ErrUnknownOrder is returned by the mock for cancels of missing orders.
var ErrUnknownOrder = errors.New("mock: unknown order")

var mockSeedPrices = map[string]float64{
	"BTCUSDT":      45000,
	"ETHUSDT":      2500,
	"BNBUSDT":      600,
	"SOLUSDT":      150,
	"XRPUSDT":      0.6,
	"DOGEUSDT":     0.15,
	"ADAUSDT":      0.45,
	"1000PEPEUSDT": 0.012,
}

const mockHistory = 500

// MockConfig tunes the synthetic account.
type MockConfig struct {
	Balance  float64 // starting wallet balance
	Step     float64 // max relative move per price tick, e.g. 0.001
	Leverage int
	Seed     int64 // 0 seeds from the clock
}

// MockSource is an in-memory futures account driven by a random walk. Market
// orders fill at the current price; resting and conditional orders fill when
// a price tick crosses them.
type MockSource struct {
	cfg MockConfig
	log *zap.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[string]float64
	wallet     float64
	hedge      bool
	leverage   map[string]int
	marginType map[string]common.MarginType
	positions  map[string]*state.Position
	orders     map[int64]*state.OpenOrder
	history    []state.OpenOrder
	nextID     int64
}

// NewMockSource builds the mock account.
func NewMockSource(cfg MockConfig, log *zap.Logger) *MockSource {
	if cfg.Balance <= 0 {
		cfg.Balance = 10000
	}
	if cfg.Step <= 0 {
		cfg.Step = 0.001
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 10
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if log == nil {
		log = zap.NewNop()
	}
	prices := make(map[string]float64, len(mockSeedPrices))
	for k, v := range mockSeedPrices {
		prices[k] = v
	}
	return &MockSource{
		cfg:        cfg,
		log:        log.Named("mock"),
		rng:        rand.New(rand.NewSource(seed)),
		prices:     prices,
		wallet:     cfg.Balance,
		leverage:   make(map[string]int),
		marginType: make(map[string]common.MarginType),
		positions:  make(map[string]*state.Position),
		orders:     make(map[int64]*state.OpenOrder),
		nextID:     1000,
	}
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Mock() bool { return true }

// SetPrice pins a symbol price and fills whatever it crosses.
func (m *MockSource) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
	m.matchLocked(symbol)
}

// Price is the current mock price of symbol.
func (m *MockSource) Price(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	return p, ok
}

func (m *MockSource) Account(context.Context) (state.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unreal, used float64
	for _, p := range m.positions {
		m.markLocked(p)
		unreal += p.UnrealizedProfit
		used += p.Margin()
	}
	margin := m.wallet + unreal
	return state.Account{
		WalletBalance:    m.wallet,
		MarginBalance:    margin,
		UnrealizedProfit: unreal,
		AvailableBalance: math.Max(0, margin-used),
		UpdatedAt:        time.Now(),
	}, nil
}

func (m *MockSource) Positions(context.Context) ([]state.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.Position, 0, len(m.positions))
	for _, p := range m.positions {
		m.markLocked(p)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *MockSource) OpenOrders(_ context.Context, symbol string) ([]state.OpenOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.OpenOrder, 0, len(m.orders))
	for _, o := range m.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (m *MockSource) AllOrders(_ context.Context, symbol string, limit int) ([]state.OpenOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.OpenOrder
	for _, o := range m.history {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	for _, o := range m.orders {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockSource) PlaceOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.prices[req.Symbol]; !ok {
		m.prices[req.Symbol] = 100
	}
	if req.Qty <= 0 && !req.ClosePosition {
		return common.OrderResult{}, errors.Errorf("mock: quantity must be > 0 for %s", req.Symbol)
	}
	side := req.PositionSide
	if side == "" {
		side = common.PositionSideBoth
	}
	if m.hedge && side == common.PositionSideBoth {
		return common.OrderResult{}, errors.New("mock: positionSide LONG or SHORT required in hedge mode")
	}
	if !m.hedge && side != common.PositionSideBoth {
		return common.OrderResult{}, errors.New("mock: positionSide must be BOTH in one-way mode")
	}

	m.nextID++
	o := &state.OpenOrder{
		OrderID:         m.nextID,
		ClientID:        req.ClientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		OrigQty:         req.Qty,
		Price:           req.Price,
		StopPrice:       req.StopPrice,
		ActivationPrice: req.ActivationPrice,
		CallbackRate:    req.CallbackRate,
		Status:          common.StatusNew,
		ReduceOnly:      req.ReduceOnly,
		ClosePosition:   req.ClosePosition,
		PositionSide:    side,
		WorkingType:     req.WorkingType,
		UpdateTime:      time.Now().UnixMilli(),
	}
	if o.Type == common.OrderTypeTrailingStop && o.ActivationPrice <= 0 {
		o.ActivationPrice = m.prices[o.Symbol]
	}

	if o.Type == common.OrderTypeMarket {
		m.fillLocked(o, m.prices[o.Symbol])
		m.archiveLocked(*o)
		return common.OrderResult{OrderID: o.OrderID, ClientID: o.ClientID, Status: o.Status}, nil
	}
	m.orders[o.OrderID] = o
	m.matchLocked(o.Symbol)
	return common.OrderResult{OrderID: o.OrderID, ClientID: o.ClientID, Status: common.StatusNew}, nil
}

func (m *MockSource) CancelOrder(_ context.Context, symbol string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Symbol != symbol {
		return errors.Wrapf(ErrUnknownOrder, "%s #%d", symbol, orderID)
	}
	o.Status = common.StatusCanceled
	m.archiveLocked(*o)
	delete(m.orders, orderID)
	return nil
}

func (m *MockSource) CancelAllOpenOrders(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orders {
		if o.Symbol == symbol {
			o.Status = common.StatusCanceled
			m.archiveLocked(*o)
			delete(m.orders, id)
		}
	}
	return nil
}

func (m *MockSource) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 || leverage > 125 {
		return errors.Errorf("mock: leverage %d out of range", leverage)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverage[symbol] = leverage
	for _, p := range m.positions {
		if p.Symbol == symbol {
			p.Leverage = leverage
		}
	}
	return nil
}

func (m *MockSource) SetMarginType(_ context.Context, symbol string, mt common.MarginType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marginType[symbol] = mt
	return nil
}

func (m *MockSource) PositionMode(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hedge, nil
}

func (m *MockSource) SetPositionMode(_ context.Context, dual bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dual != m.hedge && (len(m.positions) > 0 || len(m.orders) > 0) {
		return errors.New("mock: position mode cannot change with open positions or orders")
	}
	m.hedge = dual
	return nil
}

func (m *MockSource) ModifyPositionMargin(_ context.Context, symbol string, side common.PositionSide, amount float64, add bool) error {
	if amount <= 0 {
		return errors.New("mock: margin amount must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[state.PositionKey(symbol, side)]
	if !ok || p.MarginType != string(common.MarginIsolated) {
		return errors.Errorf("mock: no isolated position %s", state.PositionKey(symbol, side))
	}
	if add {
		p.IsolatedMargin += amount
		m.wallet -= amount
		return nil
	}
	if amount > p.IsolatedMargin {
		return errors.Errorf("mock: cannot remove %.4f from isolated margin %.4f", amount, p.IsolatedMargin)
	}
	p.IsolatedMargin -= amount
	m.wallet += amount
	return nil
}

func (m *MockSource) SymbolRules(context.Context) ([]rules.SymbolRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]rules.SymbolRule, 0, len(m.prices))
	for sym, price := range m.prices {
		r := rules.Fallback(sym, price)
		r.Source = rules.SourceExchange
		r.FetchedAt = time.Now()
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// TickerPrices advances the random walk one step and returns the prices.
func (m *MockSource) TickerPrices(_ context.Context, symbols ...string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := symbols
	if len(want) == 0 {
		for sym := range m.prices {
			want = append(want, sym)
		}
	}
	out := make(map[string]float64, len(want))
	for _, sym := range want {
		price, ok := m.prices[sym]
		if !ok {
			continue
		}
		price *= 1 + (m.rng.Float64()*2-1)*m.cfg.Step
		m.prices[sym] = price
		m.matchLocked(sym)
		out[sym] = price
	}
	return out, nil
}

func (m *MockSource) ServerTime(context.Context) (int64, error) {
	return time.Now().UnixMilli(), nil
}

func (m *MockSource) markLocked(p *state.Position) {
	price := m.prices[p.Symbol]
	if price <= 0 {
		return
	}
	p.MarkPrice = price
	p.UnrealizedProfit = (price - p.EntryPrice) * p.Amount
}

// matchLocked fills resting orders of symbol that the current price reaches.
func (m *MockSource) matchLocked(symbol string) {
	price := m.prices[symbol]
	ids := make([]int64, 0)
	for id, o := range m.orders {
		if o.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		o := m.orders[id]
		if !m.triggeredLocked(o, price) {
			continue
		}
		m.fillLocked(o, price)
		m.archiveLocked(*o)
		delete(m.orders, id)
	}
}

func (m *MockSource) triggeredLocked(o *state.OpenOrder, price float64) bool {
	buy := o.Side == common.SideBuy
	switch o.Type {
	case common.OrderTypeLimit:
		return (buy && price <= o.Price) || (!buy && price >= o.Price)
	case common.OrderTypeStop, common.OrderTypeStopMarket:
		return (buy && price >= o.StopPrice) || (!buy && price <= o.StopPrice)
	case common.OrderTypeTakeProfit, common.OrderTypeTakeProfitMarket:
		return (buy && price <= o.StopPrice) || (!buy && price >= o.StopPrice)
	case common.OrderTypeTrailingStop:
		// the activation price doubles as the running extreme
		if buy {
			if price < o.ActivationPrice {
				o.ActivationPrice = price
			}
			return price >= o.ActivationPrice*(1+o.CallbackRate/100)
		}
		if price > o.ActivationPrice {
			o.ActivationPrice = price
		}
		return price <= o.ActivationPrice*(1-o.CallbackRate/100)
	}
	return false
}

// fillLocked applies o at price to the position book.
func (m *MockSource) fillLocked(o *state.OpenOrder, price float64) {
	key := state.PositionKey(o.Symbol, o.PositionSide)
	p := m.positions[key]
	delta := o.OrigQty
	if o.Side == common.SideSell {
		delta = -delta
	}

	if o.IsClose() {
		reduces := p != nil && ((p.Amount > 0 && o.Side == common.SideSell) || (p.Amount < 0 && o.Side == common.SideBuy))
		if !reduces {
			o.Status = common.StatusExpired
			return
		}
		if o.ClosePosition || math.Abs(delta) > p.Qty() {
			delta = -p.Amount
		}
	}
	o.ExecutedQty = math.Abs(delta)
	o.Status = common.StatusFilled
	o.UpdateTime = time.Now().UnixMilli()

	if p == nil {
		lev := m.leverage[o.Symbol]
		if lev == 0 {
			lev = m.cfg.Leverage
		}
		mt := m.marginType[o.Symbol]
		if mt == "" {
			mt = common.MarginCrossed
		}
		p = &state.Position{Symbol: o.Symbol, PositionSide: o.PositionSide, Leverage: lev, MarginType: string(mt)}
		m.positions[key] = p
	}

	switch {
	case p.Amount == 0 || (p.Amount > 0) == (delta > 0):
		total := p.Amount + delta
		p.EntryPrice = (p.EntryPrice*math.Abs(p.Amount) + price*math.Abs(delta)) / math.Abs(total)
		p.Amount = total
		if p.MarginType == string(common.MarginIsolated) {
			margin := price * math.Abs(delta) / float64(p.Leverage)
			p.IsolatedMargin += margin
			m.wallet -= margin
		}
	default:
		closed := math.Min(math.Abs(delta), p.Qty())
		sign := 1.0
		if p.Amount < 0 {
			sign = -1
		}
		m.wallet += (price - p.EntryPrice) * closed * sign
		if p.IsolatedMargin > 0 {
			released := p.IsolatedMargin * closed / p.Qty()
			p.IsolatedMargin -= released
			m.wallet += released
		}
		p.Amount += delta
		if math.Abs(delta) > closed {
			// flipped through zero
			p.EntryPrice = price
		}
	}
	if math.Abs(p.Amount) < 1e-12 {
		delete(m.positions, key)
		return
	}
	m.markLocked(p)
	m.log.Debug("mock fill",
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Float64("qty", o.ExecutedQty),
		zap.Float64("price", price))
}

func (m *MockSource) archiveLocked(o state.OpenOrder) {
	m.history = append(m.history, o)
	if len(m.history) > mockHistory {
		m.history = m.history[len(m.history)-mockHistory:]
	}
}
