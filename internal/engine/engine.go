package engine

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures-terminal/internal/conditional"
	"futures-terminal/internal/events"
	"futures-terminal/internal/gateway"
	"futures-terminal/internal/metrics"
	"futures-terminal/internal/order"
	"futures-terminal/internal/persistence"
	"futures-terminal/internal/reconciliation"
	"futures-terminal/internal/risk"
	"futures-terminal/internal/rules"
	"futures-terminal/internal/state"
	"futures-terminal/internal/trailing"
	"futures-terminal/pkg/cache"
	"futures-terminal/pkg/config"
	"futures-terminal/pkg/db"
	"futures-terminal/pkg/exchanges/binance/futures_usdt"
)

// SourceFactory builds the data source of an account.
type SourceFactory func(cred config.AccountCredential, eng config.Engine, log *zap.Logger) gateway.DataSource

// Options wires an Engine.
type Options struct {
	Config   config.Engine
	Defaults config.TradingDefaults
	Bus      *events.Bus
	// DB receives the journal; nil disables it.
	DB        *db.Database
	Log       *zap.Logger
	NewSource SourceFactory
	Metrics   *metrics.Metrics
}

// session is everything bound to the selected account. Its fields are set
// once and safe to use from any goroutine.
type session struct {
	gen       uint64
	cred      config.AccountCredential
	src       gateway.DataSource
	rules     *rules.Cache
	builder   *order.Builder
	batcher   *order.Batcher
	converter *trailing.Converter
	journal   *persistence.Journal
	ctx       context.Context
	cancel    context.CancelFunc
}

// Engine owns the state of one account. Run is the single owner of every
// mutable field below the loop marker; other goroutines reach it through
// closures sent over cmds.
type Engine struct {
	cfg       config.Engine
	defaults  config.TradingDefaults
	bus       *events.Bus
	db        *db.Database
	log       *zap.Logger
	newSource SourceFactory
	prices    *cache.PriceBook
	metrics   *metrics.Metrics

	cmds    chan func()
	stopped chan struct{}
	running atomic.Bool
	status  atomic.Pointer[Status]

	// loop-owned
	runCtx       context.Context
	sess         *session
	gen          uint64
	seq          uint64
	appliedSeq   uint64
	lastApplied  time.Time
	activeSymbol string
	store        *state.Store
	monitor      *conditional.Monitor
	reconciler   *reconciliation.Reconciler
	calc         *risk.Calculator
	riskSnap     risk.Snapshot
	converting   map[int64]struct{} // stop order IDs handed to the converter
	priceTicker  *time.Ticker
	acctTicker   *time.Ticker
}

// New builds an engine; call Run to start it.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.NewSource == nil {
		opts.NewSource = gateway.New
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Config.PriceInterval <= 0 {
		opts.Config = config.Default()
	}
	if opts.Defaults.Symbol == "" {
		opts.Defaults = config.DefaultTrading()
	}
	store := state.NewStore()
	e := &Engine{
		cfg:          opts.Config,
		defaults:     opts.Defaults,
		bus:          opts.Bus,
		db:           opts.DB,
		log:          log.Named("engine"),
		newSource:    opts.NewSource,
		prices:       cache.NewPriceBook(),
		metrics:      opts.Metrics,
		cmds:         make(chan func(), 64),
		stopped:      make(chan struct{}),
		activeSymbol: opts.Defaults.Symbol,
		store:        store,
		monitor:      conditional.NewMonitor(log),
		reconciler:   reconciliation.NewReconciler(store, log),
		calc:         risk.NewCalculator(),
		converting:   make(map[int64]struct{}),
	}
	e.status.Store(&Status{})
	return e
}

// Bus is the engine's event bus.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Metrics exposes the engine counters.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Run is the owner loop. It returns ctx.Err() when ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(e.stopped)
	e.runCtx = ctx
	e.publishStatus()
	e.log.Info("engine started",
		zap.Duration("price_interval", e.cfg.PriceInterval),
		zap.Duration("account_interval", e.cfg.AccountInterval),
		zap.String("price_feed", e.cfg.PriceFeed))

	for {
		select {
		case <-ctx.Done():
			e.closeSession()
			e.running.Store(false)
			e.publishStatus()
			e.log.Info("engine stopped")
			return ctx.Err()
		case fn := <-e.cmds:
			fn()
		case <-tick(e.priceTicker):
			e.refreshPrices()
		case <-tick(e.acctTicker):
			e.refreshAccount()
		}
	}
}

// tick returns a nil channel for a stopped timer so the select ignores it.
func tick(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.post(ctx, func() { fn(); close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// post queues fn on the loop without waiting for it to run.
func (e *Engine) post(ctx context.Context, fn func()) error {
	if !e.running.Load() {
		return ErrStopped
	}
	select {
	case e.cmds <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// current returns the session for a command running off the loop.
func (e *Engine) current(ctx context.Context) (*session, error) {
	var s *session
	if err := e.do(ctx, func() { s = e.sess }); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoAccount
	}
	return s, nil
}

// openSession binds cred. Loop only.
func (e *Engine) openSession(cred config.AccountCredential) {
	e.closeSession()
	e.gen++

	log := e.log.With(zap.String("account", cred.Name), zap.Uint64("generation", e.gen))
	src := e.newSource(cred, e.cfg, log)
	ctx, cancel := context.WithCancel(e.runCtx)

	rc := rules.NewCache(src, log, rules.WithPrices(e.prices.Get))
	builder := order.NewBuilder(rc, src, log)
	s := &session{
		gen:       e.gen,
		cred:      cred,
		src:       src,
		rules:     rc,
		builder:   builder,
		batcher:   order.NewBatcher(src, e.cfg.BatchDelay, log),
		converter: trailing.NewConverter(src, builder, log),
		ctx:       ctx,
		cancel:    cancel,
	}
	if e.db != nil {
		s.journal = persistence.NewJournal(e.db, cred.Name, cred.IsTestnet, log)
	}
	e.sess = s

	if b, ok := src.(*gateway.Binance); ok {
		if b.Client().HasCredentials() {
			b.Client().StartTimeSync(ctx)
		}
		if e.cfg.PriceFeed == config.PriceFeedStream {
			e.startStream(s, b.Client().Testnet())
		}
	}

	e.priceTicker = time.NewTicker(e.cfg.PriceInterval)
	e.acctTicker = time.NewTicker(e.cfg.AccountInterval)
	log.Info("account selected", zap.Bool("mock", src.Mock()), zap.Bool("testnet", cred.IsTestnet))
	e.bus.Publish(events.EventAccountChanged, cred.Name)
	e.publishStatus()

	e.refreshPrices()
	e.refreshAccount()
}

// closeSession stops timers and drops account state. Loop only. In-flight
// results of the old generation are discarded on arrival.
func (e *Engine) closeSession() {
	if e.priceTicker != nil {
		e.priceTicker.Stop()
		e.priceTicker = nil
	}
	if e.acctTicker != nil {
		e.acctTicker.Stop()
		e.acctTicker = nil
	}
	if e.sess == nil {
		return
	}
	old := e.sess
	e.sess = nil
	old.cancel()
	if err := old.journal.Close(); err != nil {
		e.log.Warn("close journal", zap.Error(err))
	}

	e.store.Clear()
	e.monitor.Reset()
	e.prices.Reset()
	e.riskSnap = risk.Snapshot{}
	e.converting = make(map[int64]struct{})
	e.appliedSeq = 0
	e.lastApplied = time.Time{}
	e.bus.Publish(events.EventAccountChanged, "")
	e.publishStatus()
}

func (e *Engine) startStream(s *session, testnet bool) {
	stream := futures_usdt.NewMarkPriceStream(testnet, e.log)
	symbols := e.watchedSymbols()
	go func() {
		err := stream.Run(s.ctx, symbols, func(mp futures_usdt.MarkPrice) {
			if s.ctx.Err() == nil {
				e.prices.Set(mp.Symbol, mp.Price, "stream")
			}
		})
		e.log.Debug("mark price stream ended", zap.Error(err))
	}()
}

// watchedSymbols is the active symbol plus every symbol with exposure. Loop only.
func (e *Engine) watchedSymbols() []string {
	set := map[string]struct{}{}
	if e.activeSymbol != "" {
		set[e.activeSymbol] = struct{}{}
	}
	for _, p := range e.store.Positions() {
		set[p.Symbol] = struct{}{}
	}
	for _, o := range e.store.Orders() {
		set[o.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// refreshPrices fetches prices off the loop. Symbols with a fresh stream
// quote are skipped. Loop only.
func (e *Engine) refreshPrices() {
	s := e.sess
	if s == nil {
		return
	}
	var symbols []string
	for _, sym := range e.watchedSymbols() {
		if q, ok := e.prices.Quote(sym); ok && q.Source == "stream" && time.Since(q.UpdatedAt) < 2*e.cfg.PriceInterval {
			continue
		}
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, e.cfg.HTTPTimeout)
		defer cancel()
		prices, err := s.src.TickerPrices(ctx, symbols...)
		mock := s.src.Mock()
		_ = e.post(s.ctx, func() { e.applyPrices(s.gen, prices, mock, err) })
	}()
}

func (e *Engine) applyPrices(gen uint64, prices map[string]float64, mock bool, err error) {
	if e.sess == nil || e.sess.gen != gen {
		return
	}
	if err != nil {
		e.log.Warn("price refresh failed", zap.Error(err))
		return
	}
	e.metrics.PriceTicks(len(prices))
	source := "rest"
	if mock {
		source = "mock"
	}
	for sym, p := range prices {
		e.prices.Set(sym, p, source)
		e.bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: sym, Price: p, Source: source})
	}
	if mock != e.status.Load().Mock {
		e.bus.Publish(events.EventDataSourceDegraded, mock)
		e.publishStatus()
	}
}

// refreshAccount fetches a snapshot off the loop. Overlapping fetches are
// fine: sequence numbers drop results older than the last applied one.
// Loop only.
func (e *Engine) refreshAccount() {
	s := e.sess
	if s == nil {
		return
	}
	e.seq++
	seq := e.seq
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, 2*e.cfg.HTTPTimeout)
		defer cancel()
		timer := metrics.NewTimer(e.metrics.FetchLatency)
		snap, err := reconciliation.Fetch(ctx, s.src)
		timer.Stop()
		_ = e.post(s.ctx, func() { e.applySnapshot(s.gen, seq, snap, err) })
	}()
}

func (e *Engine) applySnapshot(gen, seq uint64, snap reconciliation.Snapshot, err error) {
	s := e.sess
	if s == nil || s.gen != gen {
		e.metrics.SnapshotDiscarded()
		e.log.Debug("snapshot of previous account discarded", zap.Uint64("generation", gen))
		return
	}
	if err != nil {
		e.metrics.FetchError()
		e.log.Warn("account refresh failed", zap.String("account", s.cred.Name), zap.Error(err))
		return
	}
	if seq <= e.appliedSeq {
		e.metrics.SnapshotDiscarded()
		e.log.Debug("stale snapshot discarded", zap.Uint64("seq", seq), zap.Uint64("applied", e.appliedSeq))
		return
	}
	e.appliedSeq = seq
	e.metrics.SnapshotApplied()

	report := e.reconciler.Apply(snap)
	synced := e.monitor.Sync(e.store.Orders())
	for _, p := range e.store.Positions() {
		if p.MarkPrice > 0 {
			if _, ok := e.prices.Get(p.Symbol); !ok {
				e.prices.Set(p.Symbol, p.MarkPrice, "position")
			}
		}
	}
	e.recomputeRisk()
	e.lastApplied = report.AppliedAt

	s.journal.RecordReconcile(report)
	s.journal.RecordTransitions(synced.Transitions)

	e.bus.Publish(events.EventSnapshotApplied, events.SnapshotApplied{
		Account:    s.cred.Name,
		Generation: gen,
		Sequence:   seq,
		Mode:       string(report.Mode),
		Positions:  report.Positions,
		Orders:     report.Orders,
		Total:      e.riskSnap.Total,
	})
	e.publishStatus()

	if e.cfg.TrailingEnabled {
		e.scheduleTrailing(s)
	}
}

// recomputeRisk re-derives the risk snapshot from the store. Loop only.
func (e *Engine) recomputeRisk() {
	factor := 0
	if e.sess != nil {
		factor = e.sess.cred.RiskDivisionFactor
	}
	e.riskSnap = e.calc.Compute(e.store.Account().MarginBalance, factor, e.activeSymbol,
		e.store.Positions(), e.store.Orders())
}

// scheduleTrailing starts a conversion for every profitable position with a
// protective stop. Loop only.
func (e *Engine) scheduleTrailing(s *session) {
	orders := e.store.Orders()
	for id := range e.converting {
		if _, live := e.store.Order(id); !live {
			delete(e.converting, id)
		}
	}
	for _, p := range e.store.Positions() {
		if p.UnrealizedProfit <= 0 {
			continue
		}
		stop, ok := trailing.Eligible(p, orders)
		if !ok {
			continue
		}
		// a snapshot fetched before the conversion finished still lists the old stop
		if _, busy := e.converting[stop.OrderID]; busy {
			continue
		}
		e.converting[stop.OrderID] = struct{}{}
		pos, so := *p, *stop
		mark := p.MarkPrice
		if q, ok := e.prices.Get(p.Symbol); ok {
			mark = q
		}
		go func() {
			res, err := s.converter.Convert(s.ctx, pos, so, mark)
			_ = e.post(s.ctx, func() { e.applyTrailing(s.gen, so.OrderID, res, err) })
		}()
	}
}

func (e *Engine) applyTrailing(gen uint64, stopID int64, res trailing.Result, err error) {
	s := e.sess
	if s == nil || s.gen != gen {
		return
	}
	if err != nil {
		if !errors.Is(err, trailing.ErrInFlight) {
			delete(e.converting, stopID)
			e.log.Warn("trailing conversion failed", zap.Int64("stop_order_id", stopID), zap.Error(err))
		}
		return
	}
	e.metrics.TrailingConverted()
	s.journal.RecordTrailing(res)
	e.bus.Publish(events.EventTrailingConverted, res)
	e.refreshAccount()
}

// snapshotView copies the loop state. Loop only.
func (e *Engine) snapshotView() View {
	sv := e.store.Snapshot()
	v := View{
		Generation:   e.gen,
		Sequence:     e.appliedSeq,
		ActiveSymbol: e.activeSymbol,
		Balance:      sv.Account,
		Positions:    sv.Positions,
		Orders:       sv.Orders,
		Conditional:  e.monitor.Conditional(),
		ReduceOnly:   e.monitor.ReduceOnly(),
		Risk:         e.riskSnap,
		Prices:       e.prices.Snapshot(),
		LastApplied:  e.lastApplied,
	}
	if e.sess != nil {
		v.Account = e.sess.cred.Name
		v.Mock = e.sess.src.Mock()
	}
	return v
}

func (e *Engine) publishStatus() {
	st := &Status{Running: e.running.Load(), LastApplied: e.lastApplied}
	if e.sess != nil {
		st.Account = e.sess.cred.Name
		st.Mock = e.sess.src.Mock()
	}
	e.status.Store(st)
}
