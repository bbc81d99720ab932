package main

// mock_session runs the engine against the in-memory mock data source and
// walks through the main order flows. It never touches the exchange.
//
// Usage:
//   go run ./scripts/mock_session
//
// Environment:
//   ENGINE_CONFIG        optional engine YAML file
//   ENGINE_JOURNAL_PATH  journal database (empty disables it)
//   MOCK_SESSION_LISTEN  serve the status API on this address until interrupted
//
// It will:
//   1) open a market long on BTCUSDT sized from a loss budget,
//   2) protect it with a stop loss and wait for the trailing conversion,
//   3) submit a take-profit short entry above the ETHUSDT price,
//   4) print the engine view, then close everything.

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"futures-terminal/internal/api"
	"futures-terminal/internal/engine"
	"futures-terminal/internal/events"
	"futures-terminal/internal/gateway"
	"futures-terminal/internal/order"
	"futures-terminal/pkg/config"
	"futures-terminal/pkg/db"
	"futures-terminal/pkg/exchanges/common"
	"futures-terminal/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("ENGINE_CONFIG"))
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.LogLevel, "mock-session")
	defer func() { _ = log.Sync() }()

	cfg.MockMode = true
	cfg.TrailingEnabled = true
	cfg.PriceInterval = 200 * time.Millisecond
	cfg.AccountInterval = 300 * time.Millisecond
	cfg.BatchDelay = 0

	var database *db.Database
	if cfg.JournalPath != "" {
		database, err = db.Open(cfg.JournalPath)
		if err != nil {
			log.Fatal("open journal", zap.Error(err))
		}
		defer database.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mock := gateway.NewMockSource(gateway.MockConfig{Balance: 10000, Step: 0.0005}, log)
	eng := engine.New(engine.Options{
		Config:   cfg,
		Defaults: config.DefaultTrading(),
		DB:       database,
		Log:      log,
		NewSource: func(config.AccountCredential, config.Engine, *zap.Logger) gateway.DataSource {
			return mock
		},
	})
	go func() {
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("engine exited", zap.Error(err))
		}
	}()
	for !eng.Status().Running {
		time.Sleep(10 * time.Millisecond)
	}

	trailed, unsub := eng.Bus().Subscribe(events.EventTrailingConverted, 4)
	defer unsub()

	if err := eng.SelectAccount(ctx, config.AccountCredential{Name: "paper", RiskDivisionFactor: 10}); err != nil {
		log.Fatal("select account", zap.Error(err))
	}

	log.Info("[SCENARIO 1] market long sized from a 50 USDT loss budget")
	qty, err := eng.QuantityFromLoss(ctx, "BTCUSDT", 50, 0, 2)
	if err != nil {
		log.Fatal("size order", zap.Error(err))
	}
	if _, err := eng.PlaceOrder(ctx, order.Params{Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeMarket, Quantity: qty}); err != nil {
		log.Fatal("place entry", zap.Error(err))
	}
	waitPositions(ctx, eng, 1)

	log.Info("[SCENARIO 2] stop loss, then push the price up for a trailing conversion")
	res, err := eng.PlaceStopLosses(ctx, 2, false)
	if err != nil {
		log.Fatal("stop losses", zap.Error(err))
	}
	log.Info("stop losses placed", zap.Int("succeeded", res.Succeeded), zap.Int("failed", res.Failed))
	if p, ok := mock.Price("BTCUSDT"); ok {
		mock.SetPrice("BTCUSDT", p*1.03)
	}
	select {
	case ev := <-trailed:
		log.Info("trailing stop live", zap.Any("result", ev))
	case <-time.After(5 * time.Second):
		log.Warn("no trailing conversion within 5s")
	case <-ctx.Done():
		return
	}

	log.Info("[SCENARIO 3] take-profit short entry on ETHUSDT")
	if p, ok := mock.Price("ETHUSDT"); ok {
		if _, err := eng.PlaceConditional(ctx, order.Params{
			Symbol: "ETHUSDT", Side: common.SideSell, Type: common.OrderTypeTakeProfitMarket,
			Quantity: 0.1, StopPrice: p * 1.05,
		}, "short the rally"); err != nil {
			log.Error("take-profit entry", zap.Error(err))
		}
	}
	time.Sleep(2 * cfg.AccountInterval)

	printView(ctx, eng)

	if addr := os.Getenv("MOCK_SESSION_LISTEN"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: api.NewHandler(eng,
			api.WithBus(eng.Bus()), api.WithMetrics(eng.Metrics()), api.WithLogger(log), api.WithRateLimit(20, 50))}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		log.Info("status API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status API", zap.Error(err))
		}
	}

	log.Info("[SCENARIO DONE] closing everything")
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res, err := eng.CancelAll(closeCtx, false); err == nil {
		log.Info("cancelled", zap.Int("succeeded", res.Succeeded), zap.Int("failed", res.Failed))
	}
	if res, err := eng.CloseAll(closeCtx, false); err == nil {
		log.Info("closed", zap.Int("succeeded", res.Succeeded), zap.Int("failed", res.Failed))
	}
	if database != nil {
		time.Sleep(cfg.AccountInterval)
		_ = eng.ClearAccount(closeCtx)
		if counts, err := database.JournalCounts(closeCtx); err == nil {
			log.Info("journal", zap.Any("counts", counts))
		}
	}
}

func waitPositions(ctx context.Context, eng *engine.Engine, n int) {
	for ctx.Err() == nil {
		if v, err := eng.View(ctx); err == nil && len(v.Positions) >= n {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func printView(ctx context.Context, eng *engine.Engine) {
	v, err := eng.View(ctx)
	if err != nil {
		return
	}
	out, _ := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}
