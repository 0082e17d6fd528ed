// Command trader runs the live trading loop: it streams the LN Markets ticker feed,
// consolidates ticks into one-minute candles, keeps local storage synchronized with the
// exchange's price and funding-settlement history, and drives the mean-reversion VWAP
// evaluator against a live executor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/cfg"
	"github.com/flemosr/quantoxide-sub000/internal/consolidator"
	"github.com/flemosr/quantoxide-sub000/internal/dashboard"
	"github.com/flemosr/quantoxide-sub000/internal/exchange/lnm"
	"github.com/flemosr/quantoxide-sub000/internal/executor"
	"github.com/flemosr/quantoxide-sub000/internal/metrics"
	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/signal"
	"github.com/flemosr/quantoxide-sub000/internal/storage"
	pricesync "github.com/flemosr/quantoxide-sub000/internal/sync"
)

func main() {
	var (
		threshold     = flag.Float64("threshold", 1.5, "Evaluator standard-deviation threshold")
		resolution    = flag.Duration("resolution", time.Minute, "Candle resolution the evaluator reads")
		lookback      = flag.Int("lookback", 60, "Number of completed candles retained for evaluation")
		quantity      = flag.Uint64("quantity", 100, "USD notional per trade")
		leverage      = flag.Float64("leverage", 2, "Leverage per trade")
		stoploss      = flag.Float64("stoploss-pct", 5, "Stoploss distance from entry, percent")
		dashboardPort = flag.Int("dashboard-port", 0, "Port to serve the live risk dashboard on; 0 disables it")
	)
	flag.Parse()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("trader: config load failed")
	}

	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	sink := metrics.NewWrapper(m)

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("trader: storage initialization failed")
	}
	defer store.Close()

	rest := lnm.NewREST(c.APIKey, c.Secret, c.Passphrase, c.BaseURL, c.RESTTimeout)

	var wg sync.WaitGroup

	// Metrics server.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: fmt.Sprintf(":%d", c.MetricsPort), Handler: mux}
		go func() {
			<-ctx.Done()
			server.Shutdown(context.Background())
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("trader: metrics server failed")
		}
	}()

	// Synchronizer: keeps local storage caught up with price/funding history.
	syncCfg := pricesync.DefaultConfig(time.Now())
	syncCfg.RESTErrorMaxTrials = uint64(c.SyncMaxTrials)
	syncCfg.RESTErrorCooldown = c.SyncErrorCooldown
	syncCfg.RESTRateLimitRPS = c.SyncRateLimitRPS
	syncCfg.PriceHistoryBatchSize = c.SyncBackfillChunk

	synchronizer := pricesync.New(syncCfg, rest, store, sink)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := synchronizer.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("trader: synchronizer stopped")
		}
	}()

	// Trade sizing, validated once at startup.
	qty, err := money.NewQuantity(*quantity)
	if err != nil {
		log.Fatal().Err(err).Msg("trader: invalid -quantity")
	}
	lev, err := money.NewLeverage(*leverage)
	if err != nil {
		log.Fatal().Err(err).Msg("trader: invalid -leverage")
	}
	slPct, err := money.NewPercentageCapped(*stoploss)
	if err != nil {
		log.Fatal().Err(err).Msg("trader: invalid -stoploss-pct")
	}

	evaluator := signal.NewVWAPReversion(*threshold)
	consol := consolidator.New(*resolution, *lookback)
	exe := executor.NewLiveTradeExecutor(rest)

	if err := exe.RefreshBalance(ctx); err != nil {
		log.Warn().Err(err).Msg("trader: initial balance refresh failed")
	}

	if *dashboardPort != 0 {
		riskDashboard := dashboard.NewRiskDashboard(exe.TradingState, *dashboardPort)
		if err := riskDashboard.Start(); err != nil {
			log.Error().Err(err).Msg("trader: dashboard failed to start")
		} else {
			go func() {
				<-ctx.Done()
				riskDashboard.Stop()
			}()
		}
	}

	ticks := make(chan lnm.Tick, 1024)
	errs := make(chan error, 100)

	ws := lnm.NewWS(c.WsURL)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Stream(ctx, ticks, errs, c.Ping); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("trader: ticker stream ended")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				log.Error().Err(err).Msg("trader: background error")
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runTicks(ctx, ticks, consol, evaluator, exe, sink, qty, lev, slPct)
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("trader: shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("trader: context cancelled")
	}

	log.Info().Msg("trader: shutting down gracefully")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("trader: all goroutines stopped")
	case <-time.After(syncCfg.ShutdownTimeout):
		log.Warn().Msg("trader: shutdown timeout, forcing exit")
	}
}

// runTicks turns each ticker update into a flat candle, feeds it to the executor and to the
// consolidator, and after every tick consults the evaluator and opens trades accordingly;
// open trades are reconciled every 30 seconds.
func runTicks(
	ctx context.Context,
	ticks <-chan lnm.Tick,
	consol *consolidator.RuntimeConsolidator,
	evaluator signal.Evaluator,
	exe *executor.LiveTradeExecutor,
	sink metrics.Sink,
	qty money.Quantity,
	lev money.Leverage,
	slPct money.PercentageCapped,
) {
	reconcileTicker := time.NewTicker(30 * time.Second)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileTicker.C:
			reconcileOpenTrades(exe)
		case t, ok := <-ticks:
			if !ok {
				return
			}
			c := candle.OHLC{
				Timestamp: t.Time,
				Open:      t.LastPrice,
				High:      t.LastPrice,
				Low:       t.LastPrice,
				Close:     t.LastPrice,
				UpdatedAt: t.Time,
				AllStable: true,
			}
			if err := exe.CandleUpdate(ctx, c); err != nil {
				log.Warn().Err(err).Msg("trader: candle update failed")
				continue
			}
			if err := consol.Push(c); err != nil {
				log.Warn().Err(err).Msg("trader: consolidate tick failed")
				continue
			}

			evaluateAndTrade(ctx, consol, evaluator, exe, sink, qty, lev, slPct)
		}
	}
}

func evaluateAndTrade(
	ctx context.Context,
	consol *consolidator.RuntimeConsolidator,
	evaluator signal.Evaluator,
	exe *executor.LiveTradeExecutor,
	sink metrics.Sink,
	qty money.Quantity,
	lev money.Leverage,
	slPct money.PercentageCapped,
) {
	state := exe.TradingState()
	sink.SetRunningTrades(state.RunningLen())
	sink.SetBalance(float64(state.Balance()))
	sink.SetRealizedPL(float64(state.RealizedPL()))

	if state.RunningLen() > 0 {
		return
	}

	decision, err := evaluator.Evaluate(consol.GetCandles())
	if err != nil {
		log.Warn().Err(err).Msg("trader: evaluator failed")
		return
	}
	if decision.Action == signal.Hold {
		return
	}

	side := money.Buy
	if decision.Action == signal.Short {
		side = money.Sell
	}

	margin, err := money.CalculateMargin(qty, decision.Price, lev)
	if err != nil {
		log.Warn().Err(err).Msg("trader: calculate margin failed")
		return
	}

	var stoploss money.Price
	if side == money.Buy {
		stoploss, err = decision.Price.ApplyDiscount(slPct)
	} else {
		var gain money.Percentage
		gain, err = money.NewPercentage(slPct.AsF64())
		if err == nil {
			stoploss, err = decision.Price.ApplyGain(gain)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("trader: compute stoploss failed")
		return
	}

	id, err := exe.Open(ctx, executor.OpenParams{
		Side:     side,
		Quantity: qty,
		Margin:   margin,
		Leverage: lev,
		Stoploss: &stoploss,
	})
	if err != nil {
		log.Warn().Err(err).Str("side", side.String()).Msg("trader: open rejected")
		sink.TradeOpenRejected()
		return
	}

	log.Info().Str("id", id.String()).Str("side", side.String()).Msg("trader: opened trade")
	sink.TradeOpened()
}

// reconcileOpenTrades refreshes account balance from the exchange periodically, since
// funding settlements and server-side trade closures (stoploss/takeprofit/liquidation)
// move it without any local call. LN Markets has no list-open-trades endpoint wired here;
// a trade the exchange already settled surfaces the next time the trader calls
// Close/CloseAll against its id, which the exchange rejects harmlessly as unknown.
func reconcileOpenTrades(exe *executor.LiveTradeExecutor) {
	if err := exe.RefreshBalance(context.Background()); err != nil {
		log.Warn().Err(err).Msg("trader: reconcile balance refresh failed")
	}
}
