// Command backtest replays historical one-minute candle data from local storage through the
// mean-reversion VWAP evaluator and the simulated trade executor, then writes a report.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/backtest"
	"github.com/flemosr/quantoxide-sub000/internal/cfg"
	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/signal"
	"github.com/flemosr/quantoxide-sub000/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "", "Path to the BoltDB data directory (overrides config)")
		outputPath = flag.String("output", "backtest-results", "Output directory for reports")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		startDate  = flag.String("start", "", "Start date (YYYY-MM-DD), required")
		endDate    = flag.String("end", "", "End date (YYYY-MM-DD), required")
		threshold  = flag.Float64("threshold", 1.5, "Evaluator standard-deviation threshold")
		resolution = flag.Duration("resolution", time.Minute, "Candle resolution the evaluator reads")
		lookback   = flag.Int("lookback", 60, "Number of completed candles retained for evaluation")
		quantity   = flag.Uint64("quantity", 100, "USD notional per trade")
		leverage   = flag.Float64("leverage", 2, "Leverage per trade")
		stoploss   = flag.Float64("stoploss-pct", 5, "Stoploss distance from entry, percent")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *startDate == "" || *endDate == "" {
		log.Fatal().Msg("backtest: -start and -end are required")
	}
	startTime, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: invalid -start date")
	}
	endTime, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: invalid -end date")
	}

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: failed to load config")
	}

	path := *dataPath
	if path == "" {
		path = settings.DataPath
	}
	store, err := storage.New(path)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: failed to open storage")
	}
	defer store.Close()

	qty, err := money.NewQuantity(*quantity)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: invalid -quantity")
	}
	lev, err := money.NewLeverage(*leverage)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: invalid -leverage")
	}
	slPct, err := money.NewPercentageCapped(*stoploss)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: invalid -stoploss-pct")
	}
	feePct, err := money.NewPercentageCapped(settings.FeePercent)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: invalid fee percent in config")
	}

	cfgBT := backtest.Config{
		InitialBalance:       settings.InitialBalance,
		FeePercent:           feePct,
		MaxRunningCount:      settings.MaxRunningCount,
		Quantity:             qty,
		Leverage:             lev,
		StoplossPercent:      slPct,
		Resolution:           *resolution,
		Lookback:             *lookback,
		MinIterationInterval: *resolution,
		BufferSize:           1440,
		UpdateEvery:          24 * time.Hour,
	}

	evaluator := signal.NewVWAPReversion(*threshold)

	engine, err := backtest.NewEngine(cfgBT, store, evaluator, startTime, endTime, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: failed to build engine")
	}

	log.Info().Time("start", startTime).Time("end", endTime).Msg("backtest: starting")

	state, err := engine.Run(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("backtest: run failed")
	}

	reporter := backtest.NewReporter(state, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("backtest: failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().Str("output", *outputPath).Msg("backtest: completed")
}
