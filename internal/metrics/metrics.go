// Package metrics provides Prometheus metrics collection for the trading engine.
// It defines and manages the counters, gauges, and histograms exposed via the
// Prometheus metrics endpoint for monitoring trade execution, price-history
// synchronization, and backtest runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	// Trade execution metrics
	TradesOpened    prometheus.Counter   // Total number of trades opened
	TradesClosed    *prometheus.CounterVec // Total number of trades closed, labeled by reason
	RunningTrades   prometheus.Gauge     // Current number of running trades
	Balance         prometheus.Gauge     // Current account balance, in sats
	RealizedPL      prometheus.Gauge     // Cumulative realized profit/loss, in sats
	TradeOpenErrors prometheus.Counter   // Total number of rejected open-trade attempts

	// Exchange connectivity metrics
	RESTRequests prometheus.Counter   // Total number of REST requests issued
	RESTErrors   prometheus.Counter   // Total number of REST requests that failed
	RESTLatency  prometheus.Histogram // REST request round-trip latency in seconds
	WSReconnects prometheus.Counter   // Total number of WebSocket reconnections
	TicksReceived prometheus.Counter  // Total number of ticker updates received

	// Consolidation and settlement metrics
	CandlesConsolidated prometheus.Counter // Total number of candles finalized across resolutions
	FundingSettlements  prometheus.Counter // Total number of funding settlement events applied

	// Synchronizer metrics
	SyncGapsFound     prometheus.Counter   // Total number of history gaps detected
	SyncBackfillChunks prometheus.Counter  // Total number of backfill chunks fetched
	SyncErrors        prometheus.Counter   // Total number of synchronizer task failures

	// Backtest metrics
	BacktestTicksProcessed prometheus.Counter   // Total number of ticks processed across backtest runs
	BacktestTickDuration   prometheus.Histogram // Duration of a single backtest tick in seconds
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, used in tests to avoid
// colliding with the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TradesOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "trades_opened_total",
			Help: "Total number of trades opened",
		}),
		TradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trades_closed_total",
			Help: "Total number of trades closed, labeled by close reason",
		}, []string{"reason"}),
		RunningTrades: factory.NewGauge(prometheus.GaugeOpts{
			Name: "running_trades",
			Help: "Current number of running trades",
		}),
		Balance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "balance_sats",
			Help: "Current account balance in sats",
		}),
		RealizedPL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realized_pl_sats",
			Help: "Cumulative realized profit/loss in sats",
		}),
		TradeOpenErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "trade_open_errors_total",
			Help: "Total number of rejected open-trade attempts",
		}),
		RESTRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "rest_requests_total",
			Help: "Total number of REST requests issued",
		}),
		RESTErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rest_errors_total",
			Help: "Total number of REST requests that failed",
		}),
		RESTLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rest_latency_seconds",
			Help:    "REST request round-trip latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of WebSocket reconnections",
		}),
		TicksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticks_received_total",
			Help: "Total number of ticker updates received",
		}),
		CandlesConsolidated: factory.NewCounter(prometheus.CounterOpts{
			Name: "candles_consolidated_total",
			Help: "Total number of candles finalized across resolutions",
		}),
		FundingSettlements: factory.NewCounter(prometheus.CounterOpts{
			Name: "funding_settlements_total",
			Help: "Total number of funding settlement events applied",
		}),
		SyncGapsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "sync_gaps_found_total",
			Help: "Total number of history gaps detected",
		}),
		SyncBackfillChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "sync_backfill_chunks_total",
			Help: "Total number of backfill chunks fetched",
		}),
		SyncErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of synchronizer task failures",
		}),
		BacktestTicksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "backtest_ticks_processed_total",
			Help: "Total number of ticks processed across backtest runs",
		}),
		BacktestTickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_tick_duration_seconds",
			Help:    "Duration of a single backtest tick in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
	}
}

// TradeClosed records a trade close event under the given reason (e.g.
// "stoploss", "takeprofit", "liquidation", "manual").
func (m *Metrics) TradeClosed(reason string) {
	m.TradesClosed.WithLabelValues(reason).Inc()
}
