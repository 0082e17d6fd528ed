// Package backtest drives a simulated trade executor across historical one-minute candles,
// consolidating them to the evaluator's configured resolution and replaying the resulting
// trade decisions exactly as a live run would, minute by minute, in chronological order.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/consolidator"
	"github.com/flemosr/quantoxide-sub000/internal/executor"
	"github.com/flemosr/quantoxide-sub000/internal/fundinggrid"
	"github.com/flemosr/quantoxide-sub000/internal/metrics"
	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/signal"
	"github.com/flemosr/quantoxide-sub000/internal/status"
	"github.com/flemosr/quantoxide-sub000/internal/storage"
	"github.com/flemosr/quantoxide-sub000/internal/trade"
)

// Config holds the parameters a backtest run needs beyond the time range itself: executor
// sizing, the evaluator's candle resolution and lookback window, and how often to publish
// progress.
type Config struct {
	InitialBalance  int64
	FeePercent      money.PercentageCapped
	MaxRunningCount int

	Quantity        money.Quantity
	Leverage        money.Leverage
	StoplossPercent money.PercentageCapped

	Resolution           time.Duration // candle resolution the evaluator reads
	Lookback             int           // number of completed candles of that resolution retained
	MinIterationInterval time.Duration // minimum spacing between evaluator calls

	BufferSize   int           // one-minute candles fetched from storage per batch
	UpdateEvery  time.Duration // how often to publish a BacktestUpdate snapshot
}

// Engine walks historical one-minute candles between a start and end time, feeding them to a
// consolidator and a simulated executor, and consulting a signal.Evaluator to decide when to
// open trades.
type Engine struct {
	cfg       Config
	store     *storage.Store
	evaluator signal.Evaluator
	executor  *executor.SimulatedTradeExecutor
	manager   *status.BacktestManager
	metrics   metrics.Sink

	startTime time.Time
	endTime   time.Time
}

// errInvalidTimeRange is returned by NewEngine for a malformed [startTime, endTime) range.
type errInvalidTimeRange struct {
	startTime, endTime time.Time
}

func (e *errInvalidTimeRange) Error() string {
	return fmt.Sprintf("backtest: invalid time range [%s, %s)", e.startTime, e.endTime)
}

// NewEngine validates the time range and builds an Engine ready to Run. metricsSink may be
// nil.
func NewEngine(cfg Config, store *storage.Store, evaluator signal.Evaluator, startTime, endTime time.Time, metricsSink metrics.Sink) (*Engine, error) {
	if !endTime.After(startTime) {
		return nil, &errInvalidTimeRange{startTime: startTime, endTime: endTime}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1440 // one day of one-minute candles
	}
	if cfg.UpdateEvery <= 0 {
		cfg.UpdateEvery = 24 * time.Hour
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		evaluator: evaluator,
		executor:  executor.NewSimulatedTradeExecutor(cfg.InitialBalance, cfg.FeePercent, cfg.MaxRunningCount),
		manager:   status.NewBacktestManager(),
		metrics:   metricsSink,
		startTime: startTime,
		endTime:   endTime,
	}, nil
}

// Manager returns the status manager subscribers can use to observe backtest progress.
func (e *Engine) Manager() *status.BacktestManager { return e.manager }

// Run walks every one-minute candle in [startTime, endTime), driving the executor and
// evaluator, and returns the final trading state. It blocks until the range is exhausted or
// ctx is canceled.
func (e *Engine) Run(ctx context.Context) (*trade.TradingState, error) {
	e.manager.SetPhase(status.Running)
	defer e.manager.CloseSubscribers()

	consol := consolidator.New(e.cfg.Resolution, e.cfg.Lookback)

	var lastEval time.Time
	nextUpdateAt := e.startTime.Add(e.cfg.UpdateEvery)

	cursor := e.startTime
	for cursor.Before(e.endTime) {
		select {
		case <-ctx.Done():
			e.manager.Fail(ctx.Err())
			return e.executor.TradingState(), ctx.Err()
		default:
		}

		batchEnd := cursor.Add(time.Duration(e.cfg.BufferSize) * time.Minute)
		if batchEnd.After(e.endTime) {
			batchEnd = e.endTime
		}

		candles, err := e.store.GetCandles(time.Minute, cursor, batchEnd)
		if err != nil {
			e.manager.Fail(err)
			return e.executor.TradingState(), fmt.Errorf("backtest: load candles [%s, %s): %w", cursor, batchEnd, err)
		}
		if len(candles) == 0 {
			cursor = batchEnd
			continue
		}

		for _, c := range candles {
			if c.Timestamp.Before(e.startTime) || !c.Timestamp.Before(e.endTime) {
				continue
			}

			if err := e.executor.CandleUpdate(ctx, c); err != nil {
				e.manager.Fail(err)
				return e.executor.TradingState(), fmt.Errorf("backtest: candle update at %s: %w", c.Timestamp, err)
			}
			if fundinggrid.IsValidSettlementTime(c.Timestamp) {
				if err := e.applyFundingSettlement(ctx, c.Timestamp); err != nil {
					e.manager.Fail(err)
					return e.executor.TradingState(), err
				}
			}
			if err := consol.Push(c); err != nil {
				e.manager.Fail(err)
				return e.executor.TradingState(), fmt.Errorf("backtest: consolidate candle at %s: %w", c.Timestamp, err)
			}

			if lastEval.IsZero() || c.Timestamp.Sub(lastEval) >= e.cfg.MinIterationInterval {
				lastEval = c.Timestamp
				if err := e.evaluate(ctx, consol.GetCandles()); err != nil {
					e.manager.Fail(err)
					return e.executor.TradingState(), err
				}
			}

			if !c.Timestamp.Before(nextUpdateAt) {
				e.manager.Publish(status.BacktestUpdate{Time: c.Timestamp, Summary: e.executor.TradingState().Summary()})
				nextUpdateAt = nextUpdateAt.Add(e.cfg.UpdateEvery)
			}
		}

		cursor = batchEnd
	}

	if err := e.executor.CloseAll(ctx); err != nil {
		e.manager.Fail(err)
		return e.executor.TradingState(), fmt.Errorf("backtest: closing remaining trades: %w", err)
	}

	state := e.executor.TradingState()
	e.manager.Publish(status.BacktestUpdate{Time: e.endTime, Summary: state.Summary()})
	e.manager.SetPhase(status.Stopped)
	return state, nil
}

// evaluate consults the evaluator and, on a Long/Short decision, opens a trade sized per
// cfg — unless a trade is already running, matching the single-position discipline the
// mean-reversion strategy was designed around.
func (e *Engine) evaluate(ctx context.Context, candles []candle.OHLC) error {
	if e.executor.TradingState().RunningLen() > 0 {
		return nil
	}

	decision, err := e.evaluator.Evaluate(candles)
	if err != nil {
		return fmt.Errorf("backtest: evaluator: %w", err)
	}
	if decision.Action == signal.Hold {
		return nil
	}

	side := money.Buy
	if decision.Action == signal.Short {
		side = money.Sell
	}

	margin, err := money.CalculateMargin(e.cfg.Quantity, decision.Price, e.cfg.Leverage)
	if err != nil {
		return fmt.Errorf("backtest: calculate margin: %w", err)
	}

	stoploss, err := e.stoplossFor(side, decision.Price)
	if err != nil {
		return fmt.Errorf("backtest: compute stoploss: %w", err)
	}
	// A degenerate VWAP (outside money.Price's bounds) just means no takeprofit target.
	var takeprofit *money.Price
	if tp, err := money.NewPrice(decision.VWAP); err == nil {
		takeprofit = &tp
	}

	id, err := e.executor.Open(ctx, executor.OpenParams{
		Side:       side,
		Quantity:   e.cfg.Quantity,
		Margin:     margin,
		Leverage:   e.cfg.Leverage,
		Stoploss:   &stoploss,
		Takeprofit: takeprofit,
	})
	if err != nil {
		log.Debug().Err(err).Str("side", side.String()).Float64("price_dist", decision.PriceDist).Msg("backtest: signal rejected")
		if e.metrics != nil {
			e.metrics.TradeOpenRejected()
		}
		return nil
	}

	log.Debug().Str("id", id.String()).Str("side", side.String()).Float64("vwap", decision.VWAP).Float64("price_dist", decision.PriceDist).Msg("backtest: opened trade")
	if e.metrics != nil {
		e.metrics.TradeOpened()
	}
	return nil
}

// applyFundingSettlement looks up the settlement record stored for settlementTime and, if
// present, applies it to every running trade. A grid point with no stored settlement (the
// synchronizer has not yet caught up) is a no-op rather than a failure, since replay should
// not halt on a gap the synchronizer is still backfilling.
func (e *Engine) applyFundingSettlement(ctx context.Context, settlementTime time.Time) error {
	settlements, err := e.store.GetFundingSettlements(settlementTime, settlementTime)
	if err != nil {
		return fmt.Errorf("backtest: load funding settlement at %s: %w", settlementTime, err)
	}
	if len(settlements) == 0 {
		return nil
	}

	s := settlements[0]
	fixingPrice, err := money.NewPrice(s.FixingPrice)
	if err != nil {
		return fmt.Errorf("backtest: funding settlement at %s has invalid fixing price: %w", settlementTime, err)
	}

	if _, err := e.executor.ApplyFundingSettlement(ctx, fixingPrice, s.FundingRate); err != nil {
		return fmt.Errorf("backtest: apply funding settlement at %s: %w", settlementTime, err)
	}
	return nil
}

func (e *Engine) stoplossFor(side money.Side, price money.Price) (money.Price, error) {
	if side == money.Buy {
		return price.ApplyDiscount(e.cfg.StoplossPercent)
	}
	gain, err := money.NewPercentage(e.cfg.StoplossPercent.AsF64())
	if err != nil {
		return money.Price{}, err
	}
	return price.ApplyGain(gain)
}
