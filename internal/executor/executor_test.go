package executor_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/executor"
	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/trade"
)

func tick(t *testing.T, e *executor.SimulatedTradeExecutor, price float64) {
	t.Helper()
	require.NoError(t, e.CandleUpdate(context.Background(), candle.OHLC{
		Open: price, High: price, Low: price, Close: price,
	}))
}

func TestSimulatedTradeExecutor_LongProfit(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(500_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(1)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{
		Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev,
	})
	require.NoError(t, err)

	tick(t, e, 110_000)

	state := e.TradingState()
	require.Equal(t, 1, state.RunningLen())
	require.True(t, state.RunningPL() > 0)

	require.NoError(t, e.Close(context.Background(), id))
	state = e.TradingState()
	require.Equal(t, 0, state.RunningLen())
	require.Equal(t, 1, state.ClosedLen())
	require.True(t, state.RealizedPL() > 0)
}

func TestSimulatedTradeExecutor_TrailingStoplossLong(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(500_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(1)
	require.NoError(t, err)
	takeprofit, err := money.NewPrice(104_000)
	require.NoError(t, err)
	trailingPct, err := money.NewPercentageCapped(2)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{
		Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev,
		Takeprofit: &takeprofit, Trailing: &trailingPct,
	})
	require.NoError(t, err)

	tr, _, ok := mustGetRunning(t, e, id)
	require.True(t, ok)
	require.NotNil(t, tr.Stoploss)
	require.InDelta(t, 98_000, tr.Stoploss.AsF64(), 1.0)

	tick(t, e, 102_000)
	tr, _, ok = mustGetRunning(t, e, id)
	require.True(t, ok)
	require.InDelta(t, 99_960, tr.Stoploss.AsF64(), 1.0)

	tick(t, e, 99_960.5)
	tr, _, ok = mustGetRunning(t, e, id)
	require.True(t, ok)
	require.InDelta(t, 99_960, tr.Stoploss.AsF64(), 1.0)

	require.NoError(t, e.CandleUpdate(context.Background(), candle.OHLC{
		Open: 99_960, High: 99_960, Low: 99_960, Close: 99_960,
	}))

	state := e.TradingState()
	require.Equal(t, 0, state.RunningLen())
	require.Equal(t, 1, state.ClosedLen())
}

func mustGetRunning(t *testing.T, e *executor.SimulatedTradeExecutor, id uuid.UUID) (trade.TradeRunning, *trade.TrailingStoploss, bool) {
	t.Helper()
	return e.TradingState().RunningMap().GetByID(id)
}

// A gap candle that opens and closes entirely below a long's liquidation price must still
// close it: one-sided crossing (low <= liquidation), not two-sided containment.
func TestSimulatedTradeExecutor_LiquidationTriggersOnGapCandle(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(5_000_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(10)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{
		Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev,
	})
	require.NoError(t, err)

	tr, _, ok := mustGetRunning(t, e, id)
	require.True(t, ok)
	liq := tr.Liquidation.AsF64()
	require.Greater(t, liq, 0.0)

	gapLow := liq - 2_000
	gapHigh := liq - 1_000
	require.NoError(t, e.CandleUpdate(context.Background(), candle.OHLC{
		Open: gapHigh, High: gapHigh, Low: gapLow, Close: gapLow,
	}))

	state := e.TradingState()
	require.Equal(t, 0, state.RunningLen(), "gap candle entirely past liquidation must still close the trade")
	require.Equal(t, 1, state.ClosedLen())
}

// Mirror of the above for a short: the gap must be entirely above liquidation.
func TestSimulatedTradeExecutor_LiquidationTriggersOnGapCandleShort(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(5_000_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(10)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{
		Side: money.Sell, Quantity: q, Margin: margin, Leverage: lev,
	})
	require.NoError(t, err)

	tr, _, ok := mustGetRunning(t, e, id)
	require.True(t, ok)
	liq := tr.Liquidation.AsF64()
	require.Greater(t, liq, 0.0)

	gapLow := liq + 1_000
	gapHigh := liq + 2_000
	require.NoError(t, e.CandleUpdate(context.Background(), candle.OHLC{
		Open: gapLow, High: gapHigh, Low: gapLow, Close: gapHigh,
	}))

	state := e.TradingState()
	require.Equal(t, 0, state.RunningLen())
	require.Equal(t, 1, state.ClosedLen())
}

// A gap candle entirely above a long's takeprofit must close it at the takeprofit price,
// even though the candle never revisits the entry price.
func TestSimulatedTradeExecutor_TakeprofitTriggersOnGapCandle(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(500_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(1)
	require.NoError(t, err)
	takeprofit, err := money.NewPrice(104_000)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{
		Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev,
		Takeprofit: &takeprofit,
	})
	require.NoError(t, err)

	require.NoError(t, e.CandleUpdate(context.Background(), candle.OHLC{
		Open: 106_000, High: 108_000, Low: 106_000, Close: 107_000,
	}))

	state := e.TradingState()
	require.Equal(t, 0, state.RunningLen())
	require.Equal(t, 1, state.ClosedLen())
	closed := state.ClosedHistory().TradesDesc()
	require.Len(t, closed, 1)
	require.InDelta(t, 104_000, closed[0].ClosePrice.AsF64(), 1.0)
}

// A gap candle entirely below a long's fixed stoploss (but above liquidation) must close it
// at the stoploss price.
func TestSimulatedTradeExecutor_FixedStoplossTriggersOnGapCandle(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(500_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(1)
	require.NoError(t, err)
	stoploss, err := money.NewPrice(96_000)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{
		Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev,
		Stoploss: &stoploss,
	})
	require.NoError(t, err)

	require.NoError(t, e.CandleUpdate(context.Background(), candle.OHLC{
		Open: 95_500, High: 95_800, Low: 95_200, Close: 95_400,
	}))

	state := e.TradingState()
	require.Equal(t, 0, state.RunningLen())
	require.Equal(t, 1, state.ClosedLen())
	closed := state.ClosedHistory().TradesDesc()
	require.Len(t, closed, 1)
	require.InDelta(t, 96_000, closed[0].ClosePrice.AsF64(), 1.0)
}

func TestSimulatedTradeExecutor_CloseSideClosesOnlyMatchingSide(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(500_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(1)
	require.NoError(t, err)

	_, err = e.Open(context.Background(), executor.OpenParams{Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev})
	require.NoError(t, err)
	_, err = e.Open(context.Background(), executor.OpenParams{Side: money.Sell, Quantity: q, Margin: margin, Leverage: lev})
	require.NoError(t, err)

	require.NoError(t, e.CloseSide(context.Background(), money.Buy))

	state := e.TradingState()
	require.Equal(t, 1, state.RunningLen())
	require.Equal(t, 0, state.RunningLongLen())
	require.Equal(t, 1, state.RunningShortLen())
	require.Equal(t, 1, state.ClosedLen())
}

func TestSimulatedTradeExecutor_AddMarginReducesLeverage(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 100_000)

	q, err := money.NewQuantity(500)
	require.NoError(t, err)
	margin, err := money.NewMargin(500_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(1)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev})
	require.NoError(t, err)

	require.NoError(t, e.AddMargin(context.Background(), id, 100_000))

	tr, _, ok := mustGetRunning(t, e, id)
	require.True(t, ok)
	require.Equal(t, uint64(600_000), tr.Margin.AsU64())
	require.Less(t, tr.Leverage.AsF64(), lev.AsF64())
}

func TestSimulatedTradeExecutor_ApplyFundingSettlement(t *testing.T) {
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)
	e := executor.NewSimulatedTradeExecutor(10_000_000, fee, 10)

	tick(t, e, 60_000)

	q, err := money.NewQuantity(10_000)
	require.NoError(t, err)
	entry, err := money.NewPrice(60_000)
	require.NoError(t, err)
	lev, err := money.NewLeverage(10)
	require.NoError(t, err)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)

	id, err := e.Open(context.Background(), executor.OpenParams{Side: money.Buy, Quantity: q, Margin: margin, Leverage: lev})
	require.NoError(t, err)

	preMargin, _, ok := mustGetRunning(t, e, id)
	require.True(t, ok)

	fixing, err := money.NewPrice(60_000)
	require.NoError(t, err)
	net, err := e.ApplyFundingSettlement(context.Background(), fixing, 0.0001)
	require.NoError(t, err)
	require.EqualValues(t, 1667, net)

	postMargin, _, ok := mustGetRunning(t, e, id)
	require.True(t, ok)
	require.Less(t, postMargin.Margin.AsU64(), preMargin.Margin.AsU64())

	state := e.TradingState()
	require.EqualValues(t, 1667, state.FundingFees())
}
