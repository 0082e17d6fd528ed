package signal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/signal"
)

func mkCandle(close float64, volume float64, t time.Time) candle.OHLC {
	return candle.OHLC{Timestamp: t, Open: close, High: close, Low: close, Close: close, Volume: volume, AllStable: true}
}

func TestVWAPReversion_EmptyWindowHolds(t *testing.T) {
	e := signal.NewVWAPReversion(1.5)
	d, err := e.Evaluate(nil)
	require.NoError(t, err)
	require.Equal(t, signal.Hold, d.Action)
}

func TestVWAPReversion_FlatWindowHolds(t *testing.T) {
	e := signal.NewVWAPReversion(1.5)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []candle.OHLC
	for i := 0; i < 10; i++ {
		candles = append(candles, mkCandle(50000, 1, base.Add(time.Duration(i)*time.Minute)))
	}
	d, err := e.Evaluate(candles)
	require.NoError(t, err)
	require.Equal(t, signal.Hold, d.Action)
}

func TestVWAPReversion_PriceBelowVWAPSignalsLong(t *testing.T) {
	e := signal.NewVWAPReversion(1.0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []candle.OHLC
	for i := 0; i < 9; i++ {
		candles = append(candles, mkCandle(50000, 1, base.Add(time.Duration(i)*time.Minute)))
	}
	candles = append(candles, mkCandle(49000, 1, base.Add(9*time.Minute)))

	d, err := e.Evaluate(candles)
	require.NoError(t, err)
	require.Equal(t, signal.Long, d.Action)
	require.Less(t, d.PriceDist, 0.0)
}

func TestVWAPReversion_PriceAboveVWAPSignalsShort(t *testing.T) {
	e := signal.NewVWAPReversion(1.0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []candle.OHLC
	for i := 0; i < 9; i++ {
		candles = append(candles, mkCandle(50000, 1, base.Add(time.Duration(i)*time.Minute)))
	}
	candles = append(candles, mkCandle(51000, 1, base.Add(9*time.Minute)))

	d, err := e.Evaluate(candles)
	require.NoError(t, err)
	require.Equal(t, signal.Short, d.Action)
	require.Greater(t, d.PriceDist, 0.0)
}

func TestVWAPReversion_ZeroVolumeFallsBackToUnweightedMean(t *testing.T) {
	e := signal.NewVWAPReversion(1.0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []candle.OHLC
	for i := 0; i < 9; i++ {
		candles = append(candles, mkCandle(50000, 0, base.Add(time.Duration(i)*time.Minute)))
	}
	candles = append(candles, mkCandle(49000, 0, base.Add(9*time.Minute)))

	d, err := e.Evaluate(candles)
	require.NoError(t, err)
	require.Equal(t, signal.Long, d.Action)
}
