package consolidator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/consolidator"
)

func minuteCandle(t time.Time, open, high, low, close, volume float64) candle.OHLC {
	return candle.OHLC{Timestamp: t, Open: open, High: high, Low: low, Close: close, Volume: volume, AllStable: true}
}

func TestRuntimeConsolidator_OneMinutePassthrough(t *testing.T) {
	c := consolidator.New(time.Minute, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Push(minuteCandle(base, 100, 101, 99, 100.5, 10)))
	require.NoError(t, c.Push(minuteCandle(base.Add(time.Minute), 100.5, 102, 100, 101, 20)))

	assert.Equal(t, 2, c.CompletedCount())
	candles := c.GetCandles()
	require.Len(t, candles, 2)
	assert.Equal(t, 100.5, candles[1].Open)
}

func TestRuntimeConsolidator_AggregatesIntoFiveMinuteBucket(t *testing.T) {
	c := consolidator.New(5*time.Minute, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Push(minuteCandle(base, 100, 105, 95, 101, 10)))
	require.NoError(t, c.Push(minuteCandle(base.Add(time.Minute), 101, 110, 98, 103, 10)))
	require.NoError(t, c.Push(minuteCandle(base.Add(2*time.Minute), 103, 108, 100, 106, 10)))

	candles := c.GetCandles()
	require.Len(t, candles, 1)
	cur := candles[0]
	assert.Equal(t, 100.0, cur.Open)
	assert.Equal(t, 106.0, cur.Close)
	assert.Equal(t, 110.0, cur.High)
	assert.Equal(t, 95.0, cur.Low)
	assert.Equal(t, 30.0, cur.Volume)
	assert.False(t, cur.AllStable)

	require.NoError(t, c.Push(minuteCandle(base.Add(5*time.Minute), 106, 107, 104, 105, 5)))
	assert.Equal(t, 1, c.CompletedCount())
	candles = c.GetCandles()
	require.Len(t, candles, 2)
	assert.True(t, candles[0].AllStable)
	assert.Equal(t, 106.0, candles[0].Close)
}

func TestRuntimeConsolidator_RejectsOutOfOrder(t *testing.T) {
	c := consolidator.New(5*time.Minute, 10)
	base := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)

	require.NoError(t, c.Push(minuteCandle(base, 100, 101, 99, 100, 1)))
	err := c.Push(minuteCandle(base.Add(-time.Minute), 100, 101, 99, 100, 1))
	assert.Error(t, err)
}

func TestRuntimeConsolidator_TrimsToLookback(t *testing.T) {
	c := consolidator.New(time.Minute, 2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Push(minuteCandle(base.Add(time.Duration(i)*time.Minute), 100, 101, 99, 100, 1)))
	}

	assert.Equal(t, 2, c.CompletedCount())
}

func TestMultiResolutionConsolidator_FansOut(t *testing.T) {
	m := consolidator.NewMulti(map[time.Duration]int{
		time.Minute:     10,
		5 * time.Minute: 10,
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		require.NoError(t, m.Push(minuteCandle(base.Add(time.Duration(i)*time.Minute), 100, 101, 99, 100, 1)))
	}

	assert.Equal(t, 6, m.For(time.Minute).CompletedCount())
	assert.Equal(t, 1, m.For(5*time.Minute).CompletedCount())
}
