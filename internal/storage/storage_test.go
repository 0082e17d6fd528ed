package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/storage"
)

func TestStore_CandleRoundTrip(t *testing.T) {
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	minute := time.Minute

	for i := 0; i < 3; i++ {
		c := candle.OHLC{
			Timestamp: base.Add(time.Duration(i) * minute),
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    10,
			UpdatedAt: base.Add(time.Duration(i) * minute),
			AllStable: true,
		}
		require.NoError(t, s.StoreCandle(minute, c))
	}

	got, err := s.GetCandles(minute, base, base.Add(10*minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[0].Timestamp.Equal(base))
	require.True(t, got[2].Timestamp.Equal(base.Add(2*minute)))
}

func TestStore_CandleRoundTrip_SeparatesResolutions(t *testing.T) {
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.StoreCandle(time.Minute, candle.OHLC{Timestamp: ts, Close: 1}))
	require.NoError(t, s.StoreCandle(5*time.Minute, candle.OHLC{Timestamp: ts, Close: 2}))

	oneMin, err := s.GetCandles(time.Minute, ts, ts)
	require.NoError(t, err)
	require.Len(t, oneMin, 1)
	require.Equal(t, 1.0, oneMin[0].Close)

	fiveMin, err := s.GetCandles(5*time.Minute, ts, ts)
	require.NoError(t, err)
	require.Len(t, fiveMin, 1)
	require.Equal(t, 2.0, fiveMin[0].Close)
}

func TestStore_FundingSettlementRoundTrip(t *testing.T) {
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		f := storage.FundingSettlement{
			ID:          "settlement",
			Time:        base.Add(time.Duration(i) * 8 * time.Hour),
			FixingPrice: 50000 + float64(i),
			FundingRate: 0.0001,
			CreatedAt:   base,
		}
		require.NoError(t, s.StoreFundingSettlement(f))
	}

	got, err := s.GetFundingSettlements(base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].Time.Before(got[1].Time))
}

func TestStore_GetCandles_EmptyResult(t *testing.T) {
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := s.GetCandles(time.Minute, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, got)
}
