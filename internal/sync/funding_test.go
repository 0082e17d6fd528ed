package sync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/storage"
	"github.com/flemosr/quantoxide-sub000/internal/sync"
)

func TestEvaluateFundingState_EmptyStoreReturnsLatest(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reach := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state, err := sync.EvaluateFundingState(context.Background(), store, reach, time.Hour, time.Now())
	require.NoError(t, err)
	require.True(t, state.HasMissing())

	rng, err := state.NextDownloadRange(true)
	require.NoError(t, err)
	require.Equal(t, sync.FundingLatest, rng.Kind)
}

func TestEvaluateFundingState_DetectsInteriorGap(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(12 * time.Hour), base.Add(36 * time.Hour)} // 24h skipped

	for _, ts := range times {
		require.NoError(t, store.StoreFundingSettlement(storage.FundingSettlement{
			ID: "s", Time: ts, FixingPrice: 50000, FundingRate: 0.0001, CreatedAt: base,
		}))
	}

	state, err := sync.EvaluateFundingState(context.Background(), store, base.AddDate(-1, 0, 0), 7*24*time.Hour, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.True(t, state.HasMissing())

	rng, err := state.NextDownloadRange(false)
	require.NoError(t, err)
	require.Equal(t, sync.FundingMissing, rng.Kind)
}

func TestEvaluateFundingState_NoGapsReturnsUpperBound(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.StoreFundingSettlement(storage.FundingSettlement{
		ID: "s", Time: base, FixingPrice: 50000, FundingRate: 0.0001, CreatedAt: base,
	}))
	require.NoError(t, store.StoreFundingSettlement(storage.FundingSettlement{
		ID: "s", Time: base.Add(12 * time.Hour), FixingPrice: 50100, FundingRate: 0.0001, CreatedAt: base,
	}))

	state, err := sync.EvaluateFundingState(context.Background(), store, base.AddDate(-1, 0, 0), time.Hour, base.Add(12*time.Hour))
	require.NoError(t, err)

	rng, err := state.NextDownloadRange(false)
	require.NoError(t, err)
	require.Equal(t, sync.FundingUpperBound, rng.Kind)
	require.True(t, rng.From.Equal(base.Add(12*time.Hour)))
}
