package trade_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/trade"
)

func mkTrade(t *testing.T, id uuid.UUID, createdAt time.Time, side money.Side, entry float64) trade.TradeRunning {
	t.Helper()
	q, err := money.NewQuantity(1000)
	require.NoError(t, err)
	p, err := money.NewPrice(entry)
	require.NoError(t, err)
	lev, err := money.NewLeverage(10)
	require.NoError(t, err)
	margin, err := money.CalculateMargin(q, p, lev)
	require.NoError(t, err)
	liq, err := money.NewPrice(entry * 0.9)
	require.NoError(t, err)

	return trade.TradeRunning{
		TradeCore: trade.TradeCore{
			ID:          id,
			Side:        side,
			Quantity:    q,
			Margin:      margin,
			Leverage:    lev,
			Price:       p,
			EntryPrice:  p,
			Liquidation: liq,
			CreatedAt:   createdAt,
		},
	}
}

func TestRunningTradesMap_OrderingAndLookup(t *testing.T) {
	m := trade.NewRunningTradesMap()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()

	m.Add(mkTrade(t, id2, base.Add(2*time.Minute), money.Buy, 100_000), nil)
	m.Add(mkTrade(t, id1, base.Add(1*time.Minute), money.Sell, 101_000), nil)
	m.Add(mkTrade(t, id3, base.Add(3*time.Minute), money.Buy, 102_000), nil)

	require.Equal(t, 3, m.Len())
	assert.True(t, m.Contains(id2))

	asc := m.TradesAsc()
	require.Len(t, asc, 3)
	assert.Equal(t, id1, asc[0].ID)
	assert.Equal(t, id2, asc[1].ID)
	assert.Equal(t, id3, asc[2].ID)

	desc := m.TradesDesc()
	require.Len(t, desc, 3)
	assert.Equal(t, id3, desc[0].ID)
	assert.Equal(t, id1, desc[2].ID)

	got, _, ok := m.GetByID(id2)
	require.True(t, ok)
	assert.Equal(t, id2, got.ID)

	removed, _, ok := m.RemoveByID(id1)
	require.True(t, ok)
	assert.Equal(t, id1, removed.ID)
	assert.Equal(t, 2, m.Len())
	assert.False(t, m.Contains(id1))
}

func TestRunningTradesMap_UpdateInPlacePreservesOrder(t *testing.T) {
	m := trade.NewRunningTradesMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	tr := mkTrade(t, id, base, money.Buy, 100_000)
	m.Add(tr, nil)

	newPrice, err := money.NewPrice(105_000)
	require.NoError(t, err)
	tr.Price = newPrice
	ok := m.UpdateByID(id, tr, nil)
	require.True(t, ok)

	got, _, ok := m.GetByID(id)
	require.True(t, ok)
	assert.Equal(t, newPrice.AsF64(), got.Price.AsF64())
}

func TestClosedTradeHistory_RejectsUnclosedTrade(t *testing.T) {
	h := trade.NewClosedTradeHistory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	running := mkTrade(t, uuid.New(), base, money.Buy, 100_000)

	closed := trade.TradeClosed{TradeCore: running.TradeCore}
	err := h.Add(closed)
	assert.Error(t, err)
}

func TestClosedTradeHistory_AddAndOrder(t *testing.T) {
	h := trade.NewClosedTradeHistory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		running := mkTrade(t, uuid.New(), base.Add(time.Duration(i)*time.Minute), money.Buy, 100_000)
		closePrice, err := money.NewPrice(101_000)
		require.NoError(t, err)
		closed := trade.TradeClosed{
			TradeCore:  running.TradeCore,
			ClosePrice: closePrice,
			ClosedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		require.NoError(t, h.Add(closed))
	}

	assert.Equal(t, 3, h.Len())
	desc := h.TradesDesc()
	require.Len(t, desc, 3)
	assert.True(t, desc[0].CreatedAt.After(desc[2].CreatedAt))
}

func TestTradingState_Aggregates(t *testing.T) {
	m := trade.NewRunningTradesMap()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Add(mkTrade(t, uuid.New(), base, money.Buy, 100_000), nil)
	m.Add(mkTrade(t, uuid.New(), base.Add(time.Minute), money.Sell, 100_000), nil)

	closed := trade.NewClosedTradeHistory()
	marketPrice, err := money.NewPrice(105_000)
	require.NoError(t, err)

	state := trade.NewTradingState(m, closed, 1_000_000, marketPrice, base.Add(time.Hour), base, 0)

	assert.Equal(t, 1, state.RunningLongLen())
	assert.Equal(t, 1, state.RunningShortLen())
	assert.Equal(t, 2, state.RunningLen())
	assert.Equal(t, 0, state.ClosedLen())
	assert.NotEmpty(t, state.Summary())
	assert.NotEmpty(t, state.RunningTradesTable())
}
