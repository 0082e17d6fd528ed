package tradeutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/tradeutil"
)

func mustQty(t *testing.T, q uint64) money.Quantity {
	t.Helper()
	v, err := money.NewQuantity(q)
	require.NoError(t, err)
	return v
}

func mustPrice(t *testing.T, p float64) money.Price {
	t.Helper()
	v, err := money.NewPrice(p)
	require.NoError(t, err)
	return v
}

func mustLeverage(t *testing.T, l float64) money.Leverage {
	t.Helper()
	v, err := money.NewLeverage(l)
	require.NoError(t, err)
	return v
}

// Scenario 1: liquidation table, Q=1000, P_entry=110_000.
func TestEstimateLiquidationPrice_Table(t *testing.T) {
	q := mustQty(t, 1000)
	entry := mustPrice(t, 110_000)

	cases := []struct {
		side money.Side
		lev  float64
		want float64
	}{
		{money.Buy, money.LeverageMin, 55_000},
		{money.Buy, money.LeverageMax, 108_911},
		{money.Sell, money.LeverageMin, money.PriceMax},
		{money.Sell, money.LeverageMax, 111_111},
	}

	for _, c := range cases {
		lev := mustLeverage(t, c.lev)
		got := tradeutil.EstimateLiquidationPrice(c.side, q, entry, lev)
		assert.InDelta(t, c.want, got.AsF64(), 1.0, "side=%v lev=%v", c.side, c.lev)
	}
}

func TestEstimatePL_AntisymmetricAcrossSides(t *testing.T) {
	q := mustQty(t, 500)
	pa := mustPrice(t, 95_000)
	pb := mustPrice(t, 99_000)

	buy := tradeutil.EstimatePL(money.Buy, q, pa, pb)
	sell := tradeutil.EstimatePL(money.Sell, q, pa, pb)

	assert.InDelta(t, -buy, sell, 1e-6)
}

// Scenario 7: funding settlement, Q=10_000, P_entry=60_000, L=1, fixing=60_000, rate=0.0001.
// A long pays the fee out of margin; a short receives the same magnitude into balance.
func TestEvaluateFundingSettlement_BuyPaysSellReceives(t *testing.T) {
	q := mustQty(t, 10_000)
	entry := mustPrice(t, 60_000)
	lev := mustLeverage(t, 1)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)
	fixing := mustPrice(t, 60_000)

	buyFee, newMargin, newLev, newLiq, err := tradeutil.EvaluateFundingSettlement(
		money.Buy, q, entry, margin, fixing, 0.0001,
	)
	require.NoError(t, err)
	assert.EqualValues(t, 1667, buyFee)
	assert.Less(t, newMargin.AsI64(), margin.AsI64())
	assert.Greater(t, newLev.AsF64(), lev.AsF64())
	assert.NotEqual(t, 0.0, newLiq.AsF64())

	sellFee, sellMargin, sellLev, sellLiq, err := tradeutil.EvaluateFundingSettlement(
		money.Sell, q, entry, margin, fixing, 0.0001,
	)
	require.NoError(t, err)
	assert.EqualValues(t, -1667, sellFee)
	assert.Equal(t, margin.AsI64(), sellMargin.AsI64())
	assert.Equal(t, lev.AsF64(), sellLev.AsF64())
	assert.Equal(t, tradeutil.EstimateLiquidationPrice(money.Sell, q, entry, lev).AsF64(), sellLiq.AsF64())
}

// A funding fee that would exceed available margin is rejected rather than underflowing.
func TestEvaluateFundingSettlement_FeeExceedsMargin(t *testing.T) {
	q := mustQty(t, 10_000)
	entry := mustPrice(t, 60_000)
	lev := mustLeverage(t, money.LeverageMax)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)
	fixing := mustPrice(t, 60_000)

	_, _, _, _, err = tradeutil.EvaluateFundingSettlement(money.Buy, q, entry, margin, fixing, 1.0)
	assert.Error(t, err)
}

// Scenario 3: long cash-in (partial).
func TestEvaluateCashIn_LongPartial(t *testing.T) {
	q := mustQty(t, 1000)
	entry := mustPrice(t, 100_000)
	lev := mustLeverage(t, 10)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)
	market := mustPrice(t, 110_000)
	sl := mustPrice(t, 95_000)

	newPrice, newMargin, newLev, newLiq, newSL, err := tradeutil.EvaluateCashIn(
		money.Buy, q, margin, entry, &sl, market, 40_000,
	)
	require.NoError(t, err)

	assert.InDelta(t, 104_166.5, newPrice.AsF64(), 1.0)
	assert.Equal(t, margin.AsU64(), newMargin.AsU64())
	assert.InDelta(t, 9.6, newLev.AsF64(), 0.2)
	assert.InDelta(t, 94_339.5, newLiq.AsF64(), 2.0)
	require.NotNil(t, newSL)
	assert.Equal(t, sl.AsF64(), newSL.AsF64())
}

// Scenario 4: long cash-in (exceeds profit) — stoploss cleared.
func TestEvaluateCashIn_LongExceedsProfit(t *testing.T) {
	q := mustQty(t, 1000)
	entry := mustPrice(t, 100_000)
	lev := mustLeverage(t, 10)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)
	market := mustPrice(t, 110_000)
	sl := mustPrice(t, 95_000)

	newPrice, _, newLev, newLiq, newSL, err := tradeutil.EvaluateCashIn(
		money.Buy, q, margin, entry, &sl, market, 150_000,
	)
	require.NoError(t, err)

	assert.Equal(t, market.AsF64(), newPrice.AsF64())
	assert.InDelta(t, 22.22, newLev.AsF64(), 0.5)
	assert.InDelta(t, 105_263, newLiq.AsF64(), 2.0)
	assert.Nil(t, newSL)
}

// Scenario 5: short cash-in (full profit) — stoploss cleared.
func TestEvaluateCashIn_ShortFullProfit(t *testing.T) {
	q := mustQty(t, 1000)
	entry := mustPrice(t, 100_000)
	lev := mustLeverage(t, 10)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)
	market := mustPrice(t, 92_000)
	sl := mustPrice(t, 105_000)

	newPrice, newMargin, _, newLiq, newSL, err := tradeutil.EvaluateCashIn(
		money.Sell, q, margin, entry, &sl, market, 86_956,
	)
	require.NoError(t, err)

	assert.Equal(t, market.AsF64(), newPrice.AsF64())
	assert.Equal(t, margin.AsU64(), newMargin.AsU64())
	assert.InDelta(t, 101_321.5, newLiq.AsF64(), 2.0)
	assert.Nil(t, newSL)
}

func TestEvaluateOpenTradeParams_RejectsStoplossAboveEntryForLong(t *testing.T) {
	q := mustQty(t, 500)
	entry := mustPrice(t, 100_000)
	lev := mustLeverage(t, 5)
	margin, err := money.CalculateMargin(q, entry, lev)
	require.NoError(t, err)
	fee, err := money.NewPercentageCapped(0.1)
	require.NoError(t, err)

	sl := mustPrice(t, 100_500)

	_, _, _, err = tradeutil.EvaluateOpenTradeParams(money.Buy, q, margin, lev, entry, &sl, nil, fee)
	require.Error(t, err)
}
