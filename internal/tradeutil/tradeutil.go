// Package tradeutil implements the closed-form trade-math formulas: liquidation price,
// profit/loss, the price-from-P/L inverse, opening/closing fees, open-trade parameter
// validation, added-margin, cash-in, collateral-delta-for-liquidation, and new-stoploss
// validation. Every function is pure; none perform I/O or hold state.
package tradeutil

import (
	"math"

	"github.com/flemosr/quantoxide-sub000/internal/money"
)

// EstimateLiquidationPrice calculates the price at which a position would be liquidated.
//
// Uses a conservative, floored margin to understate the effective collateral, which
// produces a more conservative (closer-to-entry) liquidation price, matching values
// reported by the reference exchange.
func EstimateLiquidationPrice(side money.Side, quantity money.Quantity, entryPrice money.Price, leverage money.Leverage) money.Price {
	q := quantity.AsF64()
	p := entryPrice.AsF64()
	l := leverage.AsF64()

	a := 1.0 / p

	flooredMargin := math.Floor(q * money.SatsPerBTC / p / l)
	b := flooredMargin / money.SatsPerBTC / q

	var liquidationCalc float64
	switch side {
	case money.Buy:
		liquidationCalc = 1.0 / (a + b)
	case money.Sell:
		liquidationCalc = 1.0 / math.Max(a-b, 0)
	}

	return money.ClampPrice(liquidationCalc)
}

// EstimatePL calculates the profit or loss, in satoshis, of a position moving from
// startPrice to endPrice.
func EstimatePL(side money.Side, quantity money.Quantity, startPrice, endPrice money.Price) float64 {
	sp := startPrice.AsF64()
	ep := endPrice.AsF64()

	var inverseDelta float64
	switch side {
	case money.Buy:
		inverseDelta = money.SatsPerBTC/sp - money.SatsPerBTC/ep
	case money.Sell:
		inverseDelta = money.SatsPerBTC/ep - money.SatsPerBTC/sp
	}

	return quantity.AsF64() * inverseDelta
}

// EstimatePriceFromPL solves EstimatePL for endPrice given a target pl in satoshis.
func EstimatePriceFromPL(side money.Side, quantity money.Quantity, startPrice money.Price, pl float64) money.Price {
	sp := startPrice.AsF64()
	q := quantity.AsF64()

	inverseDelta := pl / q

	var inverseEndPrice float64
	switch side {
	case money.Buy:
		inverseEndPrice = (money.SatsPerBTC / sp) - inverseDelta
	case money.Sell:
		inverseEndPrice = (money.SatsPerBTC / sp) + inverseDelta
	}

	return money.ClampPrice(money.SatsPerBTC / inverseEndPrice)
}

// EvaluateClosingFee computes the trading fee, in satoshis, charged for closing a
// position of the given quantity at closePrice.
func EvaluateClosingFee(feePerc money.PercentageCapped, quantity money.Quantity, closePrice money.Price) uint64 {
	feeCalc := money.SatsPerBTC * feePerc.AsF64() / 100.0
	return uint64(math.Floor(feeCalc * quantity.AsF64() / closePrice.AsF64()))
}

// ValidationError carries the offending values inline so logs are self-describing, per the
// error-handling design's requirement that trade-math errors name the values involved.
type ValidationError struct {
	Kind string
	Vals map[string]float64
}

func (e *ValidationError) Error() string {
	msg := "tradeutil: " + e.Kind
	for k, v := range e.Vals {
		msg += " " + k + "=" + money.ClampPrice(v).String()
	}
	return msg
}

func newValidationError(kind string, vals map[string]float64) *ValidationError {
	return &ValidationError{Kind: kind, Vals: vals}
}

// EvaluateOpenTradeParams validates stoploss/takeprofit against the liquidation and entry
// price and computes the opening/closing-fee-reserved pair, per side.
func EvaluateOpenTradeParams(
	side money.Side,
	quantity money.Quantity,
	margin money.Margin,
	leverage money.Leverage,
	entryPrice money.Price,
	stoploss *money.Price,
	takeprofit *money.Price,
	feePerc money.PercentageCapped,
) (liquidation money.Price, openingFee, closingFeeReserved uint64, err error) {
	liquidation = EstimateLiquidationPrice(side, quantity, entryPrice, leverage)

	switch side {
	case money.Buy:
		if stoploss != nil {
			if stoploss.AsF64() < liquidation.AsF64() {
				return money.Price{}, 0, 0, newValidationError("stoploss_below_liquidation_long", map[string]float64{
					"stoploss": stoploss.AsF64(), "liquidation": liquidation.AsF64(),
				})
			}
			if stoploss.AsF64() >= entryPrice.AsF64() {
				return money.Price{}, 0, 0, newValidationError("stoploss_above_entry_for_long", map[string]float64{
					"stoploss": stoploss.AsF64(), "entry_price": entryPrice.AsF64(),
				})
			}
		}
		if takeprofit != nil && takeprofit.AsF64() <= entryPrice.AsF64() {
			return money.Price{}, 0, 0, newValidationError("takeprofit_below_entry_for_long", map[string]float64{
				"takeprofit": takeprofit.AsF64(), "entry_price": entryPrice.AsF64(),
			})
		}
	case money.Sell:
		if stoploss != nil {
			if stoploss.AsF64() > liquidation.AsF64() {
				return money.Price{}, 0, 0, newValidationError("stoploss_above_liquidation_short", map[string]float64{
					"stoploss": stoploss.AsF64(), "liquidation": liquidation.AsF64(),
				})
			}
			if stoploss.AsF64() <= entryPrice.AsF64() {
				return money.Price{}, 0, 0, newValidationError("stoploss_below_entry_for_short", map[string]float64{
					"stoploss": stoploss.AsF64(), "entry_price": entryPrice.AsF64(),
				})
			}
		}
		if takeprofit != nil && takeprofit.AsF64() >= entryPrice.AsF64() {
			return money.Price{}, 0, 0, newValidationError("takeprofit_above_entry_for_short", map[string]float64{
				"takeprofit": takeprofit.AsF64(), "entry_price": entryPrice.AsF64(),
			})
		}
	}

	feeCalc := money.SatsPerBTC * feePerc.AsF64() / 100.0
	openingFee = uint64(math.Floor(feeCalc * quantity.AsF64() / entryPrice.AsF64()))
	closingFeeReserved = uint64(math.Floor(feeCalc * quantity.AsF64() / liquidation.AsF64()))

	return liquidation, openingFee, closingFeeReserved, nil
}

// EvaluateNewStoploss validates a new stoploss for an existing trade during a trailing
// update or an explicit user change.
func EvaluateNewStoploss(side money.Side, liquidation money.Price, takeprofit *money.Price, marketPrice, newStoploss money.Price) error {
	switch side {
	case money.Buy:
		if newStoploss.AsF64() < liquidation.AsF64() {
			return newValidationError("stoploss_below_liquidation_long", map[string]float64{
				"stoploss": newStoploss.AsF64(), "liquidation": liquidation.AsF64(),
			})
		}
		if newStoploss.AsF64() >= marketPrice.AsF64() {
			return newValidationError("new_stoploss_not_below_market_for_long", map[string]float64{
				"new_stoploss": newStoploss.AsF64(), "market_price": marketPrice.AsF64(),
			})
		}
		if takeprofit != nil && newStoploss.AsF64() >= takeprofit.AsF64() {
			return newValidationError("new_stoploss_not_below_takeprofit_for_long", map[string]float64{
				"new_stoploss": newStoploss.AsF64(), "takeprofit": takeprofit.AsF64(),
			})
		}
	case money.Sell:
		if newStoploss.AsF64() > liquidation.AsF64() {
			return newValidationError("stoploss_above_liquidation_short", map[string]float64{
				"stoploss": newStoploss.AsF64(), "liquidation": liquidation.AsF64(),
			})
		}
		if newStoploss.AsF64() <= marketPrice.AsF64() {
			return newValidationError("new_stoploss_not_above_market_for_short", map[string]float64{
				"new_stoploss": newStoploss.AsF64(), "market_price": marketPrice.AsF64(),
			})
		}
		if takeprofit != nil && newStoploss.AsF64() <= takeprofit.AsF64() {
			return newValidationError("new_stoploss_not_above_takeprofit_for_short", map[string]float64{
				"new_stoploss": newStoploss.AsF64(), "takeprofit": takeprofit.AsF64(),
			})
		}
	}
	return nil
}

// EvaluateAddedMargin calculates the new margin, leverage, and liquidation price from
// adding amount satoshis of collateral to a running position.
func EvaluateAddedMargin(side money.Side, quantity money.Quantity, price money.Price, currentMargin money.Margin, amount uint64) (newMargin money.Margin, newLeverage money.Leverage, newLiquidation money.Price, err error) {
	newMargin, err = money.NewMargin(currentMargin.AsU64() + amount)
	if err != nil {
		return money.Margin{}, money.Leverage{}, money.Price{}, err
	}

	newLeverage, err = money.TryCalculateLeverage(quantity, newMargin, price)
	if err != nil {
		return money.Margin{}, money.Leverage{}, money.Price{}, err
	}

	newLiquidation = EstimateLiquidationPrice(side, quantity, price, newLeverage)
	return newMargin, newLeverage, newLiquidation, nil
}

// EvaluateCashIn calculates how extracting amount satoshis from a running position
// affects its effective price, margin, leverage, liquidation, and stoploss. Profit is
// drawn first, margin second; the stoploss is dropped if it becomes invalid.
func EvaluateCashIn(
	side money.Side,
	quantity money.Quantity,
	margin money.Margin,
	price money.Price,
	stoploss *money.Price,
	marketPrice money.Price,
	amount uint64,
) (newPrice money.Price, newMargin money.Margin, newLeverage money.Leverage, newLiquidation money.Price, newStoploss *money.Price, err error) {
	currentPL := EstimatePL(side, quantity, price, marketPrice)

	var remaining uint64
	if currentPL > 0 {
		if amount < uint64(currentPL) {
			newPrice = EstimatePriceFromPL(side, quantity, price, float64(amount))
			remaining = 0
		} else {
			newPrice = marketPrice
			remaining = amount - uint64(currentPL)
		}
	} else {
		newPrice = price
		remaining = amount
	}

	if remaining == 0 {
		newMargin = margin
	} else {
		reduced := margin.AsU64()
		if remaining > reduced {
			reduced = 0
		} else {
			reduced -= remaining
		}
		newMargin, err = money.NewMargin(reduced)
		if err != nil {
			return money.Price{}, money.Margin{}, money.Leverage{}, money.Price{}, nil, err
		}
	}

	newLeverage, err = money.TryCalculateLeverage(quantity, newMargin, newPrice)
	if err != nil {
		return money.Price{}, money.Margin{}, money.Leverage{}, money.Price{}, nil, err
	}
	newLiquidation = EstimateLiquidationPrice(side, quantity, newPrice, newLeverage)

	if stoploss != nil {
		var valid bool
		switch side {
		case money.Buy:
			valid = newLiquidation.AsF64() <= stoploss.AsF64()
		case money.Sell:
			valid = newLiquidation.AsF64() >= stoploss.AsF64()
		}
		if valid {
			sl := *stoploss
			newStoploss = &sl
		}
	}

	return newPrice, newMargin, newLeverage, newLiquidation, newStoploss, nil
}

// EvaluateFundingSettlement computes the funding fee (in satoshis) a running position owes
// or receives at a settlement with the given fixing price and funding rate, and the
// resulting margin/leverage/liquidation. A positive fee means the trade pays: it is
// deducted from margin and leverage/liquidation are recomputed. A non-positive fee means
// the trade receives |fee|, credited to balance by the caller; margin is returned
// unchanged, with the leverage it implies (clamped into the valid range, since margin was
// rounded up when the trade opened) and the matching liquidation.
func EvaluateFundingSettlement(
	side money.Side,
	quantity money.Quantity,
	price money.Price,
	margin money.Margin,
	fixingPrice money.Price,
	fundingRate float64,
) (fee int64, newMargin money.Margin, newLeverage money.Leverage, newLiquidation money.Price, err error) {
	raw := quantity.AsF64() / fixingPrice.AsF64() * fundingRate * money.SatsPerBTC

	var feeF float64
	switch side {
	case money.Buy:
		feeF = raw
	case money.Sell:
		feeF = -raw
	}
	fee = int64(math.Round(feeF))

	if fee <= 0 {
		rawLeverage := quantity.AsF64() * money.SatsPerBTC / (margin.AsF64() * price.AsF64())
		newLeverage, err = money.NewLeverage(math.Min(math.Max(rawLeverage, money.LeverageMin), money.LeverageMax))
		if err != nil {
			return 0, money.Margin{}, money.Leverage{}, money.Price{}, err
		}
		newLiquidation = EstimateLiquidationPrice(side, quantity, price, newLeverage)
		return fee, margin, newLeverage, newLiquidation, nil
	}

	remaining := margin.AsI64() - fee
	if remaining < money.MarginMin {
		return 0, money.Margin{}, money.Leverage{}, money.Price{}, newValidationError("funding_fee_exceeds_margin", map[string]float64{
			"fee": float64(fee), "margin": margin.AsF64(),
		})
	}
	newMargin, err = money.NewMargin(uint64(remaining))
	if err != nil {
		return 0, money.Margin{}, money.Leverage{}, money.Price{}, err
	}
	newLeverage, err = money.TryCalculateLeverage(quantity, newMargin, price)
	if err != nil {
		return 0, money.Margin{}, money.Leverage{}, money.Price{}, err
	}
	newLiquidation = EstimateLiquidationPrice(side, quantity, price, newLeverage)

	return fee, newMargin, newLeverage, newLiquidation, nil
}

// EstimateMarginForLiquidation solves EstimateLiquidationPrice for the margin that would
// yield targetLiquidation at the given price (taken as the entry-price proxy), for use by
// EvaluateCollateralDeltaForLiquidation. Not present verbatim in the formula module this
// package is ported from; derived algebraically as the inverse of
// EstimateLiquidationPrice, documented in DESIGN.md.
func EstimateMarginForLiquidation(side money.Side, quantity money.Quantity, price, targetLiquidation money.Price) (money.Margin, error) {
	q := quantity.AsF64()
	p := price.AsF64()
	tl := targetLiquidation.AsF64()

	a := 1.0 / p

	var b float64
	switch side {
	case money.Buy:
		b = 1.0/tl - a
	case money.Sell:
		b = a - 1.0/tl
	}

	marginCalc := b * money.SatsPerBTC * q
	if marginCalc < 0 {
		marginCalc = 0
	}

	return money.NewMargin(uint64(math.Ceil(marginCalc)))
}

// EvaluateCollateralDeltaForLiquidation returns the satoshi delta needed to move the
// liquidation price to targetLiquidation at the current marketPrice: positive means
// margin to add, negative means satoshis to cash in.
func EvaluateCollateralDeltaForLiquidation(
	side money.Side,
	quantity money.Quantity,
	margin money.Margin,
	price money.Price,
	liquidation money.Price,
	targetLiquidation money.Price,
	marketPrice money.Price,
) (int64, error) {
	if targetLiquidation.AsF64() == liquidation.AsF64() {
		return 0, nil
	}

	targetCollateral, err := EstimateMarginForLiquidation(side, quantity, marketPrice, targetLiquidation)
	if err != nil {
		return 0, err
	}

	pl := EstimatePL(side, quantity, price, marketPrice)

	return targetCollateral.AsI64() - margin.AsI64() - int64(math.Round(pl)), nil
}
