// Package signal implements the mean-reversion VWAP evaluator the backtest engine and the
// live trader drive trades through: it watches a consolidated candle window, computes a
// volume-weighted average price and its standard deviation, and signals a trade whenever the
// latest close strays far enough from it.
package signal

import (
	"math"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/money"
)

// Action is the trade direction a signal evaluation calls for.
type Action int

const (
	Hold Action = iota
	Long
	Short
)

func (a Action) String() string {
	switch a {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "hold"
	}
}

// Decision is the outcome of one Evaluate call: an Action plus, for Long/Short, the
// reference price and distance (in standard deviations) that triggered it.
type Decision struct {
	Action     Action
	Price      money.Price
	VWAP       float64
	PriceDist  float64 // (price - VWAP) / stdDev
}

// Evaluator is driven by the backtest engine and, in live trading, by cmd/trader's ticker
// loop after every tick: it receives the trailing window of consolidated candles at its
// configured resolution and lookback, oldest first, and returns a trade decision.
type Evaluator interface {
	Evaluate(candles []candle.OHLC) (Decision, error)
}

// VWAPReversion is a mean-reversion evaluator: it computes the volume-weighted average price
// and standard deviation over the supplied window and signals Long when the close is more
// than Threshold standard deviations below VWAP, Short when it is that far above, and Hold
// otherwise.
type VWAPReversion struct {
	// Threshold is the minimum |price distance| (in standard deviations) required to signal.
	Threshold float64
}

// NewVWAPReversion creates a VWAPReversion evaluator with the given standard-deviation
// threshold.
func NewVWAPReversion(threshold float64) *VWAPReversion {
	return &VWAPReversion{Threshold: threshold}
}

// Evaluate implements Evaluator.
func (v *VWAPReversion) Evaluate(candles []candle.OHLC) (Decision, error) {
	if len(candles) == 0 {
		return Decision{}, nil
	}

	vwap, stdDev := weightedVWAP(candles)
	if stdDev == 0 {
		return Decision{}, nil
	}

	last := candles[len(candles)-1]
	price, err := money.NewPrice(last.Close)
	if err != nil {
		return Decision{}, err
	}

	priceDist := (last.Close - vwap) / stdDev

	switch {
	case priceDist <= -v.Threshold:
		return Decision{Action: Long, Price: price, VWAP: vwap, PriceDist: priceDist}, nil
	case priceDist >= v.Threshold:
		return Decision{Action: Short, Price: price, VWAP: vwap, PriceDist: priceDist}, nil
	default:
		return Decision{Action: Hold, Price: price, VWAP: vwap, PriceDist: priceDist}, nil
	}
}

// weightedVWAP computes the volume-weighted average close price and its volume-weighted
// standard deviation over the window. Candles with zero total volume (as produced by the
// synchronizer's price-history backfill, which carries no volume data) fall back to an
// unweighted mean and population standard deviation of the close prices.
func weightedVWAP(candles []candle.OHLC) (vwap, stdDev float64) {
	var pv, vv float64
	for _, c := range candles {
		pv += c.Close * c.Volume
		vv += c.Volume
	}

	if vv == 0 {
		return unweightedVWAP(candles)
	}

	vwap = pv / vv

	var weightedVariance float64
	for _, c := range candles {
		d := c.Close - vwap
		weightedVariance += c.Volume * d * d
	}
	variance := weightedVariance / vv
	if variance > 0 {
		stdDev = math.Sqrt(variance)
	}
	return vwap, stdDev
}

func unweightedVWAP(candles []candle.OHLC) (mean, stdDev float64) {
	n := float64(len(candles))
	var sum float64
	for _, c := range candles {
		sum += c.Close
	}
	mean = sum / n

	var variance float64
	for _, c := range candles {
		d := c.Close - mean
		variance += d * d
	}
	variance /= n
	if variance > 0 {
		stdDev = math.Sqrt(variance)
	}
	return mean, stdDev
}
