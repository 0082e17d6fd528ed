// Package money implements the validated numeric types the trading domain is built on:
// Price, Quantity, Margin, Leverage, Percentage, PercentageCapped, and Side. Every
// constructor is fallible and rejects out-of-range input; there is no way to construct an
// invalid value outside this package.
package money

import (
	"fmt"
	"math"
	"strings"
)

// SatsPerBTC is the number of satoshis (1e-8 BTC) in one bitcoin.
const SatsPerBTC = 100_000_000

// Side is the direction of a position. Buy is a long, Sell is a short.
type Side int

const (
	Buy Side = iota
	Sell
)

// String renders the compact exchange literal ("b"/"s"), matching the egress format
// described for the LN Markets wire protocol.
func (s Side) String() string {
	switch s {
	case Buy:
		return "b"
	case Sell:
		return "s"
	default:
		return "?"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide accepts both the compact ("b"/"s") and long-form ("buy"/"sell") literals,
// case-insensitively, per the ingress tolerance required of the exchange client.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(raw) {
	case "b", "buy":
		return Buy, nil
	case "s", "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("money: unrecognized side literal %q", raw)
	}
}

// Price is USD per BTC, bounded and rounded to the nearest integer.
type Price struct {
	value float64
}

const (
	PriceMin = 0.01
	PriceMax = 100_000_000.0
)

// NewPrice validates and rounds p to the nearest integer, rejecting values outside
// [PriceMin, PriceMax].
func NewPrice(p float64) (Price, error) {
	if math.IsNaN(p) || p < PriceMin || p > PriceMax {
		return Price{}, fmt.Errorf("money: price %.8f out of range [%.2f, %.2f]", p, PriceMin, PriceMax)
	}
	return Price{value: math.Round(p)}, nil
}

// ClampPrice saturates p into [PriceMin, PriceMax] instead of rejecting it.
func ClampPrice(p float64) Price {
	if math.IsNaN(p) {
		p = PriceMin
	}
	if p < PriceMin {
		p = PriceMin
	}
	if p > PriceMax {
		p = PriceMax
	}
	return Price{value: math.Round(p)}
}

// AsF64 returns the underlying float64 value.
func (p Price) AsF64() float64 { return p.value }

func (p Price) String() string { return fmt.Sprintf("%.1f", p.value) }

// ApplyDiscount returns p * (1 - d/100), rounded and bounds-checked.
func (p Price) ApplyDiscount(d PercentageCapped) (Price, error) {
	return NewPrice(p.value * (1 - d.AsF64()/100))
}

// ApplyGain returns p * (1 + g/100), rounded and bounds-checked.
func (p Price) ApplyGain(g Percentage) (Price, error) {
	return NewPrice(p.value * (1 + g.AsF64()/100))
}

// Quantity is a positive integer USD notional.
type Quantity struct {
	value uint64
}

const (
	QuantityMin = 1
	QuantityMax = 500_000
)

// NewQuantity validates q against [QuantityMin, QuantityMax].
func NewQuantity(q uint64) (Quantity, error) {
	if q < QuantityMin || q > QuantityMax {
		return Quantity{}, fmt.Errorf("money: quantity %d out of range [%d, %d]", q, QuantityMin, QuantityMax)
	}
	return Quantity{value: q}, nil
}

func (q Quantity) AsU64() uint64    { return q.value }
func (q Quantity) AsF64() float64   { return float64(q.value) }
func (q Quantity) String() string   { return fmt.Sprintf("%d", q.value) }

// Margin is a positive integer number of satoshis.
type Margin struct {
	value uint64
}

const MarginMin = 1

// NewMargin validates m against MarginMin.
func NewMargin(m uint64) (Margin, error) {
	if m < MarginMin {
		return Margin{}, fmt.Errorf("money: margin %d below minimum %d", m, MarginMin)
	}
	return Margin{value: m}, nil
}

// CalculateMargin returns ceil(Q * SatsPerBTC / (P * L)).
func CalculateMargin(q Quantity, p Price, l Leverage) (Margin, error) {
	raw := q.AsF64() * SatsPerBTC / (p.AsF64() * l.AsF64())
	return NewMargin(uint64(math.Ceil(raw)))
}

func (m Margin) AsU64() uint64  { return m.value }
func (m Margin) AsI64() int64   { return int64(m.value) }
func (m Margin) String() string { return fmt.Sprintf("%d", m.value) }

// Leverage is a real number in [LeverageMin, LeverageMax].
type Leverage struct {
	value float64
}

const (
	LeverageMin = 1.0
	LeverageMax = 100.0
)

// NewLeverage validates l against [LeverageMin, LeverageMax].
func NewLeverage(l float64) (Leverage, error) {
	if math.IsNaN(l) || l < LeverageMin || l > LeverageMax {
		return Leverage{}, fmt.Errorf("money: leverage %.4f out of range [%.1f, %.1f]", l, LeverageMin, LeverageMax)
	}
	return Leverage{value: l}, nil
}

// TryCalculateLeverage computes Q * SatsPerBTC / (M * P) and validates the result.
func TryCalculateLeverage(q Quantity, m Margin, p Price) (Leverage, error) {
	raw := q.AsF64() * SatsPerBTC / (m.AsF64() * p.AsF64())
	return NewLeverage(raw)
}

func (l Leverage) AsF64() float64 { return l.value }
func (l Leverage) String() string { return fmt.Sprintf("%.2f", l.value) }

func (m Margin) AsF64() float64 { return float64(m.value) }

// Percentage is a real number >= 0, uncapped. Used for gains.
type Percentage struct {
	value float64
}

// NewPercentage validates p >= 0.
func NewPercentage(p float64) (Percentage, error) {
	if math.IsNaN(p) || p < 0 {
		return Percentage{}, fmt.Errorf("money: percentage %.4f must be >= 0", p)
	}
	return Percentage{value: p}, nil
}

func (p Percentage) AsF64() float64 { return p.value }

// PercentageCapped is a real number in (0, 100]. Used for discounts, fees, trailing step.
type PercentageCapped struct {
	value float64
}

const (
	PercentageCappedMin = 0.0001
	PercentageCappedMax = 100.0
)

// NewPercentageCapped validates p against (0, 100].
func NewPercentageCapped(p float64) (PercentageCapped, error) {
	if math.IsNaN(p) || p <= 0 || p > PercentageCappedMax {
		return PercentageCapped{}, fmt.Errorf("money: capped percentage %.4f out of range (0, %.1f]", p, PercentageCappedMax)
	}
	return PercentageCapped{value: p}, nil
}

func (p PercentageCapped) AsF64() float64 { return p.value }
func (p PercentageCapped) String() string { return fmt.Sprintf("%.2f%%", p.value) }
