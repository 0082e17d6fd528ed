package trade

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flemosr/quantoxide-sub000/internal/money"
)

// RunningStats summarizes the currently open book, split by side. It is computed once per
// TradingState snapshot and cached, mirroring the source's OnceLock-memoized
// get_running_stats: the book does not change within the lifetime of a single snapshot, so
// repeated accessors should not re-walk the map.
type RunningStats struct {
	LongLen       int
	ShortLen      int
	LongMargin    uint64
	ShortMargin   uint64
	LongQuantity  uint64
	ShortQuantity uint64
	PL            float64
	Fees          uint64
}

// TradingState is an immutable snapshot of the book at a point in time: the running trades,
// the closed history, account balance, and the last observed market tick. It is produced by
// an executor and handed to consumers (reporters, signal evaluators) that must not mutate
// it.
type TradingState struct {
	running     *RunningTradesMap
	closed      *ClosedTradeHistory
	balance     int64
	marketPrice money.Price
	lastTick    time.Time
	lastTrade   time.Time
	fundingFees int64

	statsOnce sync.Once
	stats     RunningStats
}

// NewTradingState builds a snapshot from the given book, balance, last tick, and the
// cumulative funding fees applied to date (positive = net paid, negative = net received).
func NewTradingState(running *RunningTradesMap, closed *ClosedTradeHistory, balance int64, marketPrice money.Price, lastTick time.Time, lastTrade time.Time, fundingFees int64) *TradingState {
	return &TradingState{
		running:     running,
		closed:      closed,
		balance:     balance,
		marketPrice: marketPrice,
		lastTick:    lastTick,
		lastTrade:   lastTrade,
		fundingFees: fundingFees,
	}
}

func (s *TradingState) RunningMap() *RunningTradesMap       { return s.running }
func (s *TradingState) ClosedHistory() *ClosedTradeHistory  { return s.closed }
func (s *TradingState) Balance() int64                      { return s.balance }
func (s *TradingState) MarketPrice() money.Price             { return s.marketPrice }
func (s *TradingState) LastTickTime() time.Time               { return s.lastTick }
func (s *TradingState) LastTradeTime() time.Time               { return s.lastTrade }
func (s *TradingState) FundingFees() int64                    { return s.fundingFees }

// getRunningStats lazily computes and caches the running-book aggregate.
func (s *TradingState) getRunningStats() RunningStats {
	s.statsOnce.Do(func() {
		var st RunningStats
		for _, t := range s.running.TradesAsc() {
			pl := t.EstPL(s.marketPrice)
			st.PL += pl
			st.Fees += t.OpeningFee + t.ClosingFeeReserved
			switch t.Side {
			case money.Buy:
				st.LongLen++
				st.LongMargin += t.Margin.AsU64()
				st.LongQuantity += t.Quantity.AsU64()
			case money.Sell:
				st.ShortLen++
				st.ShortMargin += t.Margin.AsU64()
				st.ShortQuantity += t.Quantity.AsU64()
			}
		}
		s.stats = st
	})
	return s.stats
}

// TotalNetValue returns balance + running margin + running unrealized P/L.
func (s *TradingState) TotalNetValue() float64 {
	st := s.getRunningStats()
	return float64(s.balance) + float64(st.LongMargin+st.ShortMargin) + st.PL
}

func (s *TradingState) RunningLongLen() int       { return s.getRunningStats().LongLen }
func (s *TradingState) RunningShortLen() int      { return s.getRunningStats().ShortLen }
func (s *TradingState) RunningLen() int           { return s.running.Len() }
func (s *TradingState) RunningMargin() uint64 {
	st := s.getRunningStats()
	return st.LongMargin + st.ShortMargin
}
func (s *TradingState) RunningQuantity() uint64 {
	st := s.getRunningStats()
	return st.LongQuantity + st.ShortQuantity
}
func (s *TradingState) RunningPL() float64  { return s.getRunningStats().PL }
func (s *TradingState) RunningFees() uint64 { return s.getRunningStats().Fees }

// RealizedPL returns the sum of closed P/L to date.
func (s *TradingState) RealizedPL() int64 {
	var total int64
	for _, t := range s.closed.TradesDesc() {
		total += t.PL()
	}
	return total
}

func (s *TradingState) ClosedLen() int { return s.closed.Len() }

// ClosedFees sums opening + closing fees across closed trades.
func (s *TradingState) ClosedFees() uint64 {
	var total uint64
	for _, t := range s.closed.TradesDesc() {
		total += t.OpeningFee + t.ClosingFee
	}
	return total
}

// ClosedNetPL returns RealizedPL minus ClosedFees.
func (s *TradingState) ClosedNetPL() int64 {
	return s.RealizedPL() - int64(s.ClosedFees())
}

// PL returns running + realized P/L combined.
func (s *TradingState) PL() float64 {
	return s.RunningPL() + float64(s.RealizedPL())
}

// Fees returns running + closed fees combined.
func (s *TradingState) Fees() uint64 {
	return s.RunningFees() + s.ClosedFees()
}

// Summary renders a human-readable multi-line account overview, in the style of the
// source's summary() string renderer used by the backtest reporter and CLI status line.
func (s *TradingState) Summary() string {
	st := s.getRunningStats()
	var b strings.Builder
	fmt.Fprintf(&b, "balance: %d sats\n", s.balance)
	fmt.Fprintf(&b, "market price: %s\n", s.marketPrice)
	fmt.Fprintf(&b, "running: %d long / %d short (margin %d sats, qty %d, pl %.0f sats, fees %d sats)\n",
		st.LongLen, st.ShortLen, st.LongMargin+st.ShortMargin, st.LongQuantity+st.ShortQuantity, st.PL, st.Fees)
	fmt.Fprintf(&b, "closed: %d trades (realized pl %d sats, fees %d sats, net %d sats)\n",
		s.ClosedLen(), s.RealizedPL(), s.ClosedFees(), s.ClosedNetPL())
	fmt.Fprintf(&b, "funding fees: %d sats\n", s.fundingFees)
	fmt.Fprintf(&b, "total net value: %.0f sats\n", s.TotalNetValue())
	return b.String()
}

// RunningTradesTable renders the open book as a plain-text table, newest trade first.
func (s *TradingState) RunningTradesTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-5s %10s %10s %8s %12s %12s\n", "id", "side", "qty", "margin", "lev", "price", "liquidation")
	for _, t := range s.running.TradesDesc() {
		fmt.Fprintf(&b, "%-36s %-5s %10s %10s %8s %12s %12s\n",
			t.ID, t.Side, t.Quantity, t.Margin, t.Leverage, t.Price, t.Liquidation)
	}
	return b.String()
}
