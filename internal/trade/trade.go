// Package trade holds the running/closed trade records and the ordered collections that
// index them by (creation time, id): RunningTradesMap, ClosedTradeHistory, and the derived
// TradingState snapshot.
package trade

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/tradeutil"
)

// TradeCore holds the fields shared by running and closed trades. Accessors are promoted
// to TradeRunning/TradeClosed via Go struct embedding, playing the role the source's
// TradeCore/TradeRunning/TradeClosed trait hierarchy plays in the original domain model.
type TradeCore struct {
	ID                 uuid.UUID
	Side               money.Side
	Quantity           money.Quantity
	Margin             money.Margin
	Leverage           money.Leverage
	Price              money.Price // effective entry price; shifts on cash-in
	EntryPrice         money.Price // original, immutable entry price
	Liquidation        money.Price
	Stoploss           *money.Price
	Takeprofit         *money.Price
	OpeningFee         uint64
	ClosingFeeReserved uint64
	CreatedAt          time.Time
}

// MaintenanceMargin is the satoshis reserved against opening and prospective closing fees.
func (c TradeCore) MaintenanceMargin() int64 {
	return int64(c.OpeningFee) + int64(c.ClosingFeeReserved)
}

// TrailingStoploss is the metadata a running trade carries when its stoploss is managed by
// the executor's trailing logic rather than fixed by the caller.
type TrailingStoploss struct {
	Percent money.PercentageCapped
}

// TradeRunning is an open position.
type TradeRunning struct {
	TradeCore
}

// EstPL estimates the unrealized profit/loss at marketPrice.
func (t TradeRunning) EstPL(marketPrice money.Price) float64 {
	return tradeutil.EstimatePL(t.Side, t.Quantity, t.Price, marketPrice)
}

// TradeClosed is a completed position.
type TradeClosed struct {
	TradeCore
	ClosePrice  money.Price
	ClosedAt    time.Time
	ClosingFee  uint64
}

// PL is the realized profit/loss in satoshis, truncated toward zero.
func (t TradeClosed) PL() int64 {
	return int64(tradeutil.EstimatePL(t.Side, t.Quantity, t.Price, t.ClosePrice))
}

// Reference is the composite (creation time, id) key used to order trades
// chronologically while keeping ids unique, mirroring the source's
// BTreeMap<(DateTime<Utc>, Uuid), _> key.
type Reference struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Less reports whether r sorts before other: by CreatedAt, then by ID as a tiebreaker.
func (r Reference) Less(other Reference) bool {
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.Before(other.CreatedAt)
	}
	return lessUUID(r.ID, other.ID)
}

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func refOf(t TradeCore) Reference {
	return Reference{CreatedAt: t.CreatedAt, ID: t.ID}
}

// runningEntry pairs a running trade with its optional trailing-stoploss metadata.
type runningEntry struct {
	Ref   Reference
	Trade TradeRunning
	TSL   *TrailingStoploss
}

// RunningTradesMap is an ordered collection of running trades keyed by (creation_ts, id),
// with a secondary id -> index lookup. Ascending iteration is oldest-first; descending
// iteration (required by the executor's trigger-scan loop) is newest-first.
type RunningTradesMap struct {
	entries []runningEntry        // sorted ascending by Ref
	idIndex map[uuid.UUID]Reference
}

// NewRunningTradesMap returns an empty map.
func NewRunningTradesMap() *RunningTradesMap {
	return &RunningTradesMap{idIndex: make(map[uuid.UUID]Reference)}
}

func (m *RunningTradesMap) search(ref Reference) int {
	lo, hi := 0, len(m.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if m.entries[mid].Ref.Less(ref) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Add inserts a running trade, keeping entries sorted.
func (m *RunningTradesMap) Add(t TradeRunning, tsl *TrailingStoploss) {
	ref := refOf(t.TradeCore)
	idx := m.search(ref)
	m.entries = append(m.entries, runningEntry{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = runningEntry{Ref: ref, Trade: t, TSL: tsl}
	m.idIndex[t.ID] = ref
}

// Len returns the number of running trades.
func (m *RunningTradesMap) Len() int { return len(m.idIndex) }

// IsEmpty reports whether the map has no trades.
func (m *RunningTradesMap) IsEmpty() bool { return m.Len() == 0 }

// Contains reports whether a trade with the given id is present.
func (m *RunningTradesMap) Contains(id uuid.UUID) bool {
	_, ok := m.idIndex[id]
	return ok
}

// GetByID returns the trade and its trailing-stoploss metadata for id.
func (m *RunningTradesMap) GetByID(id uuid.UUID) (TradeRunning, *TrailingStoploss, bool) {
	ref, ok := m.idIndex[id]
	if !ok {
		return TradeRunning{}, nil, false
	}
	idx := m.search(ref)
	if idx >= len(m.entries) || m.entries[idx].Ref != ref {
		return TradeRunning{}, nil, false
	}
	e := m.entries[idx]
	return e.Trade, e.TSL, true
}

// UpdateByID replaces the stored trade/trailing-stoploss for id in place. The trade's
// Reference (creation time, id) must not change between the old and new value.
func (m *RunningTradesMap) UpdateByID(id uuid.UUID, t TradeRunning, tsl *TrailingStoploss) bool {
	ref, ok := m.idIndex[id]
	if !ok {
		return false
	}
	idx := m.search(ref)
	if idx >= len(m.entries) || m.entries[idx].Ref != ref {
		return false
	}
	m.entries[idx].Trade = t
	m.entries[idx].TSL = tsl
	return true
}

// RemoveByID removes and returns the trade for id.
func (m *RunningTradesMap) RemoveByID(id uuid.UUID) (TradeRunning, *TrailingStoploss, bool) {
	ref, ok := m.idIndex[id]
	if !ok {
		return TradeRunning{}, nil, false
	}
	idx := m.search(ref)
	if idx >= len(m.entries) || m.entries[idx].Ref != ref {
		return TradeRunning{}, nil, false
	}
	e := m.entries[idx]
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	delete(m.idIndex, id)
	return e.Trade, e.TSL, true
}

// TradesAsc iterates running trades in ascending chronological order (oldest first).
func (m *RunningTradesMap) TradesAsc() []TradeRunning {
	out := make([]TradeRunning, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Trade
	}
	return out
}

// TradesDesc iterates running trades in descending chronological order (newest first),
// required by the executor's candle-tick trigger-scan loop.
func (m *RunningTradesMap) TradesDesc() []TradeRunning {
	out := make([]TradeRunning, len(m.entries))
	for i, e := range m.entries {
		out[len(m.entries)-1-i] = e.Trade
	}
	return out
}

// EntriesDesc returns (trade, trailing stoploss) pairs newest-first.
func (m *RunningTradesMap) EntriesDesc() []struct {
	Trade TradeRunning
	TSL   *TrailingStoploss
} {
	out := make([]struct {
		Trade TradeRunning
		TSL   *TrailingStoploss
	}, len(m.entries))
	for i, e := range m.entries {
		out[len(m.entries)-1-i] = struct {
			Trade TradeRunning
			TSL   *TrailingStoploss
		}{e.Trade, e.TSL}
	}
	return out
}

// ClosedTradeHistory is a chronologically ordered collection of closed trades, keyed the
// same way as RunningTradesMap.
type ClosedTradeHistory struct {
	entries []TradeClosed // sorted ascending by (CreatedAt, ID)
}

// NewClosedTradeHistory returns an empty history.
func NewClosedTradeHistory() *ClosedTradeHistory {
	return &ClosedTradeHistory{}
}

// Add appends a closed trade, rejecting any trade missing its close fields.
func (h *ClosedTradeHistory) Add(t TradeClosed) error {
	if t.ClosedAt.IsZero() {
		return fmt.Errorf("trade: trade %s is not properly closed", t.ID)
	}

	ref := refOf(t.TradeCore)
	idx := 0
	for idx < len(h.entries) && refOf(h.entries[idx].TradeCore).Less(ref) {
		idx++
	}
	h.entries = append(h.entries, TradeClosed{})
	copy(h.entries[idx+1:], h.entries[idx:])
	h.entries[idx] = t
	return nil
}

// Len returns the number of closed trades.
func (h *ClosedTradeHistory) Len() int { return len(h.entries) }

// TradesDesc returns closed trades newest-first.
func (h *ClosedTradeHistory) TradesDesc() []TradeClosed {
	out := make([]TradeClosed, len(h.entries))
	for i, t := range h.entries {
		out[len(h.entries)-1-i] = t
	}
	return out
}
