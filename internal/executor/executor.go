// Package executor implements the simulated trade executor: the stateful engine that opens,
// updates, and closes trades against a stream of candle ticks, applying the trade-math
// formulas in internal/tradeutil and recording the book in internal/trade.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/trade"
	"github.com/flemosr/quantoxide-sub000/internal/tradeutil"
)

// OpenParams carries the caller-supplied parameters for opening a new trade.
type OpenParams struct {
	Side       money.Side
	Quantity   money.Quantity
	Margin     money.Margin
	Leverage   money.Leverage
	Stoploss   *money.Price
	Takeprofit *money.Price
	Trailing   *money.PercentageCapped
}

// TradeExecutor is the interface the backtest engine and signal evaluators drive trades
// through. It is context-aware so long-running live implementations can honor cancellation
// and deadlines on network calls; the simulated implementation below ignores ctx on its
// in-memory paths but still accepts it, satisfying the interface the live LN Markets
// executor must also implement.
type TradeExecutor interface {
	Open(ctx context.Context, p OpenParams) (uuid.UUID, error)
	CashIn(ctx context.Context, id uuid.UUID, amount uint64) error
	AddMargin(ctx context.Context, id uuid.UUID, amount uint64) error
	Close(ctx context.Context, id uuid.UUID) error
	CloseAll(ctx context.Context) error
	CandleUpdate(ctx context.Context, c candle.OHLC) error
	TradingState() *trade.TradingState
}

// SimulatedTradeExecutor is an in-memory, fully deterministic TradeExecutor used by the
// backtest engine. All public methods are guarded by a single mutex, matching the
// single-lock-per-call discipline of the teacher's execution engine: every public
// operation takes the lock once, does its work, and releases it before returning.
type SimulatedTradeExecutor struct {
	mu sync.Mutex

	feePerc         money.PercentageCapped
	maxRunningCount int

	balance     int64
	marketPrice money.Price
	lastTick    time.Time
	lastTrade   time.Time
	fundingFees int64

	running *trade.RunningTradesMap
	closed  *trade.ClosedTradeHistory

	trailing map[uuid.UUID]money.PercentageCapped
}

// NewSimulatedTradeExecutor creates an executor with the given starting balance (in
// satoshis), trading fee, and cap on concurrently open trades.
func NewSimulatedTradeExecutor(initialBalance int64, feePerc money.PercentageCapped, maxRunningCount int) *SimulatedTradeExecutor {
	return &SimulatedTradeExecutor{
		feePerc:         feePerc,
		maxRunningCount: maxRunningCount,
		balance:         initialBalance,
		running:         trade.NewRunningTradesMap(),
		closed:          trade.NewClosedTradeHistory(),
		trailing:        make(map[uuid.UUID]money.PercentageCapped),
	}
}

// errInsufficientBalance is returned when opening or adding margin would underflow balance.
type errInsufficientBalance struct {
	needed, available int64
}

func (e *errInsufficientBalance) Error() string {
	return fmt.Sprintf("executor: insufficient balance: need %d sats, have %d sats", e.needed, e.available)
}

// errTradeNotFound is returned by id-addressed operations for an unknown or already-closed id.
type errTradeNotFound struct{ id uuid.UUID }

func (e *errTradeNotFound) Error() string {
	return fmt.Sprintf("executor: trade %s not found", e.id)
}

// errMaxRunningCount is returned when Open would exceed the configured cap.
type errMaxRunningCount struct{ limit int }

func (e *errMaxRunningCount) Error() string {
	return fmt.Sprintf("executor: max running trade count %d reached", e.limit)
}

// Open validates and opens a new trade at the current market price, debiting margin and
// opening fee from the balance.
func (e *SimulatedTradeExecutor) Open(_ context.Context, p OpenParams) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.marketPrice.AsF64() == 0 {
		return uuid.UUID{}, fmt.Errorf("executor: no market price observed yet")
	}
	if e.running.Len() >= e.maxRunningCount {
		return uuid.UUID{}, &errMaxRunningCount{limit: e.maxRunningCount}
	}

	// A trailing stoploss given without a starting level starts at the trailing offset from
	// the current market price.
	stoploss := p.Stoploss
	if stoploss == nil && p.Trailing != nil {
		sl, err := e.marketPrice.ApplyDiscount(*p.Trailing)
		if p.Side == money.Sell {
			gain, _ := money.NewPercentage(p.Trailing.AsF64()) // a capped percentage is never negative
			sl, err = e.marketPrice.ApplyGain(gain)
		}
		if err != nil {
			return uuid.UUID{}, err
		}
		stoploss = &sl
	}

	liquidation, openingFee, closingFeeReserved, err := tradeutil.EvaluateOpenTradeParams(
		p.Side, p.Quantity, p.Margin, p.Leverage, e.marketPrice, stoploss, p.Takeprofit, e.feePerc,
	)
	if err != nil {
		return uuid.UUID{}, err
	}

	needed := p.Margin.AsI64() + int64(openingFee)
	if needed > e.balance {
		return uuid.UUID{}, &errInsufficientBalance{needed: needed, available: e.balance}
	}

	id := uuid.New()
	now := e.lastTick
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tr := trade.TradeRunning{
		TradeCore: trade.TradeCore{
			ID:                 id,
			Side:               p.Side,
			Quantity:           p.Quantity,
			Margin:             p.Margin,
			Leverage:           p.Leverage,
			Price:              e.marketPrice,
			EntryPrice:         e.marketPrice,
			Liquidation:        liquidation,
			Stoploss:           stoploss,
			Takeprofit:         p.Takeprofit,
			OpeningFee:         openingFee,
			ClosingFeeReserved: closingFeeReserved,
			CreatedAt:          now,
		},
	}

	e.running.Add(tr, nil)
	if p.Trailing != nil {
		e.trailing[id] = *p.Trailing
	}
	e.balance -= needed
	e.lastTrade = now

	log.Debug().
		Str("id", id.String()).
		Str("side", p.Side.String()).
		Str("quantity", p.Quantity.String()).
		Str("margin", p.Margin.String()).
		Str("leverage", p.Leverage.String()).
		Str("entry_price", e.marketPrice.String()).
		Str("liquidation", liquidation.String()).
		Msg("trade opened")

	return id, nil
}

// CashIn extracts amount satoshis from a running trade's profit and/or margin.
func (e *SimulatedTradeExecutor) CashIn(_ context.Context, id uuid.UUID, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, tsl, ok := e.running.GetByID(id)
	if !ok {
		return &errTradeNotFound{id: id}
	}

	newPrice, newMargin, newLeverage, newLiquidation, newStoploss, err := tradeutil.EvaluateCashIn(
		tr.Side, tr.Quantity, tr.Margin, tr.Price, tr.Stoploss, e.marketPrice, amount,
	)
	if err != nil {
		return err
	}

	tr.Price = newPrice
	tr.Margin = newMargin
	tr.Leverage = newLeverage
	tr.Liquidation = newLiquidation
	tr.Stoploss = newStoploss

	e.running.UpdateByID(id, tr, tsl)
	e.balance += int64(amount)

	log.Debug().Str("id", id.String()).Uint64("amount", amount).Msg("cash-in applied")
	return nil
}

// AddMargin adds amount satoshis of collateral to a running trade.
func (e *SimulatedTradeExecutor) AddMargin(_ context.Context, id uuid.UUID, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, tsl, ok := e.running.GetByID(id)
	if !ok {
		return &errTradeNotFound{id: id}
	}
	if amount > uint64(e.balance) {
		return &errInsufficientBalance{needed: int64(amount), available: e.balance}
	}

	newMargin, newLeverage, newLiquidation, err := tradeutil.EvaluateAddedMargin(tr.Side, tr.Quantity, tr.Price, tr.Margin, amount)
	if err != nil {
		return err
	}

	tr.Margin = newMargin
	tr.Leverage = newLeverage
	tr.Liquidation = newLiquidation

	e.running.UpdateByID(id, tr, tsl)
	e.balance -= int64(amount)

	log.Debug().Str("id", id.String()).Uint64("amount", amount).Msg("margin added")
	return nil
}

// SetNewStoploss validates and applies a new stoploss to a running trade.
func (e *SimulatedTradeExecutor) SetNewStoploss(_ context.Context, id uuid.UUID, newStoploss money.Price) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, tsl, ok := e.running.GetByID(id)
	if !ok {
		return &errTradeNotFound{id: id}
	}

	if err := tradeutil.EvaluateNewStoploss(tr.Side, tr.Liquidation, tr.Takeprofit, e.marketPrice, newStoploss); err != nil {
		return err
	}

	tr.Stoploss = &newStoploss
	e.running.UpdateByID(id, tr, tsl)
	return nil
}

// closeLocked removes a running trade and appends it to the closed history; caller must
// hold e.mu.
func (e *SimulatedTradeExecutor) closeLocked(id uuid.UUID, closePrice money.Price, closedAt time.Time) error {
	tr, _, ok := e.running.RemoveByID(id)
	if !ok {
		return &errTradeNotFound{id: id}
	}
	delete(e.trailing, id)

	closingFee := tradeutil.EvaluateClosingFee(e.feePerc, tr.Quantity, closePrice)
	pl := tradeutil.EstimatePL(tr.Side, tr.Quantity, tr.Price, closePrice)

	closedTrade := trade.TradeClosed{
		TradeCore:  tr.TradeCore,
		ClosePrice: closePrice,
		ClosedAt:   closedAt,
		ClosingFee: closingFee,
	}
	if err := e.closed.Add(closedTrade); err != nil {
		return err
	}

	payout := tr.Margin.AsI64() + int64(pl) - int64(closingFee)
	if payout < 0 {
		payout = 0
	}
	e.balance += payout
	e.lastTrade = closedAt

	log.Debug().
		Str("id", id.String()).
		Str("close_price", closePrice.String()).
		Float64("pl", pl).
		Uint64("closing_fee", closingFee).
		Msg("trade closed")

	return nil
}

// Close closes a single running trade at the current market price.
func (e *SimulatedTradeExecutor) Close(_ context.Context, id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked(id, e.marketPrice, e.lastTick)
}

// CloseAll closes every running trade at the current market price.
func (e *SimulatedTradeExecutor) CloseAll(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, tr := range e.running.TradesDesc() {
		if err := e.closeLocked(tr.ID, e.marketPrice, e.lastTick); err != nil {
			return err
		}
	}
	return nil
}

// CloseSide closes every running trade on the given side.
func (e *SimulatedTradeExecutor) CloseSide(_ context.Context, side money.Side) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, tr := range e.running.TradesDesc() {
		if tr.Side != side {
			continue
		}
		if err := e.closeLocked(tr.ID, e.marketPrice, e.lastTick); err != nil {
			return err
		}
	}
	return nil
}

// CandleUpdate feeds a new candle tick to the executor, updating the observed market price
// and scanning the running book for liquidation, takeprofit, and stoploss triggers.
//
// Triggers are evaluated newest-trade-first (matching trade.RunningTradesMap.TradesDesc),
// with precedence liquidation > takeprofit > stoploss within a single trade; a trailing
// stoploss is recomputed and re-applied before the same candle is rescanned against it, so
// a trade can never be missed by a stale stoploss on the candle that moved it.
func (e *SimulatedTradeExecutor) CandleUpdate(_ context.Context, c candle.OHLC) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	closePrice, err := money.NewPrice(c.Close)
	if err != nil {
		return err
	}
	e.marketPrice = closePrice
	e.lastTick = c.Timestamp

	for _, tr := range e.running.TradesDesc() {
		if err := e.applyTrailingLocked(tr.ID, c); err != nil {
			return err
		}
		tr, _, ok := e.running.GetByID(tr.ID)
		if !ok {
			continue
		}

		triggerPrice, hit := e.firstTrigger(tr, c)
		if !hit {
			continue
		}
		if err := e.closeLocked(tr.ID, triggerPrice, c.Timestamp); err != nil {
			return err
		}
	}

	return nil
}

// firstTrigger reports the trigger price and whether liquidation, takeprofit, or stoploss
// crossed during the candle, in that precedence order. Crossing is one-sided, not
// containment: a long's downside levels (liquidation, stoploss) fire once the candle's low
// reaches or passes them, and its upside level (takeprofit) fires once the high reaches or
// passes it, and mirrored for shorts — regardless of where the candle's other bound sits. A
// gap candle that opens and closes entirely past a trigger still crosses it and must fire;
// checking containment against both bounds would let such a candle skip the trigger
// entirely, leaving a position open indefinitely past its liquidation.
func (e *SimulatedTradeExecutor) firstTrigger(tr trade.TradeRunning, c candle.OHLC) (money.Price, bool) {
	crossedDown := func(p money.Price) bool { return c.Low <= p.AsF64() }
	crossedUp := func(p money.Price) bool { return c.High >= p.AsF64() }

	var liqCrossed, tpCrossed, slCrossed bool
	switch tr.Side {
	case money.Buy:
		liqCrossed = crossedDown(tr.Liquidation)
		tpCrossed = tr.Takeprofit != nil && crossedUp(*tr.Takeprofit)
		slCrossed = tr.Stoploss != nil && crossedDown(*tr.Stoploss)
	case money.Sell:
		liqCrossed = crossedUp(tr.Liquidation)
		tpCrossed = tr.Takeprofit != nil && crossedDown(*tr.Takeprofit)
		slCrossed = tr.Stoploss != nil && crossedUp(*tr.Stoploss)
	}

	if liqCrossed {
		return tr.Liquidation, true
	}
	if tpCrossed {
		return *tr.Takeprofit, true
	}
	if slCrossed {
		return *tr.Stoploss, true
	}
	return money.Price{}, false
}

// applyTrailingLocked recomputes a trailing stoploss against the candle's favorable extremum
// — the high for a long, the low for a short — and applies it if it has moved, per the
// configured percentage offset. Using the extremum rather than the close means an intrabar
// spike still ratchets the trail even if the candle closes back off its peak. Caller must
// hold e.mu.
func (e *SimulatedTradeExecutor) applyTrailingLocked(id uuid.UUID, c candle.OHLC) error {
	pct, ok := e.trailing[id]
	if !ok {
		return nil
	}
	tr, tsl, ok := e.running.GetByID(id)
	if !ok {
		return nil
	}

	// Long trailing follows the candle's high down by pct (a discount); short trailing
	// follows the candle's low up by the same magnitude (a gain). EvaluateNewStoploss below
	// rejects any candidate that would violate the liquidation/takeprofit/market ordering
	// invariants.
	var newSL money.Price
	var err error
	switch tr.Side {
	case money.Buy:
		high, herr := money.NewPrice(c.High)
		if herr != nil {
			return herr
		}
		newSL, err = high.ApplyDiscount(pct)
	case money.Sell:
		gainPct, gerr := money.NewPercentage(pct.AsF64())
		if gerr != nil {
			return gerr
		}
		low, lerr := money.NewPrice(c.Low)
		if lerr != nil {
			return lerr
		}
		newSL, err = low.ApplyGain(gainPct)
	}
	if err != nil {
		return err
	}

	if tr.Stoploss != nil {
		improved := false
		switch tr.Side {
		case money.Buy:
			improved = newSL.AsF64() > tr.Stoploss.AsF64()
		case money.Sell:
			improved = newSL.AsF64() < tr.Stoploss.AsF64()
		}
		if !improved {
			return nil
		}
	}

	if verr := tradeutil.EvaluateNewStoploss(tr.Side, tr.Liquidation, tr.Takeprofit, e.marketPrice, newSL); verr != nil {
		return nil
	}

	tr.Stoploss = &newSL
	e.running.UpdateByID(id, tr, tsl)
	return nil
}

// ApplyFundingSettlement applies a funding settlement at fixingPrice/fundingRate to every
// running trade: a position that pays has the fee deducted from its margin (leverage and
// liquidation recomputed); a position that receives has the fee credited to balance.
// Settlements against no open positions are no-ops. Returns the net fee applied across the
// book (positive = net paid, negative = net received).
func (e *SimulatedTradeExecutor) ApplyFundingSettlement(_ context.Context, fixingPrice money.Price, fundingRate float64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var net int64
	for _, tr := range e.running.TradesAsc() {
		fee, newMargin, newLeverage, newLiquidation, err := tradeutil.EvaluateFundingSettlement(
			tr.Side, tr.Quantity, tr.Price, tr.Margin, fixingPrice, fundingRate,
		)
		if err != nil {
			return 0, fmt.Errorf("executor: funding settlement for trade %s: %w", tr.ID, err)
		}

		if fee > 0 {
			tr.Margin = newMargin
			tr.Leverage = newLeverage
			tr.Liquidation = newLiquidation
			e.running.UpdateByID(tr.ID, tr, nil)
		} else if fee < 0 {
			e.balance += -fee
		}

		net += fee
	}

	e.fundingFees += net
	log.Debug().Int64("net_fee", net).Str("fixing_price", fixingPrice.String()).Msg("funding settlement applied")
	return net, nil
}

// TradingState returns an immutable snapshot of the current book.
func (e *SimulatedTradeExecutor) TradingState() *trade.TradingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return trade.NewTradingState(e.running, e.closed, e.balance, e.marketPrice, e.lastTick, e.lastTrade, e.fundingFees)
}
