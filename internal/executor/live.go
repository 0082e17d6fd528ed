package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/exchange/lnm"
	"github.com/flemosr/quantoxide-sub000/internal/money"
	"github.com/flemosr/quantoxide-sub000/internal/trade"
)

// LiveTradeExecutor is the TradeExecutor implementation the live trader drives: every
// mutating call places a signed REST order against the exchange first and only updates the
// local book once the exchange confirms it, so the book never claims a state the exchange
// does not also hold.
type LiveTradeExecutor struct {
	mu sync.Mutex

	rest *lnm.Client

	balance     int64
	marketPrice money.Price
	lastTick    time.Time
	lastTrade   time.Time

	running *trade.RunningTradesMap
	closed  *trade.ClosedTradeHistory

	// exchangeID maps a local trade id to the exchange's own trade id string, since the
	// wire protocol addresses trades by an opaque string rather than a uuid.
	exchangeID map[uuid.UUID]string
}

// NewLiveTradeExecutor creates a LiveTradeExecutor backed by rest. The balance starts at 0
// and is only fetched from the exchange by RefreshBalance; TradingState never fetches it.
func NewLiveTradeExecutor(rest *lnm.Client) *LiveTradeExecutor {
	return &LiveTradeExecutor{
		rest:       rest,
		running:    trade.NewRunningTradesMap(),
		closed:     trade.NewClosedTradeHistory(),
		exchangeID: make(map[uuid.UUID]string),
	}
}

// RefreshBalance fetches the authenticated account balance and stores it locally. Callers
// should poll this periodically; the executor never infers balance from local trade math
// alone, since funding settlements and external transfers move it too.
func (e *LiveTradeExecutor) RefreshBalance(ctx context.Context) error {
	balance, err := e.rest.GetBalance()
	if err != nil {
		return fmt.Errorf("executor: refresh balance: %w", err)
	}
	e.mu.Lock()
	e.balance = balance
	e.mu.Unlock()
	return nil
}

func sideLiteral(s money.Side) string {
	if s == money.Buy {
		return "b"
	}
	return "s"
}

// Open places a market order sized per p and records the resulting trade once the exchange
// confirms the fill.
func (e *LiveTradeExecutor) Open(_ context.Context, p OpenParams) (uuid.UUID, error) {
	req := lnm.OpenTradeRequest{
		Side:     sideLiteral(p.Side),
		Type:     "m",
		Leverage: p.Leverage.AsF64(),
		Quantity: p.Quantity.AsF64(),
	}
	if p.Stoploss != nil {
		req.Stoploss = p.Stoploss.AsF64()
	}
	if p.Takeprofit != nil {
		req.Takeprofit = p.Takeprofit.AsF64()
	}

	dto, err := e.rest.OpenTrade(req)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("executor: open trade: %w", err)
	}

	entryPrice, err := money.NewPrice(dto.Price)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("executor: exchange returned invalid entry price: %w", err)
	}
	liquidation, err := money.NewPrice(dto.Liquidation)
	if err != nil {
		liquidation = entryPrice
	}
	margin, err := money.NewMargin(uint64(dto.Margin))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("executor: exchange returned invalid margin: %w", err)
	}

	id := uuid.New()
	now := time.Now()
	tr := trade.TradeRunning{TradeCore: trade.TradeCore{
		ID:          id,
		Side:        p.Side,
		Quantity:    p.Quantity,
		Margin:      margin,
		Leverage:    p.Leverage,
		Price:       entryPrice,
		EntryPrice:  entryPrice,
		Liquidation: liquidation,
		Stoploss:    p.Stoploss,
		Takeprofit:  p.Takeprofit,
		CreatedAt:   now,
	}}

	var tsl *trade.TrailingStoploss
	if p.Trailing != nil {
		tsl = &trade.TrailingStoploss{Percent: *p.Trailing}
	}

	e.mu.Lock()
	e.running.Add(tr, tsl)
	e.exchangeID[id] = dto.ID
	e.mu.Unlock()

	log.Info().Str("id", id.String()).Str("exchange_id", dto.ID).Str("side", p.Side.String()).Msg("executor: trade opened")
	return id, nil
}

// CashIn withdraws realized profit from a running trade without closing it.
func (e *LiveTradeExecutor) CashIn(_ context.Context, id uuid.UUID, amount uint64) error {
	e.mu.Lock()
	exID, ok := e.exchangeID[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: unknown trade %s", id)
	}

	if _, err := e.rest.CashIn(exID, float64(amount)); err != nil {
		return fmt.Errorf("executor: cash in: %w", err)
	}
	return nil
}

// AddMargin adds margin to a running trade.
func (e *LiveTradeExecutor) AddMargin(_ context.Context, id uuid.UUID, amount uint64) error {
	e.mu.Lock()
	exID, ok := e.exchangeID[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: unknown trade %s", id)
	}

	dto, err := e.rest.AddMargin(exID, float64(amount))
	if err != nil {
		return fmt.Errorf("executor: add margin: %w", err)
	}

	margin, err := money.NewMargin(uint64(dto.Margin))
	if err != nil {
		return fmt.Errorf("executor: exchange returned invalid margin: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	tr, tsl, ok := e.running.GetByID(id)
	if !ok {
		return nil
	}
	tr.Margin = margin
	e.running.UpdateByID(id, tr, tsl)
	return nil
}

// SetNewStoploss pushes a new stoploss to the exchange and, on success, mirrors it locally.
func (e *LiveTradeExecutor) SetNewStoploss(_ context.Context, id uuid.UUID, newStoploss money.Price) error {
	e.mu.Lock()
	exID, ok := e.exchangeID[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: unknown trade %s", id)
	}

	if _, err := e.rest.UpdateStoploss(exID, newStoploss.AsF64()); err != nil {
		return fmt.Errorf("executor: update stoploss: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	tr, tsl, ok := e.running.GetByID(id)
	if !ok {
		return nil
	}
	tr.Stoploss = &newStoploss
	e.running.UpdateByID(id, tr, tsl)
	return nil
}

func (e *LiveTradeExecutor) closeLocked(id uuid.UUID, closePrice money.Price, closedAt time.Time) {
	tr, _, ok := e.running.RemoveByID(id)
	if !ok {
		return
	}
	delete(e.exchangeID, id)

	e.closed.Add(trade.TradeClosed{
		TradeCore:  tr.TradeCore,
		ClosePrice: closePrice,
		ClosedAt:   closedAt,
	})
}

// Close closes a single running trade by id.
func (e *LiveTradeExecutor) Close(_ context.Context, id uuid.UUID) error {
	e.mu.Lock()
	exID, ok := e.exchangeID[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: unknown trade %s", id)
	}

	dto, err := e.rest.CloseTrade(exID)
	if err != nil {
		return fmt.Errorf("executor: close trade: %w", err)
	}

	closePrice, err := money.NewPrice(dto.Price)
	if err != nil {
		closePrice = e.marketPrice
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked(id, closePrice, time.Now())
	return nil
}

// CloseAll closes every running trade against the exchange, then mirrors the closure
// locally for each trade that was open before the call.
func (e *LiveTradeExecutor) CloseAll(_ context.Context) error {
	if err := e.rest.CloseAllTrades(); err != nil {
		return fmt.Errorf("executor: close all trades: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	for _, tr := range e.running.TradesAsc() {
		e.closeLocked(tr.ID, e.marketPrice, now)
	}
	return nil
}

// CandleUpdate records the latest observed market tick. The exchange enforces stoploss,
// takeprofit and liquidation triggers server-side for live trades, so unlike the simulated
// executor this does not scan the running book for trigger crossings — it only keeps the
// last-seen price fresh for EstPL/Summary reporting.
func (e *LiveTradeExecutor) CandleUpdate(_ context.Context, c candle.OHLC) error {
	price, err := money.NewPrice(c.Close)
	if err != nil {
		return fmt.Errorf("executor: candle update: %w", err)
	}
	e.mu.Lock()
	e.marketPrice = price
	e.lastTick = c.Timestamp
	e.mu.Unlock()
	return nil
}

// ReconcileClosed removes any local running trade whose exchange id no longer appears
// among the still-open set the caller fetched, recording it as closed at closePrice. Call
// this periodically against a fresh GetTicker-derived price and a set of currently-open
// exchange trade ids, since LN Markets triggers (stoploss, takeprofit, liquidation) close
// trades server-side without a corresponding local call.
func (e *LiveTradeExecutor) ReconcileClosed(stillOpenExchangeIDs map[string]struct{}, closePrice money.Price) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, tr := range e.running.TradesAsc() {
		exID, ok := e.exchangeID[tr.ID]
		if !ok {
			continue
		}
		if _, stillOpen := stillOpenExchangeIDs[exID]; stillOpen {
			continue
		}
		e.closeLocked(tr.ID, closePrice, now)
	}
}

// TradingState returns a snapshot of the current book. Funding fees are reported as 0: LN
// Markets settles funding directly against exchange-side balance and margin, so it is already
// reflected in e.balance and the mirrored trade state by the time RefreshBalance and
// ReconcileClosed run, with no separate local accumulator to report.
func (e *LiveTradeExecutor) TradingState() *trade.TradingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return trade.NewTradingState(e.running, e.closed, e.balance, e.marketPrice, e.lastTick, e.lastTrade, 0)
}
