package metrics

// Sink is the narrow interface the executor and synchronizer depend on, so
// those packages don't need to import prometheus directly.
type Sink interface {
	TradeOpened()
	TradeClosed(reason string)
	SetRunningTrades(n int)
	SetBalance(sats float64)
	SetRealizedPL(sats float64)
	TradeOpenRejected()
}

// Wrapper adapts a *Metrics into the Sink interface.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) TradeOpened() { w.m.TradesOpened.Inc() }

func (w *Wrapper) TradeClosed(reason string) { w.m.TradeClosed(reason) }

func (w *Wrapper) SetRunningTrades(n int) { w.m.RunningTrades.Set(float64(n)) }

func (w *Wrapper) SetBalance(sats float64) { w.m.Balance.Set(sats) }

func (w *Wrapper) SetRealizedPL(sats float64) { w.m.RealizedPL.Set(sats) }

func (w *Wrapper) TradeOpenRejected() { w.m.TradeOpenErrors.Inc() }
