// Package dashboard serves a live risk-monitoring web page for the trader: account
// balance, running book exposure, and closed-trade performance, pushed to connected
// browsers over a WebSocket feed and also available as a polled JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/trade"
)

// RiskMetrics is the JSON/WebSocket payload pushed to dashboard clients: a flattened view
// of a trade.TradingState snapshot plus the derived performance ratios a risk monitor
// cares about.
type RiskMetrics struct {
	Timestamp time.Time `json:"timestamp"`

	Balance       int64   `json:"balance"`
	MarketPrice   float64 `json:"marketPrice"`
	RunningLong   int     `json:"runningLong"`
	RunningShort  int     `json:"runningShort"`
	RunningMargin uint64  `json:"runningMargin"`
	RunningPL     float64 `json:"runningPL"`
	TotalNetValue float64 `json:"totalNetValue"`

	ClosedTrades int     `json:"closedTrades"`
	RealizedPL   int64   `json:"realizedPL"`
	WinRate      float64 `json:"winRate"`
	ProfitFactor float64 `json:"profitFactor"`
	MaxDrawdown  float64 `json:"maxDrawdownPercent"`
	SharpeRatio  float64 `json:"sharpeRatio"`
}

// StateProvider returns the current trading state snapshot. Both the simulated and the live
// executor expose one via TradingState(), so either can back a dashboard.
type StateProvider func() *trade.TradingState

// RiskDashboard serves the dashboard HTTP/WebSocket endpoints over a StateProvider.
type RiskDashboard struct {
	state StateProvider

	server           *http.Server
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.RWMutex
	broadcastChannel chan RiskMetrics
	stopChannel      chan struct{}

	mu        sync.Mutex
	isRunning bool
}

// NewRiskDashboard creates a dashboard that polls state every second and serves it on
// port.
func NewRiskDashboard(state StateProvider, port int) *RiskDashboard {
	d := &RiskDashboard{
		state:            state,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan RiskMetrics, 100),
		stopChannel:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", d.handleDashboard).Methods("GET")
	r.HandleFunc("/api/metrics", d.handleMetricsAPI).Methods("GET")
	r.HandleFunc("/ws", d.handleWebSocket).Methods("GET")

	d.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return d
}

// Start begins serving the dashboard and broadcasting metrics to connected clients.
func (d *RiskDashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return fmt.Errorf("dashboard: already running")
	}

	go d.metricsCollector()
	go d.clientBroadcaster()
	go func() {
		log.Info().Str("address", d.server.Addr).Msg("dashboard: starting risk dashboard server")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("dashboard: server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop shuts down the dashboard server and disconnects all clients.
func (d *RiskDashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isRunning {
		return nil
	}
	close(d.stopChannel)

	d.clientsMu.Lock()
	for c := range d.clients {
		c.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.isRunning = false
	return d.server.Shutdown(ctx)
}

func (d *RiskDashboard) metricsCollector() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case d.broadcastChannel <- d.collectMetrics():
			default:
			}
		case <-d.stopChannel:
			return
		}
	}
}

func (d *RiskDashboard) clientBroadcaster() {
	for {
		select {
		case m := <-d.broadcastChannel:
			d.broadcastToClients(m)
		case <-d.stopChannel:
			return
		}
	}
}

func (d *RiskDashboard) collectMetrics() RiskMetrics {
	s := d.state()

	trades := s.ClosedHistory().TradesDesc()
	winRate, profitFactor := winRateAndProfitFactor(trades)

	return RiskMetrics{
		Timestamp:     time.Now(),
		Balance:       s.Balance(),
		MarketPrice:   s.MarketPrice().AsF64(),
		RunningLong:   s.RunningLongLen(),
		RunningShort:  s.RunningShortLen(),
		RunningMargin: s.RunningMargin(),
		RunningPL:     s.RunningPL(),
		TotalNetValue: s.TotalNetValue(),
		ClosedTrades:  s.ClosedLen(),
		RealizedPL:    s.RealizedPL(),
		WinRate:       winRate,
		ProfitFactor:  profitFactor,
		MaxDrawdown:   maxDrawdownPercent(trades),
		SharpeRatio:   sharpeRatio(trades),
	}
}

// winRateAndProfitFactor, maxDrawdownPercent, and sharpeRatio mirror the same-named
// helpers in the backtest reporter, since the dashboard and the reporter derive the
// identical statistics from the identical trade.TradeClosed history, just for different
// audiences (a live page vs. a finished run's report).
func winRateAndProfitFactor(trades []trade.TradeClosed) (winRate, profitFactor float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	var wins int
	var totalProfit, totalLoss float64
	for _, t := range trades {
		pl := float64(t.PL())
		if pl > 0 {
			wins++
			totalProfit += pl
		} else {
			totalLoss += math.Abs(pl)
		}
	}
	winRate = float64(wins) / float64(len(trades))
	if totalLoss > 0 {
		profitFactor = totalProfit / totalLoss
	}
	return winRate, profitFactor
}

func maxDrawdownPercent(trades []trade.TradeClosed) float64 {
	if len(trades) == 0 {
		return 0
	}
	var peak, balance, maxDrawdown float64
	for _, t := range trades {
		balance += float64(t.PL())
		if balance > peak {
			peak = balance
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - balance) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown * 100
}

func sharpeRatio(trades []trade.TradeClosed) float64 {
	if len(trades) < 2 {
		return 0
	}
	returns := make([]float64, len(trades))
	for i, t := range trades {
		notional := t.Margin.AsF64()
		if notional == 0 {
			continue
		}
		returns[i] = float64(t.PL()) / notional * 100
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))
	if stdDev == 0 {
		return 0
	}
	return (mean / stdDev) * math.Sqrt(252)
}

func (d *RiskDashboard) broadcastToClients(m RiskMetrics) {
	d.clientsMu.RLock()
	defer d.clientsMu.RUnlock()

	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Msg("dashboard: marshal metrics for broadcast")
		return
	}
	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(d.clients, client)
		}
	}
}

const dashboardHTML = `
<!DOCTYPE html>
<html>
<head>
	<title>Risk Dashboard</title>
	<meta charset="UTF-8">
	<style>
		body { font-family: sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
		.grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(260px, 1fr)); gap: 16px; }
		.card { background: white; border-radius: 8px; padding: 16px; box-shadow: 0 2px 4px rgba(0,0,0,.1); }
		.metric { display: flex; justify-content: space-between; padding: 4px 0; }
	</style>
</head>
<body>
	<h1>Risk Dashboard</h1>
	<div class="grid">
		<div class="card">
			<h3>Account</h3>
			<div class="metric"><span>Balance</span><span id="balance">-</span></div>
			<div class="metric"><span>Market Price</span><span id="market-price">-</span></div>
			<div class="metric"><span>Total Net Value</span><span id="total-net-value">-</span></div>
		</div>
		<div class="card">
			<h3>Running Book</h3>
			<div class="metric"><span>Long / Short</span><span id="running-counts">-</span></div>
			<div class="metric"><span>Margin</span><span id="running-margin">-</span></div>
			<div class="metric"><span>Unrealized P/L</span><span id="running-pl">-</span></div>
		</div>
		<div class="card">
			<h3>Performance</h3>
			<div class="metric"><span>Closed Trades</span><span id="closed-trades">-</span></div>
			<div class="metric"><span>Win Rate</span><span id="win-rate">-</span></div>
			<div class="metric"><span>Profit Factor</span><span id="profit-factor">-</span></div>
			<div class="metric"><span>Max Drawdown</span><span id="max-drawdown">-</span></div>
			<div class="metric"><span>Sharpe Ratio</span><span id="sharpe-ratio">-</span></div>
		</div>
	</div>
	<script>
		const ws = new WebSocket('ws://' + location.host + '/ws');
		ws.onmessage = (evt) => {
			const m = JSON.parse(evt.data);
			document.getElementById('balance').textContent = m.balance + ' sats';
			document.getElementById('market-price').textContent = m.marketPrice.toFixed(1);
			document.getElementById('total-net-value').textContent = m.totalNetValue.toFixed(0) + ' sats';
			document.getElementById('running-counts').textContent = m.runningLong + ' / ' + m.runningShort;
			document.getElementById('running-margin').textContent = m.runningMargin + ' sats';
			document.getElementById('running-pl').textContent = m.runningPL.toFixed(0) + ' sats';
			document.getElementById('closed-trades').textContent = m.closedTrades;
			document.getElementById('win-rate').textContent = (m.winRate * 100).toFixed(2) + '%';
			document.getElementById('profit-factor').textContent = m.profitFactor.toFixed(2);
			document.getElementById('max-drawdown').textContent = m.maxDrawdownPercent.toFixed(2) + '%';
			document.getElementById('sharpe-ratio').textContent = m.sharpeRatio.toFixed(2);
		};
		ws.onclose = () => setTimeout(() => location.reload(), 5000);
	</script>
</body>
</html>`

func (d *RiskDashboard) handleDashboard(w http.ResponseWriter, r *http.Request) {
	t, err := template.New("dashboard").Parse(dashboardHTML)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}

func (d *RiskDashboard) handleMetricsAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.collectMetrics())
}

func (d *RiskDashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("dashboard: websocket upgrade failed")
		return
	}
	defer conn.Close()

	d.clientsMu.Lock()
	d.clients[conn] = true
	d.clientsMu.Unlock()

	if data, err := json.Marshal(d.collectMetrics()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	d.clientsMu.Unlock()
}
