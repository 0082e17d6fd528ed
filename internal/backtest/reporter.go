package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/trade"
)

// Reporter writes a finished backtest's trading state to disk in the three formats a
// researcher reviewing a run actually wants: a human-readable summary, a trade-by-trade CSV
// log, and a machine-readable JSON dump.
type Reporter struct {
	state      *trade.TradingState
	outputPath string
}

// NewReporter creates a Reporter over a finished Engine.Run's final trading state.
func NewReporter(state *trade.TradingState, outputPath string) *Reporter {
	return &Reporter{state: state, outputPath: outputPath}
}

// closedTradesChronological returns the closed trade history sorted oldest-first by close
// time, the order the summary and drawdown calculations walk it in.
func (r *Reporter) closedTradesChronological() []trade.TradeClosed {
	trades := r.state.ClosedHistory().TradesDesc()
	sort.Slice(trades, func(i, j int) bool { return trades[i].ClosedAt.Before(trades[j].ClosedAt) })
	return trades
}

// GenerateReport writes every report format to outputPath, creating it if necessary.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("backtest: create output directory: %w", err)
	}
	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateTradeLog(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	return nil
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "backtest_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("backtest: create summary file: %w", err)
	}
	defer file.Close()

	trades := r.closedTradesChronological()

	fmt.Fprintf(file, "BACKTEST RESULTS SUMMARY\n")
	fmt.Fprintf(file, "========================\n\n")
	fmt.Fprintf(file, "%s\n\n", r.state.Summary())

	winRate, profitFactor := winRateAndProfitFactor(trades)
	maxDrawdown := maxDrawdownPercent(trades)
	sharpe := sharpeRatio(trades)

	fmt.Fprintf(file, "TRADING STATISTICS\n")
	fmt.Fprintf(file, "-------------------\n")
	fmt.Fprintf(file, "Closed Trades: %d\n", len(trades))
	fmt.Fprintf(file, "Win Rate: %.2f%%\n", winRate*100)
	fmt.Fprintf(file, "Profit Factor: %.2f\n\n", profitFactor)

	fmt.Fprintf(file, "RISK METRICS\n")
	fmt.Fprintf(file, "------------\n")
	fmt.Fprintf(file, "Max Drawdown: %.2f%%\n", maxDrawdown)
	fmt.Fprintf(file, "Sharpe Ratio: %.2f\n", sharpe)

	log.Info().Str("file", summaryPath).Msg("backtest: summary report generated")
	return nil
}

func (r *Reporter) generateTradeLog() error {
	csvPath := filepath.Join(r.outputPath, "trade_log.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("backtest: create trade log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"ID", "Side", "Entry Time", "Close Time", "Entry Price",
		"Close Price", "Quantity", "Margin", "PL (sats)", "Closing Fee", "Reason",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, t := range r.closedTradesChronological() {
		record := []string{
			t.ID.String(),
			t.Side.String(),
			t.CreatedAt.Format(time.RFC3339),
			t.ClosedAt.Format(time.RFC3339),
			t.EntryPrice.String(),
			t.ClosePrice.String(),
			t.Quantity.String(),
			t.Margin.String(),
			fmt.Sprintf("%d", t.PL()),
			fmt.Sprintf("%d", t.ClosingFee),
			closeReason(t),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Msg("backtest: trade log generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "backtest_results.json")

	trades := r.closedTradesChronological()
	winRate, profitFactor := winRateAndProfitFactor(trades)

	report := map[string]any{
		"summary": map[string]any{
			"balance":        r.state.Balance(),
			"realized_pl":    r.state.RealizedPL(),
			"closed_trades":  len(trades),
			"win_rate":       winRate,
			"profit_factor":  profitFactor,
			"max_drawdown":   maxDrawdownPercent(trades),
			"sharpe_ratio":   sharpeRatio(trades),
			"running_trades": r.state.RunningLen(),
		},
		"trades":       trades,
		"generated_at": time.Now().UTC(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest: marshal JSON report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("backtest: write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("backtest: JSON report generated")
	return nil
}

// PrintSummary prints a short summary to the console, for interactive runs.
func (r *Reporter) PrintSummary() {
	trades := r.closedTradesChronological()
	winRate, profitFactor := winRateAndProfitFactor(trades)

	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Println(r.state.Summary())
	fmt.Printf("Closed Trades: %d\n", len(trades))
	fmt.Printf("Win Rate: %.2f%%\n", winRate*100)
	fmt.Printf("Profit Factor: %.2f\n", profitFactor)
	fmt.Printf("Max Drawdown: %.2f%%\n", maxDrawdownPercent(trades))
	fmt.Printf("Sharpe Ratio: %.2f\n", sharpeRatio(trades))
	fmt.Println("========================")
}

func closeReason(t trade.TradeClosed) string {
	switch {
	case t.ClosePrice == t.Liquidation:
		return "liquidation"
	case t.Takeprofit != nil && t.ClosePrice == *t.Takeprofit:
		return "take_profit"
	case t.Stoploss != nil && t.ClosePrice == *t.Stoploss:
		return "stop_loss"
	default:
		return "manual"
	}
}

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

// maxDrawdownPercent replays the chronological PL sequence against a running high-water mark,
// the same way the original engine's drawdown calculation does.
func maxDrawdownPercent(trades []trade.TradeClosed) float64 {
	if len(trades) == 0 {
		return 0
	}

	var peak, balance float64
	var maxDrawdown float64
	for _, t := range trades {
		balance += float64(t.PL())
		if balance > peak {
			peak = balance
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - balance) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown * 100
}

// sharpeRatio computes a simplified, zero-risk-free-rate Sharpe ratio over per-trade
// percentage returns, annualized assuming 252 trading-day periods.
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
