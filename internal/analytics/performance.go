package analytics

import (
	"sort"
	"time"

	"binarylab/internal/domain"
)

// PerformanceReport holds aggregate metrics over a sequence of completed
// simulated trades.
type PerformanceReport struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalProfit   float64
	AverageProfit float64
	AverageWin    float64
	AverageLoss   float64
	LargestWin    float64
	LargestLoss   float64
	ProfitFactor  float64
	Expectancy    float64
	MaxDrawdown   float64 // Fractional peak-to-trough decline of the equity curve

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration

	ExitReasons map[domain.ExitReason]int
	EquityCurve []EquityPoint
}

// EquityPoint represents one point on the cumulative-PnL equity curve.
type EquityPoint struct {
	Timestamp int64 // Exit time of the trade, seconds since epoch
	Equity    float64
	Drawdown  float64
}

// AnalyzePerformance computes a performance report from completed trades.
// Trades are evaluated in exit-time order regardless of input order.
func AnalyzePerformance(trades []*domain.TradeWithContext, initialBalance float64) *PerformanceReport {
	report := &PerformanceReport{
		ExitReasons: make(map[domain.ExitReason]int),
		EquityCurve: make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return report
	}

	ordered := make([]*domain.TradeWithContext, len(trades))
	copy(ordered, trades)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Exit.Timestamp < ordered[j].Exit.Timestamp
	})

	balance := initialBalance
	peak := initialBalance
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration

	for _, trade := range ordered {
		pnl := trade.Result.PNL
		report.TotalTrades++
		report.TotalProfit += pnl
		report.ExitReasons[trade.Exit.Reason]++
		totalDuration += time.Duration(trade.Exit.DurationMs) * time.Millisecond

		if trade.Result.Outcome == domain.Win {
			report.WinningTrades++
			consecutiveWins++
			consecutiveLosses = 0
			report.AverageWin = (report.AverageWin*float64(report.WinningTrades-1) + pnl) / float64(report.WinningTrades)
			if pnl > report.LargestWin {
				report.LargestWin = pnl
			}
		} else {
			report.LosingTrades++
			consecutiveLosses++
			consecutiveWins = 0
			report.AverageLoss = (report.AverageLoss*float64(report.LosingTrades-1) + pnl) / float64(report.LosingTrades)
			if pnl < report.LargestLoss {
				report.LargestLoss = pnl
			}
		}
		if consecutiveWins > report.MaxConsecutiveWins {
			report.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > report.MaxConsecutiveLosses {
			report.MaxConsecutiveLosses = consecutiveLosses
		}

		balance += pnl
		if balance > peak {
			peak = balance
		}
		var drawdown float64
		if peak > 0 {
			drawdown = (peak - balance) / peak
		}
		if drawdown > report.MaxDrawdown {
			report.MaxDrawdown = drawdown
		}
		report.EquityCurve = append(report.EquityCurve, EquityPoint{
			Timestamp: trade.Exit.Timestamp,
			Equity:    balance,
			Drawdown:  drawdown,
		})
	}

	report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades)
	report.AverageProfit = report.TotalProfit / float64(report.TotalTrades)
	if report.AverageLoss != 0 {
		report.ProfitFactor = report.AverageWin / -report.AverageLoss
	}
	report.Expectancy = report.WinRate*report.AverageWin + (1-report.WinRate)*report.AverageLoss
	report.AverageTradeDuration = totalDuration / time.Duration(report.TotalTrades)

	return report
}

// Outcomes reduces completed trades to the win/loss list consumed by the
// bootstrap validator, in exit-time order.
func Outcomes(trades []*domain.TradeWithContext) []domain.TradeOutcome {
	out := make([]domain.TradeOutcome, 0, len(trades))
	for _, trade := range trades {
		out = append(out, trade.ToOutcome())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
