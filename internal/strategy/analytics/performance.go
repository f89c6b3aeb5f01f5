package analytics

import (
	"math"
	"sort"
	"time"

	"polyEdgeBot/internal/domain"
)

const (
	// riskFreeRate is the annual rate subtracted from per-trade returns.
	riskFreeRate = 0.04
	// periodsPerYear annualizes per-trade Sharpe and Sortino.
	periodsPerYear = 252
)

// PerformanceMetrics holds performance metrics for a set of closed trades
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	BreakevenTrades    int
	WinRate            float64
	TotalProfit        float64
	GrossProfit        float64
	GrossLoss          float64 // Positive number
	MaxDrawdown        float64 // Fraction of peak equity
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64 // Negative number
	SharpeRatio        float64
	SortinoRatio       float64
	FinalBalance       float64
	ReturnOnInvestment float64

	// Advanced Metrics
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	RecoveryFactor       float64
	Expectancy           float64
	RiskRewardRatio      float64
	MonthlyReturns       map[string]float64
	ByStrategy           map[domain.StrategyTag]*StrategyStats
	CloseReasons         map[domain.CloseReason]int
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
}

// StrategyStats summarizes trades of one strategy.
type StrategyStats struct {
	Trades  int
	Wins    int
	PNL     float64
	WinRate float64
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
	Duration   time.Duration
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance computes metrics over closed trades in exit order.
// Open trades are ignored.
func AnalyzePerformance(trades []domain.Trade, startingCapital float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		FinalBalance:   startingCapital,
		MonthlyReturns: make(map[string]float64),
		ByStrategy:     make(map[domain.StrategyTag]*StrategyStats),
		CloseReasons:   make(map[domain.CloseReason]int),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	closed := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == domain.TradeClosed {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return metrics
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitTime.Before(closed[j].ExitTime)
	})

	balance := startingCapital
	peak := startingCapital
	var current *Drawdown
	var winStreak, lossStreak int
	var totalDuration time.Duration
	returns := make([]float64, 0, len(closed))

	for _, trade := range closed {
		metrics.TotalTrades++
		switch {
		case trade.PNL > 0:
			metrics.WinningTrades++
			metrics.GrossProfit += trade.PNL
			winStreak++
			lossStreak = 0
		case trade.PNL < 0:
			metrics.LosingTrades++
			metrics.GrossLoss -= trade.PNL
			lossStreak++
			winStreak = 0
		default:
			metrics.BreakevenTrades++
			winStreak, lossStreak = 0, 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, winStreak)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, lossStreak)

		stats, ok := metrics.ByStrategy[trade.Strategy]
		if !ok {
			stats = &StrategyStats{}
			metrics.ByStrategy[trade.Strategy] = stats
		}
		stats.Trades++
		stats.PNL += trade.PNL
		if trade.PNL > 0 {
			stats.Wins++
		}
		metrics.CloseReasons[trade.CloseReason]++

		if trade.CostBasis > 0 {
			returns = append(returns, trade.PNL/trade.CostBasis)
		}
		totalDuration += trade.ExitTime.Sub(trade.EntryTime)

		balance += trade.PNL
		metrics.TotalProfit += trade.PNL
		metrics.MonthlyReturns[trade.ExitTime.UTC().Format("2006-01")] += trade.PNL

		if balance > peak {
			peak = balance
			if current != nil {
				current.EndTime = trade.ExitTime
				current.EndValue = balance
				current.Duration = current.EndTime.Sub(current.StartTime)
				metrics.Drawdowns = append(metrics.Drawdowns, *current)
				current = nil
			}
		} else if balance < peak {
			depth := (peak - balance) / peak
			if current == nil {
				current = &Drawdown{StartTime: trade.ExitTime, StartValue: peak, Depth: depth}
			} else {
				current.Depth = math.Max(current.Depth, depth)
			}
			metrics.MaxDrawdown = math.Max(metrics.MaxDrawdown, depth)
		}

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     trade.ExitTime,
			Value:    balance,
			Drawdown: (peak - balance) / peak,
		})
	}

	if current != nil {
		current.EndTime = closed[len(closed)-1].ExitTime
		current.EndValue = balance
		current.Duration = current.EndTime.Sub(current.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *current)
	}

	metrics.FinalBalance = balance
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = -metrics.GrossLoss / float64(metrics.LosingTrades)
	}
	if metrics.GrossLoss > 0 {
		metrics.ProfitFactor = metrics.GrossProfit / metrics.GrossLoss
	}
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}
	if startingCapital > 0 {
		metrics.ReturnOnInvestment = (balance - startingCapital) / startingCapital
		if metrics.MaxDrawdown > 0 {
			metrics.RecoveryFactor = metrics.TotalProfit / (startingCapital * metrics.MaxDrawdown)
		}
	}
	metrics.AverageTradeDuration = totalDuration / time.Duration(len(closed))
	metrics.Expectancy = metrics.TotalProfit / float64(metrics.TotalTrades)
	metrics.SharpeRatio = SharpeRatio(returns)
	metrics.SortinoRatio = SortinoRatio(returns)

	for _, s := range metrics.ByStrategy {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return metrics
}

// SharpeRatio annualizes the mean excess per-trade return over its standard deviation.
func SharpeRatio(returns []float64) float64 {
	excess := excessReturns(returns)
	sd := stdDev(excess)
	if sd < 1e-12 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(periodsPerYear)
}

// SortinoRatio is SharpeRatio with only downside deviation in the denominator.
func SortinoRatio(returns []float64) float64 {
	excess := excessReturns(returns)
	var downside []float64
	for _, r := range excess {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	sd := stdDev(downside)
	if sd < 1e-12 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(periodsPerYear)
}

func excessReturns(returns []float64) []float64 {
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - riskFreeRate/periodsPerYear
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the population standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var v float64
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)))
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
