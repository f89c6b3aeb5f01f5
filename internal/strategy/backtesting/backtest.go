package backtesting

import (
	"fmt"
	"math"
	"sort"
	"time"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/risk"
	"polyEdgeBot/internal/strategy/analytics"
)

// BacktestConfig holds configuration for backtesting
type BacktestConfig struct {
	StartTime          time.Time // Zero means unbounded
	EndTime            time.Time // Zero means unbounded
	StartingCapital    float64
	KellyFraction      float64
	MaxPositionSizePct float64
	SlippagePct        float64 // Fraction applied against us on entry and exit, e.g. 0.02
	GasCostPerTrade    float64 // Flat cost charged once per round trip
	MinPositionSize    float64 // Stakes below this are skipped
	MinLiquidity       float64
}

// DefaultConfig mirrors the live risk defaults with paper-trading costs.
func DefaultConfig() BacktestConfig {
	return BacktestConfig{
		StartingCapital:    50000,
		KellyFraction:      0.5,
		MaxPositionSizePct: 2,
		SlippagePct:        0.02,
		GasCostPerTrade:    0.15,
		MinPositionSize:    100,
		MinLiquidity:       5000,
	}
}

// Resolution is the known settlement of a market. An empty Outcome means the
// market was voided and positions are refunded at entry.
type Resolution struct {
	MarketID   string
	Outcome    domain.Position
	Liquidity  float64
	ResolvedAt time.Time
}

// BacktestResult holds the results of a backtest
type BacktestResult struct {
	Metrics        *analytics.PerformanceMetrics
	Trades         []domain.Trade
	SignalsSeen    int
	SignalsSkipped int
	Unresolved     int // Positions still open at the end of the data
	TotalGas       float64
	TotalSlippage  float64
	FinalCapital   float64
}

type openPosition struct {
	trade    domain.Trade
	slippage float64
}

// Backtest replays recorded signals against known resolutions, sizing each
// entry with the live Kelly sizer.
func Backtest(signals []domain.Signal, resolutions map[string]Resolution, config BacktestConfig) (*BacktestResult, error) {
	if config.StartingCapital <= 0 {
		return nil, fmt.Errorf("starting capital must be positive")
	}
	if config.SlippagePct < 0 || config.SlippagePct >= 1 {
		return nil, fmt.Errorf("slippage must be in [0, 1)")
	}

	ordered := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if !config.StartTime.IsZero() && s.GeneratedAt.Before(config.StartTime) {
			continue
		}
		if !config.EndTime.IsZero() && s.GeneratedAt.After(config.EndTime) {
			continue
		}
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].GeneratedAt.Before(ordered[j].GeneratedAt)
	})

	sizer := risk.Sizer{KellyMultiplier: config.KellyFraction, MaxPositionSizePct: config.MaxPositionSizePct}
	result := &BacktestResult{}
	capital := config.StartingCapital
	invested := 0.0
	open := make(map[string]*openPosition)

	settle := func(until time.Time, all bool) {
		// Settle in resolution order so capital evolves deterministically.
		var due []*openPosition
		for id, pos := range open {
			res, ok := resolutions[id]
			if !ok || res.ResolvedAt.IsZero() {
				continue
			}
			if all || !res.ResolvedAt.After(until) {
				due = append(due, pos)
			}
		}
		sort.Slice(due, func(i, j int) bool {
			ri, rj := resolutions[due[i].trade.MarketID], resolutions[due[j].trade.MarketID]
			if ri.ResolvedAt.Equal(rj.ResolvedAt) {
				return due[i].trade.MarketID < due[j].trade.MarketID
			}
			return ri.ResolvedAt.Before(rj.ResolvedAt)
		})
		for _, pos := range due {
			res := resolutions[pos.trade.MarketID]
			trade, exitSlip := closePosition(pos.trade, res, config)
			capital += trade.PNL
			invested -= trade.CostBasis
			result.TotalGas += config.GasCostPerTrade
			result.TotalSlippage += (pos.slippage + exitSlip) * trade.Quantity
			result.Trades = append(result.Trades, trade)
			delete(open, trade.MarketID)
		}
	}

	for _, sig := range ordered {
		result.SignalsSeen++
		settle(sig.GeneratedAt, false)

		if _, held := open[sig.MarketID]; held {
			result.SignalsSkipped++
			continue
		}
		if res, ok := resolutions[sig.MarketID]; ok && res.Liquidity < config.MinLiquidity {
			result.SignalsSkipped++
			continue
		}
		price := sig.ObservedPrice
		if price <= 0 || price >= 1 {
			result.SignalsSkipped++
			continue
		}

		stake := sizer.Stake(sig.FairValue, sig.FairValue-sig.EdgeSize, capital, capital-invested)
		if stake < config.MinPositionSize {
			result.SignalsSkipped++
			continue
		}

		slip := price * config.SlippagePct
		entry := price + slip
		trade := domain.Trade{
			MarketID:   sig.MarketID,
			SignalID:   sig.ID,
			Strategy:   sig.Strategy,
			Position:   sig.Direction.Position(),
			Quantity:   stake / entry,
			CostBasis:  stake,
			EntryPrice: entry,
			EntryTime:  sig.GeneratedAt,
			Status:     domain.TradeOpen,
		}
		invested += stake
		open[sig.MarketID] = &openPosition{trade: trade, slippage: slip}
	}
	settle(time.Time{}, true)

	result.Unresolved = len(open)
	result.FinalCapital = capital
	result.Metrics = analytics.AnalyzePerformance(result.Trades, config.StartingCapital)
	return result, nil
}

// closePosition settles a trade at the resolution payout less exit slippage and gas.
func closePosition(trade domain.Trade, res Resolution, config BacktestConfig) (domain.Trade, float64) {
	var payout float64
	switch res.Outcome {
	case trade.Position:
		payout = 1
	case "":
		payout = trade.EntryPrice // Voided market: refund
	default:
		payout = 0
	}
	exitSlip := payout * config.SlippagePct
	exit := math.Max(0, payout-exitSlip)

	trade.ExitPrice = exit
	trade.ExitTime = res.ResolvedAt
	trade.PNL = trade.Quantity*exit - trade.CostBasis - config.GasCostPerTrade
	trade.Status = domain.TradeClosed
	trade.CloseReason = domain.CloseReasonResolved
	return trade, exitSlip
}
