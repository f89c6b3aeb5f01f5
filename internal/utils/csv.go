package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/strategy/backtesting"
)

// record gives named access to one CSV row.
type record struct {
	cols map[string]int
	row  []string
	line int
}

func (r record) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r record) float(name string) (float64, error) {
	raw := r.str(name)
	if raw == "" {
		return 0, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("line %d column %s: %w", r.line, name, err)
	}
	return v, nil
}

func (r record) timestamp(name string) (time.Time, error) {
	raw := r.str(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("line %d column %s: %w", r.line, name, err)
	}
	return t.UTC(), nil
}

// readCSV parses a headed CSV file and calls fn for every data row.
func readCSV(filename string, required []string, fn func(record) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return parseCSV(file, required, fn)
}

func parseCSV(src io.Reader, required []string, fn func(record) error) error {
	reader := csv.NewReader(src)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("missing required column %q", name)
		}
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(record{cols: cols, row: row, line: line}); err != nil {
			return err
		}
	}
}

// ReadMarketsCSV loads market snapshots. Columns: id, sport, event_name,
// event_time, type, description, line, yes_price, no_price, liquidity, status, outcome.
func ReadMarketsCSV(filename string) ([]domain.Market, error) {
	var markets []domain.Market
	err := readCSV(filename, []string{"id", "event_time", "yes_price", "no_price"}, func(r record) error {
		m := domain.Market{
			ID:        r.str("id"),
			Sport:     r.str("sport"),
			EventName: r.str("event_name"),
			Type:      domain.MarketType(strings.ToLower(r.str("type"))),
			Desc:      r.str("description"),
			Status:    domain.MarketStatus(strings.ToLower(r.str("status"))),
			Outcome:   domain.Position(strings.ToLower(r.str("outcome"))),
		}
		if m.Status == "" {
			m.Status = domain.MarketActive
		}
		var err error
		if m.EventTime, err = r.timestamp("event_time"); err != nil {
			return err
		}
		if m.Line, err = r.float("line"); err != nil {
			return err
		}
		if m.YesPrice, err = r.float("yes_price"); err != nil {
			return err
		}
		if m.NoPrice, err = r.float("no_price"); err != nil {
			return err
		}
		if m.Liquidity, err = r.float("liquidity"); err != nil {
			return err
		}
		if m.ID == "" {
			return fmt.Errorf("line %d: empty market id", r.line)
		}
		markets = append(markets, m)
		return nil
	})
	return markets, err
}

// ReadQuotesCSV loads bookmaker quotes. Columns: market_id, bookmaker, yes_prob, no_prob, observed_at.
func ReadQuotesCSV(filename string) ([]domain.ReferenceQuote, error) {
	var quotes []domain.ReferenceQuote
	err := readCSV(filename, []string{"market_id", "bookmaker", "yes_prob", "no_prob", "observed_at"}, func(r record) error {
		q := domain.ReferenceQuote{
			MarketID:  r.str("market_id"),
			Bookmaker: domain.Bookmaker(strings.ToLower(r.str("bookmaker"))),
		}
		var err error
		if q.YesProb, err = r.float("yes_prob"); err != nil {
			return err
		}
		if q.NoProb, err = r.float("no_prob"); err != nil {
			return err
		}
		if q.ObservedAt, err = r.timestamp("observed_at"); err != nil {
			return err
		}
		quotes = append(quotes, q)
		return nil
	})
	return quotes, err
}

// ReadMatchupsCSV loads team ratings for total markets. Columns: market_id,
// home_team, home_points_for, home_points_against, away_team,
// away_points_for, away_points_against, home_advantage.
func ReadMatchupsCSV(filename string) ([]domain.Matchup, error) {
	required := []string{"market_id", "home_points_for", "home_points_against", "away_points_for", "away_points_against"}
	var matchups []domain.Matchup
	err := readCSV(filename, required, func(r record) error {
		m := domain.Matchup{
			MarketID: r.str("market_id"),
			Home:     domain.TeamRating{Team: r.str("home_team")},
			Away:     domain.TeamRating{Team: r.str("away_team")},
		}
		var err error
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{"home_points_for", &m.Home.PointsFor},
			{"home_points_against", &m.Home.PointsAgainst},
			{"away_points_for", &m.Away.PointsFor},
			{"away_points_against", &m.Away.PointsAgainst},
			{"home_advantage", &m.HomeAdvantage},
		} {
			if *f.dst, err = r.float(f.col); err != nil {
				return err
			}
		}
		matchups = append(matchups, m)
		return nil
	})
	return matchups, err
}

// ReadSignalsCSV loads recorded signals for backtesting. Columns: id, market_id,
// strategy, direction, confidence, edge_size, observed_price, fair_value, generated_at.
func ReadSignalsCSV(filename string) ([]domain.Signal, error) {
	required := []string{"market_id", "direction", "edge_size", "observed_price", "fair_value", "generated_at"}
	var signals []domain.Signal
	err := readCSV(filename, required, func(r record) error {
		s := domain.Signal{
			ID:        r.str("id"),
			MarketID:  r.str("market_id"),
			Strategy:  domain.StrategyTag(r.str("strategy")),
			Direction: domain.Direction(strings.ToLower(r.str("direction"))),
		}
		if s.ID == "" {
			s.ID = strconv.Itoa(r.line)
		}
		if s.Direction != domain.BuyYes && s.Direction != domain.BuyNo {
			return fmt.Errorf("line %d: unknown direction %q", r.line, s.Direction)
		}
		var err error
		if s.Confidence, err = r.float("confidence"); err != nil {
			return err
		}
		if s.EdgeSize, err = r.float("edge_size"); err != nil {
			return err
		}
		if s.ObservedPrice, err = r.float("observed_price"); err != nil {
			return err
		}
		if s.FairValue, err = r.float("fair_value"); err != nil {
			return err
		}
		if s.GeneratedAt, err = r.timestamp("generated_at"); err != nil {
			return err
		}
		signals = append(signals, s)
		return nil
	})
	return signals, err
}

// ReadResolutionsCSV loads market settlements. Columns: market_id, outcome
// (yes, no or empty for voided), liquidity, resolved_at.
func ReadResolutionsCSV(filename string) (map[string]backtesting.Resolution, error) {
	out := make(map[string]backtesting.Resolution)
	err := readCSV(filename, []string{"market_id", "resolved_at"}, func(r record) error {
		res := backtesting.Resolution{
			MarketID: r.str("market_id"),
			Outcome:  domain.Position(strings.ToLower(r.str("outcome"))),
		}
		if res.Outcome != "" && res.Outcome != domain.PositionYes && res.Outcome != domain.PositionNo {
			return fmt.Errorf("line %d: unknown outcome %q", r.line, res.Outcome)
		}
		var err error
		if res.Liquidity, err = r.float("liquidity"); err != nil {
			return err
		}
		if res.ResolvedAt, err = r.timestamp("resolved_at"); err != nil {
			return err
		}
		out[res.MarketID] = res
		return nil
	})
	return out, err
}

// WriteTradesToCSV writes trades, creating the parent directory if needed.
func WriteTradesToCSV(trades []domain.Trade, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	if err := writer.Write([]string{"id", "market_id", "signal_id", "strategy", "position", "quantity", "cost_basis",
		"entry_price", "entry_time", "exit_price", "exit_time", "pnl", "status", "close_reason"}); err != nil {
		return err
	}

	for _, t := range trades {
		exitTime := ""
		if !t.ExitTime.IsZero() {
			exitTime = t.ExitTime.UTC().Format(time.RFC3339)
		}
		if err := writer.Write([]string{
			t.ID,
			t.MarketID,
			t.SignalID,
			string(t.Strategy),
			string(t.Position),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.CostBasis, 'f', 2, 64),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			t.EntryTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			exitTime,
			strconv.FormatFloat(t.PNL, 'f', 2, 64),
			string(t.Status),
			string(t.CloseReason),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
