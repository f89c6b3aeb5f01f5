package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyEdgeBot/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadMarketsCSV(t *testing.T) {
	path := writeFile(t, "markets.csv", `id,sport,event_name,event_time,type,description,line,yes_price,no_price,liquidity,status,outcome
pm-1,NFL,Chiefs vs Bills,2026-01-18T20:00:00Z,total,Total Points Over 47.5,,0.52,0.48,25000,,
pm-2,NBA,Lakers vs Celtics,2026-01-19T01:00:00Z,moneyline,Lakers win,,0.40,0.60,12000,resolved,NO
`)
	markets, err := ReadMarketsCSV(path)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	m := markets[0]
	assert.Equal(t, "pm-1", m.ID)
	assert.Equal(t, domain.MarketTotal, m.Type)
	assert.Equal(t, domain.MarketActive, m.Status, "status defaults to active")
	assert.Equal(t, time.Date(2026, 1, 18, 20, 0, 0, 0, time.UTC), m.EventTime)
	line, ok := m.TotalLine()
	assert.True(t, ok)
	assert.Equal(t, 47.5, line)

	assert.Equal(t, domain.MarketResolved, markets[1].Status)
	assert.Equal(t, domain.PositionNo, markets[1].Outcome)
}

func TestReadMarketsCSV_Errors(t *testing.T) {
	missing := writeFile(t, "missing.csv", "id,event_time,yes_price\npm-1,2026-01-18T20:00:00Z,0.5\n")
	_, err := ReadMarketsCSV(missing)
	assert.ErrorContains(t, err, `missing required column "no_price"`)

	bad := writeFile(t, "bad.csv", "id,event_time,yes_price,no_price\npm-1,2026-01-18T20:00:00Z,abc,0.5\n")
	_, err = ReadMarketsCSV(bad)
	assert.ErrorContains(t, err, "line 2 column yes_price")

	_, err = ReadMarketsCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestReadQuotesAndMatchups(t *testing.T) {
	quotes, err := ReadQuotesCSV(writeFile(t, "quotes.csv", `market_id,bookmaker,yes_prob,no_prob,observed_at
pm-1,Pinnacle,0.55,0.47,2026-01-18T18:00:00Z
`))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, domain.BookmakerPinnacle, quotes[0].Bookmaker)
	assert.Equal(t, 0.55, quotes[0].YesProb)

	matchups, err := ReadMatchupsCSV(writeFile(t, "matchups.csv", `market_id,home_team,home_points_for,home_points_against,away_team,away_points_for,away_points_against,home_advantage
pm-1,KC,27.1,19.5,BUF,26.4,20.2,1.5
pm-2,LAL,115,112,BOS,118,108,
`))
	require.NoError(t, err)
	require.Len(t, matchups, 2)
	assert.Equal(t, "KC", matchups[0].Home.Team)
	assert.Equal(t, 20.2, matchups[0].Away.PointsAgainst)
	assert.Equal(t, 1.5, matchups[0].HomeAdvantage)
	assert.Zero(t, matchups[1].HomeAdvantage)
}

func TestReadSignalsAndResolutions(t *testing.T) {
	signals, err := ReadSignalsCSV(writeFile(t, "signals.csv", `id,market_id,strategy,direction,confidence,edge_size,observed_price,fair_value,generated_at
,pm-1,clv_arb,BUY_YES,0.8,0.05,0.55,0.60,2026-01-18T17:00:00Z
`))
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "2", signals[0].ID, "missing ids fall back to the line number")
	assert.Equal(t, domain.BuyYes, signals[0].Direction)
	assert.Equal(t, domain.StrategyClvArbitrage, signals[0].Strategy)

	_, err = ReadSignalsCSV(writeFile(t, "bad.csv", `market_id,direction,edge_size,observed_price,fair_value,generated_at
pm-1,sell,0.05,0.55,0.60,2026-01-18T17:00:00Z
`))
	assert.ErrorContains(t, err, "unknown direction")

	res, err := ReadResolutionsCSV(writeFile(t, "res.csv", `market_id,outcome,liquidity,resolved_at
pm-1,yes,25000,2026-01-19T00:00:00Z
pm-2,,8000,2026-01-19T04:00:00Z
`))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionYes, res["pm-1"].Outcome)
	assert.Empty(t, res["pm-2"].Outcome, "voided")
	assert.Equal(t, 8000.0, res["pm-2"].Liquidity)
}

func TestWriteTradesToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trades.csv")
	entry := time.Date(2026, 1, 18, 17, 0, 0, 0, time.UTC)
	trades := []domain.Trade{
		{ID: "t1", MarketID: "pm-1", Position: domain.PositionYes, Quantity: 100, CostBasis: 55, EntryPrice: 0.55,
			EntryTime: entry, ExitPrice: 1, ExitTime: entry.Add(time.Hour), PNL: 45, Status: domain.TradeClosed,
			CloseReason: domain.CloseReasonResolved},
		{ID: "t2", MarketID: "pm-2", Position: domain.PositionNo, Quantity: 10, CostBasis: 4, EntryPrice: 0.4,
			EntryTime: entry, Status: domain.TradeOpen},
	}
	require.NoError(t, WriteTradesToCSV(trades, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "t1,pm-1,,,yes,100,55.00,0.55,2026-01-18T17:00:00Z,1,2026-01-18T18:00:00Z,45.00,closed,RESOLVED")
	assert.Contains(t, content, "t2,pm-2,,,no,10,4.00,0.4,2026-01-18T17:00:00Z,0,,0.00,open,")
}
