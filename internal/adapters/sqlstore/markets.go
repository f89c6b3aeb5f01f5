package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

const marketColumns = `id, sport, event_name, event_time, market_type, description, line,
	yes_price, no_price, liquidity, status, outcome, updated_at`

// --- MarketDataStore Implementation ---

// ActiveMarkets returns active, liquid markets whose event has not started, soonest first.
func (r *Repository) ActiveMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + marketColumns + `
	FROM markets
	WHERE status = ? AND liquidity >= ? AND event_time > ?
	ORDER BY event_time ASC
	LIMIT ?`

	rows, err := r.query(ctx, query, domain.MarketActive, filter.MinLiquidity, filter.StartsAfter.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active markets: %w", err)
	}
	defer rows.Close()

	markets := make([]domain.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market during ActiveMarkets: %w", err)
		}
		markets = append(markets, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market rows: %w", err)
	}
	return markets, nil
}

// GetMarket retrieves a market by its ID.
func (r *Repository) GetMarket(ctx context.Context, id string) (*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = ?`

	m, err := scanMarket(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("market %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query market %s: %w", id, err)
	}
	return m, nil
}

// RecentQuotes returns the newest quote per bookmaker observed after since.
func (r *Repository) RecentQuotes(ctx context.Context, marketID string, since time.Time) ([]domain.ReferenceQuote, error) {
	const query = `
	SELECT market_id, bookmaker, yes_prob, no_prob, observed_at
	FROM reference_quotes
	WHERE market_id = ? AND observed_at > ?
	ORDER BY observed_at DESC`

	rows, err := r.query(ctx, query, marketID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes for market %s: %w", marketID, err)
	}
	defer rows.Close()

	seen := make(map[domain.Bookmaker]bool)
	quotes := make([]domain.ReferenceQuote, 0)
	for rows.Next() {
		var q domain.ReferenceQuote
		var bookmaker string
		if err := rows.Scan(&q.MarketID, &bookmaker, &q.YesProb, &q.NoProb, &q.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote for market %s: %w", marketID, err)
		}
		q.Bookmaker = domain.Bookmaker(bookmaker)
		if seen[q.Bookmaker] {
			continue // Older quote from a bookmaker already seen
		}
		seen[q.Bookmaker] = true
		quotes = append(quotes, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quote rows: %w", err)
	}
	return quotes, nil
}

// MatchupRatings returns the team ratings attached to a total market.
func (r *Repository) MatchupRatings(ctx context.Context, marketID string) (*domain.Matchup, error) {
	const query = `
	SELECT market_id, home_team, home_points_for, home_points_against,
	       away_team, away_points_for, away_points_against, home_advantage
	FROM matchups
	WHERE market_id = ?`

	m := &domain.Matchup{}
	err := r.queryRow(ctx, query, marketID).Scan(
		&m.MarketID, &m.Home.Team, &m.Home.PointsFor, &m.Home.PointsAgainst,
		&m.Away.Team, &m.Away.PointsFor, &m.Away.PointsAgainst, &m.HomeAdvantage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("market %s: %w", marketID, ports.ErrNoRatings)
		}
		return nil, fmt.Errorf("failed to query matchup for market %s: %w", marketID, err)
	}
	return m, nil
}

// --- Import helpers (market data ingestion) ---

// UpsertMarket inserts a market or refreshes its prices, liquidity and status.
func (r *Repository) UpsertMarket(ctx context.Context, m *domain.Market) error {
	const query = `
	INSERT INTO markets (` + marketColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		event_time = excluded.event_time,
		description = excluded.description,
		line = excluded.line,
		yes_price = excluded.yes_price,
		no_price = excluded.no_price,
		liquidity = excluded.liquidity,
		status = excluded.status,
		outcome = excluded.outcome,
		updated_at = excluded.updated_at`

	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.exec(ctx, query,
		m.ID, m.Sport, m.EventName, m.EventTime.UTC(), string(m.Type), m.Desc, m.Line,
		m.YesPrice, m.NoPrice, m.Liquidity, string(m.Status), string(m.Outcome), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert market %s: %w", m.ID, err)
	}
	r.logger.Debug(ctx, "Market upserted", map[string]interface{}{"marketID": m.ID, "status": m.Status})
	return nil
}

// SaveQuote appends a reference quote.
func (r *Repository) SaveQuote(ctx context.Context, q domain.ReferenceQuote) error {
	const query = `
	INSERT INTO reference_quotes (id, market_id, bookmaker, yes_prob, no_prob, observed_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.exec(ctx, query, uuid.NewString(), q.MarketID, string(q.Bookmaker), q.YesProb, q.NoProb, q.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert quote for market %s: %w", q.MarketID, err)
	}
	return nil
}

// SaveMatchup inserts or replaces the ratings attached to a market.
func (r *Repository) SaveMatchup(ctx context.Context, m domain.Matchup) error {
	const query = `
	INSERT INTO matchups (market_id, home_team, home_points_for, home_points_against,
	                      away_team, away_points_for, away_points_against, home_advantage)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (market_id) DO UPDATE SET
		home_team = excluded.home_team,
		home_points_for = excluded.home_points_for,
		home_points_against = excluded.home_points_against,
		away_team = excluded.away_team,
		away_points_for = excluded.away_points_for,
		away_points_against = excluded.away_points_against,
		home_advantage = excluded.home_advantage`

	_, err := r.exec(ctx, query, m.MarketID, m.Home.Team, m.Home.PointsFor, m.Home.PointsAgainst,
		m.Away.Team, m.Away.PointsFor, m.Away.PointsAgainst, m.HomeAdvantage)
	if err != nil {
		return fmt.Errorf("failed to upsert matchup for market %s: %w", m.MarketID, err)
	}
	return nil
}

// scanMarket scans a row into a domain.Market struct.
func scanMarket(s scanner) (*domain.Market, error) {
	m := &domain.Market{}
	var marketType, status, outcome string
	err := s.Scan(&m.ID, &m.Sport, &m.EventName, &m.EventTime, &marketType, &m.Desc, &m.Line,
		&m.YesPrice, &m.NoPrice, &m.Liquidity, &status, &outcome, &m.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	m.Type = domain.MarketType(marketType)
	m.Status = domain.MarketStatus(status)
	m.Outcome = domain.Position(outcome)
	return m, nil
}
