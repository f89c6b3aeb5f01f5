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

// --- RiskStore Implementation ---

// CreateCircuitBreaker inserts an active breaker record.
func (r *Repository) CreateCircuitBreaker(ctx context.Context, cb *domain.CircuitBreaker) error {
	const query = `
	INSERT INTO circuit_breakers (id, reason, triggered_at, status)
	VALUES (?, ?, ?, ?)`

	if cb.ID == "" {
		cb.ID = uuid.NewString()
	}
	if cb.Status == "" {
		cb.Status = domain.BreakerActive
	}
	if _, err := r.exec(ctx, query, cb.ID, cb.Reason, cb.TriggeredAt.UTC(), string(cb.Status)); err != nil {
		return fmt.Errorf("failed to insert circuit breaker: %w", err)
	}
	return nil
}

// AnyActiveCircuitBreaker reports whether at least one breaker is active.
func (r *Repository) AnyActiveCircuitBreaker(ctx context.Context) (bool, error) {
	const query = `SELECT COUNT(*) FROM circuit_breakers WHERE status = ?`
	var count int
	if err := r.queryRow(ctx, query, string(domain.BreakerActive)).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query active circuit breakers: %w", err)
	}
	return count > 0, nil
}

// ListCircuitBreakers returns breakers, newest first.
func (r *Repository) ListCircuitBreakers(ctx context.Context, onlyActive bool) ([]domain.CircuitBreaker, error) {
	query := `SELECT id, reason, triggered_at, status, cleared_at FROM circuit_breakers`
	var args []interface{}
	if onlyActive {
		query += ` WHERE status = ?`
		args = append(args, string(domain.BreakerActive))
	}
	query += ` ORDER BY triggered_at DESC`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query circuit breakers: %w", err)
	}
	defer rows.Close()

	breakers := make([]domain.CircuitBreaker, 0)
	for rows.Next() {
		var cb domain.CircuitBreaker
		var status string
		var clearedAt sql.NullTime
		if err := rows.Scan(&cb.ID, &cb.Reason, &cb.TriggeredAt, &status, &clearedAt); err != nil {
			return nil, fmt.Errorf("failed to scan circuit breaker: %w", err)
		}
		cb.Status = domain.BreakerStatus(status)
		if clearedAt.Valid {
			cb.ClearedAt = clearedAt.Time
		}
		breakers = append(breakers, cb)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circuit breaker rows: %w", err)
	}
	return breakers, nil
}

// ClearCircuitBreaker moves an active breaker to cleared.
func (r *Repository) ClearCircuitBreaker(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE circuit_breakers SET status = ?, cleared_at = ? WHERE id = ? AND status = ?`

	result, err := r.exec(ctx, query, string(domain.BreakerCleared), at.UTC(), id, string(domain.BreakerActive))
	if err != nil {
		return fmt.Errorf("failed to clear circuit breaker %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for breaker %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("active circuit breaker %s: %w", id, ports.ErrNotFound)
	}
	r.logger.Info(ctx, "Circuit breaker cleared", map[string]interface{}{"breakerID": id})
	return nil
}

// SaveSnapshot appends a portfolio snapshot row.
func (r *Repository) SaveSnapshot(ctx context.Context, s domain.PortfolioState) error {
	const query = `
	INSERT INTO portfolio_snapshots (id, total_capital, available_capital, invested_capital,
	    unrealized_pnl, realized_pnl_today, daily_drawdown_pct, max_drawdown_pct,
	    open_positions, trades_today, snapshot_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.exec(ctx, query, uuid.NewString(), s.TotalCapital, s.AvailableCapital, s.InvestedCapital,
		s.UnrealizedPNL, s.RealizedPNLToday, s.DailyDrawdownPct, s.MaxDrawdownPct,
		s.OpenPositions, s.TradesToday, s.SnapshotTime.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent portfolio snapshot, or ErrNotFound.
func (r *Repository) LatestSnapshot(ctx context.Context) (*domain.PortfolioState, error) {
	const query = `
	SELECT total_capital, available_capital, invested_capital, unrealized_pnl, realized_pnl_today,
	       daily_drawdown_pct, max_drawdown_pct, open_positions, trades_today, snapshot_time
	FROM portfolio_snapshots
	ORDER BY snapshot_time DESC
	LIMIT 1`

	s := &domain.PortfolioState{}
	err := r.queryRow(ctx, query).Scan(&s.TotalCapital, &s.AvailableCapital, &s.InvestedCapital,
		&s.UnrealizedPNL, &s.RealizedPNLToday, &s.DailyDrawdownPct, &s.MaxDrawdownPct,
		&s.OpenPositions, &s.TradesToday, &s.SnapshotTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("portfolio snapshot: %w", ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return s, nil
}
