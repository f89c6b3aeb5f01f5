package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

const tradeColumns = `id, market_id, signal_id, strategy, position, quantity, cost_basis,
	entry_price, entry_time, entry_tx_id, COALESCE(exit_price, 0), exit_time, exit_tx_id,
	COALESCE(pnl, 0), status, close_reason`

// --- TradeLedger Implementation ---

// CreateTrade saves a new open trade. A missing ID is generated.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, market_id, signal_id, strategy, position, quantity, cost_basis,
	                    entry_price, entry_time, entry_tx_id, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Status == "" {
		trade.Status = domain.TradeOpen
	}
	_, err := r.exec(ctx, query,
		trade.ID, trade.MarketID, trade.SignalID, string(trade.Strategy), string(trade.Position),
		trade.Quantity, trade.CostBasis, trade.EntryPrice, trade.EntryTime.UTC(), trade.EntryTxID,
		string(trade.Status))
	if err != nil {
		return fmt.Errorf("failed to insert trade for market %s: %w", trade.MarketID, err)
	}
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": trade.ID, "marketID": trade.MarketID})
	return nil
}

// CloseTrade records the exit of an open trade. Closing twice returns ErrTradeNotOpen.
func (r *Repository) CloseTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET exit_price = ?, exit_time = ?, exit_tx_id = ?, pnl = ?, status = ?, close_reason = ?
	WHERE id = ? AND status = ?`

	result, err := r.exec(ctx, query,
		trade.ExitPrice, nullTime(trade.ExitTime), nullString(trade.ExitTxID), trade.PNL,
		string(domain.TradeClosed), nullString(string(trade.CloseReason)),
		trade.ID, string(domain.TradeOpen))
	if err != nil {
		return fmt.Errorf("failed to close trade %s: %w", trade.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for close trade %s: %w", trade.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s: %w", trade.ID, ports.ErrTradeNotOpen)
	}
	trade.Status = domain.TradeClosed
	r.logger.Debug(ctx, "Trade closed", map[string]interface{}{"tradeID": trade.ID, "pnl": trade.PNL, "reason": trade.CloseReason})
	return nil
}

// OpenTrades lists open trades, oldest first.
func (r *Repository) OpenTrades(ctx context.Context) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = ? ORDER BY entry_time ASC`
	return r.listTrades(ctx, "OpenTrades", query, string(domain.TradeOpen))
}

// ClosedTrades lists closed trades ordered by exit time.
func (r *Repository) ClosedTrades(ctx context.Context) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = ? ORDER BY exit_time ASC`
	return r.listTrades(ctx, "ClosedTrades", query, string(domain.TradeClosed))
}

// RecentClosedTrades lists trades closed after since, newest first.
func (r *Repository) RecentClosedTrades(ctx context.Context, since time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
	FROM trades
	WHERE status = ? AND exit_time > ?
	ORDER BY exit_time DESC
	LIMIT ?`
	return r.listTrades(ctx, "RecentClosedTrades", query, string(domain.TradeClosed), since.UTC(), limit)
}

func (r *Repository) listTrades(ctx context.Context, op, query string, args ...interface{}) ([]domain.Trade, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades during %s: %w", op, err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during %s: %w", op, err)
		}
		trades = append(trades, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// PortfolioAggregate computes capital figures over the whole ledger.
// Total capital is starting capital plus all realized P&L; open positions are
// marked at the current market price (entry price if the market is unknown).
func (r *Repository) PortfolioAggregate(ctx context.Context) (domain.LedgerAggregate, error) {
	const query = `
	SELECT
		COALESCE(SUM(CASE WHEN t.status = ? THEN t.pnl ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status = ? THEN t.cost_basis ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status = ? THEN
			(CASE WHEN t.position = ? THEN COALESCE(m.yes_price, t.entry_price)
			      ELSE COALESCE(m.no_price, t.entry_price) END) * t.quantity - t.cost_basis
			ELSE 0 END), 0)
	FROM trades t
	LEFT JOIN markets m ON m.id = t.market_id`

	var realized, invested, unrealized float64
	err := r.queryRow(ctx, query,
		string(domain.TradeClosed), string(domain.TradeOpen), string(domain.TradeOpen), string(domain.PositionYes),
	).Scan(&realized, &invested, &unrealized)
	if err != nil {
		return domain.LedgerAggregate{}, fmt.Errorf("failed to aggregate portfolio: %w", err)
	}

	total := r.startingCapital + realized
	return domain.LedgerAggregate{
		TotalCapital:     total,
		AvailableCapital: total - invested,
		InvestedCapital:  invested,
		UnrealizedPNL:    unrealized,
	}, nil
}

// RealizedPNLSince sums the P&L of trades closed at or after since.
func (r *Repository) RealizedPNLSince(ctx context.Context, since time.Time) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE status = ? AND exit_time >= ?`
	var total float64
	if err := r.queryRow(ctx, query, string(domain.TradeClosed), since.UTC()).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total, nil
}

// CountOpenTrades counts open trades.
func (r *Repository) CountOpenTrades(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE status = ?`
	var count int
	if err := r.queryRow(ctx, query, string(domain.TradeOpen)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open trades: %w", err)
	}
	return count, nil
}

// CountTradesSince counts trades entered at or after since.
func (r *Repository) CountTradesSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE entry_time >= ?`
	var count int
	if err := r.queryRow(ctx, query, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades since %s: %w", since, err)
	}
	return count, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var strategy, position, status string
	var exitTime sql.NullTime
	var exitTx, closeReason sql.NullString
	err := s.Scan(&t.ID, &t.MarketID, &t.SignalID, &strategy, &position, &t.Quantity, &t.CostBasis,
		&t.EntryPrice, &t.EntryTime, &t.EntryTxID, &t.ExitPrice, &exitTime, &exitTx,
		&t.PNL, &status, &closeReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Strategy = domain.StrategyTag(strategy)
	t.Position = domain.Position(position)
	t.Status = domain.TradeStatus(status)
	if exitTime.Valid {
		t.ExitTime = exitTime.Time
	}
	if exitTx.Valid {
		t.ExitTxID = exitTx.String
	}
	if closeReason.Valid {
		t.CloseReason = domain.CloseReason(closeReason.String)
	}
	return t, nil
}
