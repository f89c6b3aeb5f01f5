package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// --- SignalStore Implementation ---

// SaveSignals appends signals in a single transaction. Signals without an ID get one.
func (r *Repository) SaveSignals(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	const query = `
	INSERT INTO signals (id, market_id, strategy, direction, confidence, edge_size, recommended_size,
	                     observed_price, fair_value, generated_at, executed, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin signal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare signal insert: %w", err)
	}
	defer stmt.Close()

	for i := range signals {
		s := &signals[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		meta, err := encodeMetadata(s.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for signal %s: %w", s.ID, err)
		}
		_, err = stmt.ExecContext(ctx, s.ID, s.MarketID, string(s.Strategy), string(s.Direction),
			s.Confidence, s.EdgeSize, s.RecommendedSize, s.ObservedPrice, s.FairValue,
			s.GeneratedAt.UTC(), false, meta)
		if err != nil {
			return fmt.Errorf("failed to insert signal for market %s: %w", s.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signals: %w", err)
	}
	r.logger.Debug(ctx, "Signals stored", map[string]interface{}{"count": len(signals)})
	return nil
}

// FetchPending returns unexecuted signals generated after since, best first.
func (r *Repository) FetchPending(ctx context.Context, since time.Time, limit int) ([]domain.Signal, error) {
	const query = `
	SELECT id, market_id, strategy, direction, confidence, edge_size, recommended_size,
	       observed_price, fair_value, generated_at, executed, trade_id, metadata
	FROM signals
	WHERE executed = ? AND generated_at > ?
	ORDER BY confidence DESC, edge_size DESC, generated_at ASC
	LIMIT ?`

	rows, err := r.query(ctx, query, false, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending signals: %w", err)
	}
	defer rows.Close()

	signals := make([]domain.Signal, 0)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal during FetchPending: %w", err)
		}
		signals = append(signals, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

// MarkExecuted flips executed to true only if it was false, so one caller wins.
func (r *Repository) MarkExecuted(ctx context.Context, signalID string, tradeID *string) error {
	const query = `UPDATE signals SET executed = ?, trade_id = ? WHERE id = ? AND executed = ?`

	var linked sql.NullString
	if tradeID != nil {
		linked = sql.NullString{String: *tradeID, Valid: true}
	}
	result, err := r.exec(ctx, query, true, linked, signalID, false)
	if err != nil {
		return fmt.Errorf("failed to mark signal %s executed: %w", signalID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for signal %s: %w", signalID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("signal %s: %w", signalID, ports.ErrAlreadyExecuted)
	}
	return nil
}

// LinkTrade records the trade opened for an already executed signal.
func (r *Repository) LinkTrade(ctx context.Context, signalID, tradeID string) error {
	const query = `UPDATE signals SET trade_id = ? WHERE id = ?`

	result, err := r.exec(ctx, query, tradeID, signalID)
	if err != nil {
		return fmt.Errorf("failed to link trade %s to signal %s: %w", tradeID, signalID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for signal %s: %w", signalID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("signal %s: %w", signalID, ports.ErrNotFound)
	}
	return nil
}

// SignalsBetween lists every signal generated in [from, to), oldest first. Used by backtests.
func (r *Repository) SignalsBetween(ctx context.Context, from, to time.Time) ([]domain.Signal, error) {
	const query = `
	SELECT id, market_id, strategy, direction, confidence, edge_size, recommended_size,
	       observed_price, fair_value, generated_at, executed, trade_id, metadata
	FROM signals
	WHERE generated_at >= ? AND generated_at < ?
	ORDER BY generated_at ASC`

	rows, err := r.query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query signals between %s and %s: %w", from, to, err)
	}
	defer rows.Close()

	signals := make([]domain.Signal, 0)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal during SignalsBetween: %w", err)
		}
		signals = append(signals, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

// scanSignal scans a row into a domain.Signal struct.
func scanSignal(s scanner) (*domain.Signal, error) {
	sig := &domain.Signal{}
	var strategy, direction string
	var tradeID, metadata sql.NullString
	err := s.Scan(&sig.ID, &sig.MarketID, &strategy, &direction, &sig.Confidence, &sig.EdgeSize,
		&sig.RecommendedSize, &sig.ObservedPrice, &sig.FairValue, &sig.GeneratedAt, &sig.Executed,
		&tradeID, &metadata)
	if err != nil {
		return nil, err
	}
	sig.Strategy = domain.StrategyTag(strategy)
	sig.Direction = domain.Direction(direction)
	if tradeID.Valid {
		id := tradeID.String
		sig.TradeID = &id
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &sig.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for signal %s: %w", sig.ID, err)
		}
	}
	return sig, nil
}

func encodeMetadata(meta map[string]interface{}) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
