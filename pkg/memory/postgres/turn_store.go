package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellbot-ai/wellbot/pkg/memory"
)

// TurnStoreImpl is the turn log backed by a PostgreSQL turns table with a GIN
// full-text search index.
//
// Obtain one via [Store.Turns] rather than constructing directly.
// All methods are safe for concurrent use.
type TurnStoreImpl struct {
	pool *pgxpool.Pool
}

// AppendTurn implements [memory.TurnStore]. It appends turn to the turns
// table under sessionID.
func (s *TurnStoreImpl) AppendTurn(ctx context.Context, sessionID string, turn memory.Turn) error {
	const q = `
		INSERT INTO turns
		    (session_id, speaker, text, activity, timestamp, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.pool.Exec(ctx, q,
		sessionID,
		turn.Speaker,
		turn.Text,
		turn.Activity,
		ts,
		turn.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("turn store: append turn: %w", err)
	}
	return nil
}

// RecentTurns implements [memory.TurnStore]. It returns all turns for
// sessionID whose timestamp is no earlier than time.Now()-window, ordered
// chronologically (oldest first).
func (s *TurnStoreImpl) RecentTurns(ctx context.Context, sessionID string, window time.Duration) ([]memory.Turn, error) {
	const q = `
		SELECT speaker, text, activity, timestamp, duration_ns
		FROM   turns
		WHERE  session_id = $1
		  AND  timestamp  >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, sessionID, window.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("turn store: recent turns: %w", err)
	}
	return collectTurns(rows)
}

// SearchTurns implements [memory.TurnStore]. It performs a PostgreSQL
// full-text search over the text column and applies optional filters from
// opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is
// required.
func (s *TurnStoreImpl) SearchTurns(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.Turn, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(opts.Speaker))
	}
	if opts.Activity != "" {
		conditions = append(conditions, "activity = "+next(opts.Activity))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}

	q := "SELECT speaker, text, activity, timestamp, duration_ns\n" +
		"FROM   turns\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("turn store: search turns: %w", err)
	}
	return collectTurns(rows)
}

// collectTurns scans pgx rows into a slice of Turn values.
func collectTurns(rows pgx.Rows) ([]memory.Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Turn, error) {
		var (
			t          memory.Turn
			durationNS int64
		)
		if err := row.Scan(
			&t.Speaker,
			&t.Text,
			&t.Activity,
			&t.Timestamp,
			&durationNS,
		); err != nil {
			return memory.Turn{}, err
		}
		t.Duration = time.Duration(durationNS)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("turn store: scan rows: %w", err)
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	return turns, nil
}
