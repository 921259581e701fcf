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

// JournalStoreImpl persists journal and gratitude entries in a PostgreSQL
// journal_entries table.
//
// Obtain one via [Store.Journal] rather than constructing directly.
// All methods are safe for concurrent use.
type JournalStoreImpl struct {
	pool *pgxpool.Pool
}

// AddEntry implements [memory.JournalStore]. The entry's ID is assigned by
// the database; a zero CreatedAt is replaced with the current time.
func (s *JournalStoreImpl) AddEntry(ctx context.Context, entry memory.JournalEntry) error {
	const q = `
		INSERT INTO journal_entries (session_id, kind, content, created_at)
		VALUES ($1, $2, $3, $4)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, q, entry.SessionID, entry.Kind, entry.Content, createdAt)
	if err != nil {
		return fmt.Errorf("journal store: add entry: %w", err)
	}
	return nil
}

// ListEntries implements [memory.JournalStore]. Entries are returned newest
// first, narrowed by the given options.
func (s *JournalStoreImpl) ListEntries(ctx context.Context, opts ...memory.EntryOpt) ([]memory.JournalEntry, error) {
	params := memory.ApplyEntryOpts(opts)

	var (
		args       []any
		conditions []string
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.Kind != "" {
		conditions = append(conditions, "kind = "+next(params.Kind))
	}
	if params.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(params.SessionID))
	}
	if !params.Since.IsZero() {
		conditions = append(conditions, "created_at >= "+next(params.Since))
	}

	q := "SELECT id, session_id, kind, content, created_at\nFROM   journal_entries"
	if len(conditions) > 0 {
		q += "\nWHERE  " + strings.Join(conditions, "\n  AND  ")
	}
	q += "\nORDER  BY created_at DESC"

	if params.Limit > 0 {
		args = append(args, params.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal store: list entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.JournalEntry, error) {
		var e memory.JournalEntry
		err := row.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Content, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("journal store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.JournalEntry{}
	}
	return entries, nil
}
