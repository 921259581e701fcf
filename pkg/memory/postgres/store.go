package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellbot-ai/wellbot/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.TurnStore    = (*TurnStoreImpl)(nil)
	_ memory.JournalStore = (*JournalStoreImpl)(nil)
)

// Store is the central PostgreSQL-backed memory store for Well-Bot. It holds a
// single [pgxpool.Pool] and exposes both persistence layers:
//
//   - [Store.Turns] returns a [TurnStoreImpl] implementing [memory.TurnStore]
//   - [Store.Journal] returns a [JournalStoreImpl] implementing [memory.JournalStore]
//
// All operations are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	turns   *TurnStoreImpl
	journal *JournalStoreImpl
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure all required
// tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:    pool,
		turns:   &TurnStoreImpl{pool: pool},
		journal: &JournalStoreImpl{pool: pool},
	}, nil
}

// Turns returns the turn log implementation which satisfies [memory.TurnStore].
func (s *Store) Turns() *TurnStoreImpl { return s.turns }

// Journal returns the journal implementation which satisfies [memory.JournalStore].
func (s *Store) Journal() *JournalStoreImpl { return s.journal }

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
