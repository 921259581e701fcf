// Package memory defines the persistence interfaces used by Well-Bot activities.
//
// Two stores are exposed:
//
//   - [TurnStore]: a time-ordered log of conversation turns. Activities append
//     each exchange (who spoke, what was said, during which activity) and read
//     back a recency window when they need conversational context.
//   - [JournalStore]: durable user-authored content — journal entries and
//     gratitude items — written by the journaling and gratitude activities.
//
// The session core never depends on this package; only activities do. All
// interfaces are public so that external packages can supply alternative
// storage backends (Postgres, SQLite, in-memory, …) without depending on
// wellbot internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// SearchOpts configures a keyword / full-text search over logged turns.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// Speaker restricts results to turns by a specific speaker
	// ("user" or "assistant"). An empty string matches all speakers.
	Speaker string

	// Activity restricts results to turns logged during a specific activity
	// (e.g., "smalltalk", "journal"). An empty string matches all activities.
	Activity string

	// After filters turns recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters turns recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// TurnStore is a time-ordered, append-only log of [Turn] records for one or
// more voice sessions.
//
// Turns must be returned in chronological order unless otherwise specified.
// Implementations must be safe for concurrent use.
type TurnStore interface {
	// AppendTurn appends a Turn to the log for the given session.
	// sessionID must be non-empty.
	// Returns an error only on persistent storage failure.
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error

	// RecentTurns returns all turns for the given session whose Timestamp is
	// no earlier than time.Now()-window.
	// Returns an empty (non-nil) slice when no matching turns exist.
	RecentTurns(ctx context.Context, sessionID string, window time.Duration) ([]Turn, error)

	// SearchTurns performs keyword / full-text search over logged turns.
	// The query string is matched against the Text field.
	// opts refines the result set by time range, speaker, activity, or
	// session scope.
	// Returns an empty (non-nil) slice when no turns match.
	SearchTurns(ctx context.Context, query string, opts SearchOpts) ([]Turn, error)
}

// JournalStore persists user-authored entries: free-form journal text and
// single gratitude items. Entries are write-once; there is no update path.
//
// Implementations must be safe for concurrent use.
type JournalStore interface {
	// AddEntry persists a new entry. The entry's ID field is ignored on
	// input; implementations assign it. CreatedAt, if zero, is set to the
	// current time by the implementation.
	AddEntry(ctx context.Context, entry JournalEntry) error

	// ListEntries returns stored entries, newest first.
	// [EntryOpt] options narrow the result set by kind, session, or age.
	// Returns an empty (non-nil) slice when no entries match.
	ListEntries(ctx context.Context, opts ...EntryOpt) ([]JournalEntry, error)
}
