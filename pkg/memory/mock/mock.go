// Package mock provides in-memory test doubles for the memory store interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.TurnStore{}
//	store.RecentTurnsResult = []memory.Turn{{Text: "hello"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("AppendTurn"); got != 1 {
//	    t.Errorf("expected 1 AppendTurn call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/wellbot-ai/wellbot/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// TurnStore is a configurable test double for [memory.TurnStore].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil (empty slice returned).
type TurnStore struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// Appended accumulates every turn passed to [TurnStore.AppendTurn],
	// in order, regardless of session.
	Appended []memory.Turn

	// AppendTurnErr is returned by [TurnStore.AppendTurn] when non-nil.
	AppendTurnErr error

	// RecentTurnsResult is returned by [TurnStore.RecentTurns].
	// When nil, RecentTurns returns an empty non-nil slice.
	RecentTurnsResult []memory.Turn

	// RecentTurnsErr is returned by [TurnStore.RecentTurns] when non-nil.
	RecentTurnsErr error

	// SearchTurnsResult is returned by [TurnStore.SearchTurns].
	// When nil, SearchTurns returns an empty non-nil slice.
	SearchTurnsResult []memory.Turn

	// SearchTurnsErr is returned by [TurnStore.SearchTurns] when non-nil.
	SearchTurnsErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *TurnStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *TurnStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls and appended turns without altering
// response configuration.
func (m *TurnStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.Appended = nil
}

// AppendTurn implements [memory.TurnStore].
func (m *TurnStore) AppendTurn(_ context.Context, sessionID string, turn memory.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "AppendTurn", Args: []any{sessionID, turn}})
	if m.AppendTurnErr != nil {
		return m.AppendTurnErr
	}
	m.Appended = append(m.Appended, turn)
	return nil
}

// RecentTurns implements [memory.TurnStore].
func (m *TurnStore) RecentTurns(_ context.Context, sessionID string, window time.Duration) ([]memory.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "RecentTurns", Args: []any{sessionID, window}})
	if m.RecentTurnsErr != nil {
		return nil, m.RecentTurnsErr
	}
	if m.RecentTurnsResult == nil {
		return []memory.Turn{}, nil
	}
	out := make([]memory.Turn, len(m.RecentTurnsResult))
	copy(out, m.RecentTurnsResult)
	return out, nil
}

// SearchTurns implements [memory.TurnStore].
func (m *TurnStore) SearchTurns(_ context.Context, query string, opts memory.SearchOpts) ([]memory.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SearchTurns", Args: []any{query, opts}})
	if m.SearchTurnsErr != nil {
		return nil, m.SearchTurnsErr
	}
	if m.SearchTurnsResult == nil {
		return []memory.Turn{}, nil
	}
	out := make([]memory.Turn, len(m.SearchTurnsResult))
	copy(out, m.SearchTurnsResult)
	return out, nil
}

// JournalStore is a configurable test double for [memory.JournalStore].
// Entries passed to AddEntry accumulate in Entries and are returned by
// ListEntries (newest first), so tests can use it as a tiny in-memory store.
type JournalStore struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// Entries holds every entry added via [JournalStore.AddEntry].
	Entries []memory.JournalEntry

	// AddEntryErr is returned by [JournalStore.AddEntry] when non-nil.
	AddEntryErr error

	// ListEntriesErr is returned by [JournalStore.ListEntries] when non-nil.
	ListEntriesErr error

	// nextID assigns IDs to added entries.
	nextID int64
}

// Calls returns a copy of all recorded method invocations.
func (m *JournalStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *JournalStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls and stored entries without altering
// error configuration.
func (m *JournalStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.Entries = nil
	m.nextID = 0
}

// AddEntry implements [memory.JournalStore].
func (m *JournalStore) AddEntry(_ context.Context, entry memory.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "AddEntry", Args: []any{entry}})
	if m.AddEntryErr != nil {
		return m.AddEntryErr
	}
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.Entries = append(m.Entries, entry)
	return nil
}

// ListEntries implements [memory.JournalStore]. It filters the accumulated
// entries against the resolved options and returns them newest first.
func (m *JournalStore) ListEntries(_ context.Context, opts ...memory.EntryOpt) ([]memory.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	params := memory.ApplyEntryOpts(opts)
	m.calls = append(m.calls, Call{Method: "ListEntries", Args: []any{params}})
	if m.ListEntriesErr != nil {
		return nil, m.ListEntriesErr
	}

	out := []memory.JournalEntry{}
	for i := len(m.Entries) - 1; i >= 0; i-- {
		e := m.Entries[i]
		if params.Kind != "" && e.Kind != params.Kind {
			continue
		}
		if params.SessionID != "" && e.SessionID != params.SessionID {
			continue
		}
		if !params.Since.IsZero() && e.CreatedAt.Before(params.Since) {
			continue
		}
		out = append(out, e)
		if params.Limit > 0 && len(out) == params.Limit {
			break
		}
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ memory.TurnStore    = (*TurnStore)(nil)
	_ memory.JournalStore = (*JournalStore)(nil)
)
