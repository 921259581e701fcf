package memory

import "time"

// entryQueryOptions accumulates options for [JournalStore.ListEntries].
// Unexported — callers configure it via [EntryOpt] functional options.
type entryQueryOptions struct {
	kind      string
	sessionID string
	since     time.Time
	limit     int
}

// EntryOpt is a functional option for [JournalStore.ListEntries].
type EntryOpt func(*entryQueryOptions)

// WithKind restricts the returned entries to a single kind
// ([KindJournal] or [KindGratitude]). The default returns all kinds.
func WithKind(kind string) EntryOpt {
	return func(o *entryQueryOptions) { o.kind = kind }
}

// WithSession restricts the returned entries to those captured during the
// given session. The default returns entries from all sessions.
func WithSession(sessionID string) EntryOpt {
	return func(o *entryQueryOptions) { o.sessionID = sessionID }
}

// WithSince restricts the returned entries to those created at or after t.
// A zero Time (the default) disables the bound.
func WithSince(t time.Time) EntryOpt {
	return func(o *entryQueryOptions) { o.since = t }
}

// WithLimit caps the number of entries returned.
// A value of 0 means the implementation may apply its own default.
func WithLimit(n int) EntryOpt {
	return func(o *entryQueryOptions) { o.limit = n }
}

// EntryQueryParams holds the resolved parameters from a slice of [EntryOpt].
type EntryQueryParams struct {
	Kind      string
	SessionID string
	Since     time.Time
	Limit     int
}

// ApplyEntryOpts applies a slice of [EntryOpt] functional options and returns
// the resolved query parameters as an [EntryQueryParams]. This helper allows
// external packages (such as storage backends) to read the option values
// without needing to access the unexported [entryQueryOptions] type directly.
func ApplyEntryOpts(opts []EntryOpt) EntryQueryParams {
	o := &entryQueryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return EntryQueryParams{
		Kind:      o.kind,
		SessionID: o.sessionID,
		Since:     o.since,
		Limit:     o.limit,
	}
}
