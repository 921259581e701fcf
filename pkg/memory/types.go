package memory

import "time"

// Speaker values used in [Turn.Speaker].
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Entry kinds used in [JournalEntry.Kind].
const (
	KindJournal   = "journal"
	KindGratitude = "gratitude"
)

// Turn is a single conversational exchange written to the turn log.
// It is the atomic unit of session history: one utterance by the user or
// one spoken reply by the assistant.
type Turn struct {
	// Speaker identifies who spoke: [SpeakerUser] or [SpeakerAssistant].
	Speaker string

	// Text is the transcript or reply text.
	Text string

	// Activity names the activity during which this turn occurred
	// (e.g., "smalltalk", "journal", "gratitude").
	Activity string

	// Timestamp is when this turn was recorded.
	Timestamp time.Time

	// Duration is the length of the spoken utterance, when known.
	Duration time.Duration
}

// JournalEntry is a durable user-authored record: a journal entry or a
// gratitude item, depending on Kind.
type JournalEntry struct {
	// ID is the storage-assigned identifier. Zero until persisted.
	ID int64

	// SessionID is the voice session during which the entry was captured.
	SessionID string

	// Kind classifies the entry: [KindJournal] or [KindGratitude].
	Kind string

	// Content is the entry text as the user spoke it.
	Content string

	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}
