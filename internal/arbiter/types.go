package arbiter

import (
	"time"

	"github.com/wellbot-ai/wellbot/pkg/audio"
)

// SignalKind enumerates the terminal outcomes of a capture or playback call.
type SignalKind int

const (
	// SignalNone: the call completed normally (a final utterance was
	// captured, or playback ran to completion).
	SignalNone SignalKind = iota

	// SignalPhraseMatched: a termination phrase was heard. The matched
	// phrase is carried in [Signal.Phrase].
	SignalPhraseMatched

	// SignalSilenceTimeout: the inactivity watchdog expired after the
	// silence window plus the post-nudge grace window.
	SignalSilenceTimeout

	// SignalExternalCancel: the call was cancelled from outside (shutdown)
	// or a collaborator failed mid-call.
	SignalExternalCancel
)

// String returns the snake_case name of the signal kind, used in logs and
// metric attributes.
func (k SignalKind) String() string {
	switch k {
	case SignalNone:
		return "none"
	case SignalPhraseMatched:
		return "phrase_matched"
	case SignalSilenceTimeout:
		return "silence_timeout"
	case SignalExternalCancel:
		return "external_cancel"
	default:
		return "unknown"
	}
}

// Signal is the tagged terminal outcome of a capture or playback call.
// Expected terminations (phrase, timeout, cancel) travel as Signal values,
// never as errors.
type Signal struct {
	Kind SignalKind

	// Phrase is the termination phrase that matched, as declared in the
	// phrase set. Set only when Kind is [SignalPhraseMatched].
	Phrase string
}

// None returns the non-terminal completion signal.
func None() Signal { return Signal{Kind: SignalNone} }

// PhraseMatched returns a phrase-match signal carrying the matched phrase.
func PhraseMatched(phrase string) Signal {
	return Signal{Kind: SignalPhraseMatched, Phrase: phrase}
}

// SilenceTimeout returns the watchdog-expiry signal.
func SilenceTimeout() Signal { return Signal{Kind: SignalSilenceTimeout} }

// ExternalCancel returns the external-cancellation signal.
func ExternalCancel() Signal { return Signal{Kind: SignalExternalCancel} }

// Terminal reports whether the signal ends the surrounding activity turn
// (anything other than [SignalNone]).
func (s Signal) Terminal() bool { return s.Kind != SignalNone }

// String implements [fmt.Stringer].
func (s Signal) String() string {
	if s.Kind == SignalPhraseMatched && s.Phrase != "" {
		return s.Kind.String() + "(" + s.Phrase + ")"
	}
	return s.Kind.String()
}

// Utterance is one unit of captured speech handed back to the activity.
type Utterance struct {
	// Text is the transcript text. For a silence timeout this is whatever
	// partial text accumulated before the watchdog fired (possibly empty).
	Text string

	// IsFinal reports whether the transcriber marked the text final.
	// Phrase-matched returns may carry interim text.
	IsFinal bool

	// ReceivedAt is when the transcript event arrived.
	ReceivedAt time.Time
}

// CaptureConfig carries the per-call settings for [Arbiter.CaptureUtterance].
// Timeouts and phrase lists are injected per call rather than read from
// ambient state, so different activities (and different capture modes within
// one activity) can use different windows.
type CaptureConfig struct {
	// SilenceTimeout is how long the watchdog tolerates no transcript
	// activity before the nudge fires.
	SilenceTimeout time.Duration

	// NudgeTimeout is the additional grace window after the nudge. When it
	// elapses with no activity the capture returns [SignalSilenceTimeout].
	NudgeTimeout time.Duration

	// NudgeSource is the audio played as the nudge prompt. When nil no
	// nudge is played and the capture times out after
	// SilenceTimeout+NudgeTimeout of silence.
	NudgeSource audio.Source

	// NudgePreDelay is the settle pause between closing the microphone and
	// starting nudge playback.
	NudgePreDelay time.Duration

	// NudgePostDelay is the settle pause between nudge playback ending and
	// the microphone reopening, so the mic does not pick up the prompt's
	// tail.
	NudgePostDelay time.Duration

	// TerminationPhrases are matched against every transcript event,
	// interim or final. A match ends the capture immediately.
	TerminationPhrases []string
}
