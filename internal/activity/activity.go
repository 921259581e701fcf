// Package activity implements the conversational activities the orchestrator
// routes to: smalltalk, journal, meditation, gratitude, and quote.
//
// An [Activity] receives a [Handle] bundling the session arbiter, the speech
// providers, and the optional memory stores. Activities never touch audio
// devices directly; every capture and playback goes through the arbiter, and
// every terminal outcome arrives as an arbiter.Signal.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/pkg/audio"
	"github.com/wellbot-ai/wellbot/pkg/memory"
	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
	"github.com/wellbot-ai/wellbot/pkg/provider/tts"
)

// Session is the arbiter surface activities drive. *arbiter.Arbiter satisfies
// it; tests substitute a scripted fake.
type Session interface {
	CaptureUtterance(ctx context.Context, cfg arbiter.CaptureConfig) (arbiter.Utterance, arbiter.Signal, error)
	PlayAudio(ctx context.Context, src audio.Source, interruptible bool) (arbiter.Signal, error)
}

// Result reports how an activity ended.
type Result struct {
	// Signal is the terminal signal that ended the activity, or the zero
	// (SignalNone) value for a natural finish.
	Signal arbiter.Signal

	// Shutdown requests that the whole session end instead of returning to
	// the idle wake loop.
	Shutdown bool
}

// Activity is one conversational mode.
type Activity interface {
	// Name identifies the activity in logs, metrics, and turn records.
	Name() string

	// Run drives the activity to completion. A non-nil error reports an
	// infrastructure fault (device, store); expected terminations travel in
	// the Result's Signal.
	Run(ctx context.Context, h *Handle) (Result, error)
}

// Handle bundles the collaborators an activity may use. Turns and Journal are
// optional; activities degrade to non-persistent behaviour when they are nil.
type Handle struct {
	Session Session
	TTS     tts.Provider
	Voice   tts.VoiceProfile
	LLM     llm.Provider

	Turns   memory.TurnStore
	Journal memory.JournalStore

	// Capture is the base capture configuration for this session (timeouts,
	// nudge source, termination phrases).
	Capture arbiter.CaptureConfig

	// SessionID keys turn and journal records.
	SessionID string

	// Activity is the name of the running activity, set by the orchestrator
	// before Run. It tags turn records.
	Activity string
}

// Speak synthesises text and plays it through the arbiter. The assistant turn
// is recorded when a turn store is present.
func (h *Handle) Speak(ctx context.Context, text string) (arbiter.Signal, error) {
	if text == "" {
		return arbiter.None(), nil
	}

	chunks, err := tts.Speak(ctx, h.TTS, text, h.Voice)
	if err != nil {
		return arbiter.Signal{}, fmt.Errorf("activity: synthesize: %w", err)
	}

	sig, err := h.Session.PlayAudio(ctx, audio.ChunkSource(chunks), false)
	if err != nil {
		return sig, err
	}

	h.recordTurn(ctx, memory.SpeakerAssistant, text)
	return sig, nil
}

// Listen captures one utterance with the session's base capture config. The
// user turn is recorded when text was heard.
func (h *Handle) Listen(ctx context.Context) (arbiter.Utterance, arbiter.Signal, error) {
	utt, sig, err := h.Session.CaptureUtterance(ctx, h.Capture)
	if err != nil {
		return utt, sig, err
	}
	if utt.Text != "" {
		h.recordTurn(ctx, memory.SpeakerUser, utt.Text)
	}
	return utt, sig, nil
}

// recordTurn appends to the turn store best-effort. A failing store never
// interrupts the conversation.
func (h *Handle) recordTurn(ctx context.Context, speaker, text string) {
	if h.Turns == nil {
		return
	}
	turn := memory.Turn{
		Speaker:   speaker,
		Text:      text,
		Activity:  h.Activity,
		Timestamp: time.Now(),
	}
	if err := h.Turns.AppendTurn(ctx, h.SessionID, turn); err != nil {
		slog.Warn("turn record failed", "activity", h.Activity, "speaker", speaker, "err", err)
	}
}
