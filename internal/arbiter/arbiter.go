// Package arbiter implements the session arbiter: the only component allowed
// to open and close the capture and playback channels.
//
// The arbiter exposes two blocking operations to activities —
// [Arbiter.CaptureUtterance] and [Arbiter.PlayAudio] — and guarantees that
// the microphone and speaker are never active at the same time. Terminal
// outcomes (phrase match, silence timeout, external cancel) are returned as
// [Signal] values, never as errors.
//
// Each capture runs a single event loop that merges transcript events and
// watchdog ticks into one stream. A transcript that arrives before a tick is
// always processed before the tick's timeout evaluation, so a late utterance
// can never cause a spurious timeout.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wellbot-ai/wellbot/internal/observe"
	"github.com/wellbot-ai/wellbot/internal/phrase"
	"github.com/wellbot-ai/wellbot/pkg/audio"
	"github.com/wellbot-ai/wellbot/pkg/provider/stt"
)

// defaultWatchdogInterval is the watchdog poll period. The watchdog runs on
// wall clock, not on frame arrival: silence produces no frames.
const defaultWatchdogInterval = time.Second

// phraseBoost is the keyword boost applied to termination phrases in the
// transcription stream config, so the recognizer favours them.
const phraseBoost = 5

// DeviceState is a snapshot of the audio device ownership flags.
// MicActive and SpeakerActive are never both true.
type DeviceState struct {
	// MicActive: a capture owns the microphone.
	MicActive bool

	// MicMuted: a shadow capture is listening for termination phrases
	// during interruptible playback. Its text never surfaces as an
	// utterance.
	MicMuted bool

	// SpeakerActive: a playback owns the speaker.
	SpeakerActive bool
}

// Option is a functional option for configuring an [Arbiter].
type Option func(*Arbiter)

// WithMatcher sets the termination-phrase matcher. Default: phrase.New().
func WithMatcher(m *phrase.Matcher) Option {
	return func(a *Arbiter) { a.matcher = m }
}

// WithMetrics enables metric recording for captures, playbacks, and nudges.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// WithWatchdogInterval sets the watchdog poll period. Default: 1s. Tests use
// shorter intervals.
func WithWatchdogInterval(d time.Duration) Option {
	return func(a *Arbiter) { a.interval = d }
}

// WithPlaybackPhrases sets the phrase set used to interrupt interruptible
// playback. Captures carry their own phrase set in [CaptureConfig].
func WithPlaybackPhrases(phrases []string) Option {
	return func(a *Arbiter) { a.playbackPhrases = phrases }
}

// Arbiter owns the audio devices and mediates all capture and playback.
// Its two public operations block the calling activity and are serialized
// against each other; the device-state flags live under their own mutex so
// the orchestrator can poll them concurrently.
type Arbiter struct {
	capture   audio.CaptureChannel
	playback  audio.PlaybackChannel
	stt       stt.Provider
	sttConfig stt.StreamConfig

	matcher         *phrase.Matcher
	metrics         *observe.Metrics
	interval        time.Duration
	playbackPhrases []string

	// opMu serializes CaptureUtterance and PlayAudio.
	opMu sync.Mutex

	stateMu sync.Mutex
	state   DeviceState
}

// New creates an Arbiter over the given devices and streaming transcriber.
// streamCfg is the base transcription config; termination phrases are added
// to its keyword boosts per call.
func New(capture audio.CaptureChannel, playback audio.PlaybackChannel, transcriber stt.Provider, streamCfg stt.StreamConfig, opts ...Option) *Arbiter {
	a := &Arbiter{
		capture:   capture,
		playback:  playback,
		stt:       transcriber,
		sttConfig: streamCfg,
		matcher:   phrase.New(),
		interval:  defaultWatchdogInterval,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// State returns a snapshot of the device flags.
func (a *Arbiter) State() DeviceState {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

// DeviceReleased reports whether both devices are fully released, including
// the shadow listen capture. The orchestrator waits for this (plus the guard
// delay) before re-arming the wake listener.
func (a *Arbiter) DeviceReleased() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return !a.state.MicActive && !a.state.MicMuted && !a.state.SpeakerActive
}

// CaptureUtterance opens the microphone, streams frames to the transcriber,
// and blocks until a terminal event:
//
//   - a termination phrase is heard (interim or final text) →
//     [SignalPhraseMatched], capture stops immediately;
//   - a final transcript arrives with no phrase match → the utterance is
//     returned with [SignalNone];
//   - the silence window and post-nudge grace window both elapse →
//     [SignalSilenceTimeout] with whatever partial text accumulated;
//   - ctx is cancelled or a collaborator fails mid-call →
//     [SignalExternalCancel] with accumulated text.
//
// A non-nil error is returned only when the capture could not start at all;
// [audio.ErrDeviceUnavailable] is wrapped and the caller retries with
// backoff.
func (a *Arbiter) CaptureUtterance(ctx context.Context, cfg CaptureConfig) (Utterance, Signal, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "arbiter.capture_utterance")
	defer span.End()

	if ctx.Err() != nil {
		return Utterance{}, ExternalCancel(), nil
	}

	if a.metrics != nil {
		a.metrics.ActiveCaptures.Add(ctx, 1)
		defer a.metrics.ActiveCaptures.Add(ctx, -1)
	}

	start := time.Now()
	utt, sig, err := a.runCapture(ctx, cfg)
	if err == nil {
		span.SetAttributes(attribute.String("signal", sig.Kind.String()))
		if a.metrics != nil {
			a.metrics.RecordCapture(ctx, time.Since(start), sig.Kind.String())
		}
	}
	return utt, sig, err
}

// watchdogState is the per-capture silence clock. One instance exists per
// CaptureUtterance call; it lives on the event loop and needs no locking.
type watchdogState struct {
	lastActivityAt time.Time
	nudged         bool
	silence        time.Duration
	nudge          time.Duration
}

func (a *Arbiter) runCapture(ctx context.Context, cfg CaptureConfig) (Utterance, Signal, error) {
	frames, err := a.capture.Open(ctx)
	if err != nil {
		return Utterance{}, Signal{}, fmt.Errorf("arbiter: open capture: %w", err)
	}
	a.setMic(true)
	defer func() {
		_ = a.capture.Close()
		a.setMic(false)
	}()

	streamCfg := a.sttConfig
	streamCfg.Keywords = appendPhraseBoosts(streamCfg.Keywords, cfg.TerminationPhrases)
	session, err := a.stt.StartStream(ctx, streamCfg)
	if err != nil {
		return Utterance{}, Signal{}, fmt.Errorf("arbiter: start transcription: %w", err)
	}
	defer session.Close()

	sendErr := make(chan error, 1)
	pumpDone := a.startPump(frames, session, sendErr)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	w := watchdogState{
		lastActivityAt: time.Now(),
		silence:        cfg.SilenceTimeout,
		nudge:          cfg.NudgeTimeout,
	}

	// last is the most recent transcript text seen, interim or final. It is
	// what a silence timeout or cancellation hands back to the activity.
	var last Utterance

	// handle processes one transcript event. The watchdog reset happens
	// before the phrase check and before any timeout evaluation for the
	// same window.
	handle := func(tr stt.Transcript) (Utterance, Signal, bool) {
		now := time.Now()
		w.lastActivityAt = now
		w.nudged = false
		if tr.Text != "" {
			last = Utterance{Text: tr.Text, IsFinal: tr.IsFinal, ReceivedAt: now}
		}
		if p, ok := a.matcher.Match(tr.Text, cfg.TerminationPhrases); ok {
			return Utterance{Text: tr.Text, IsFinal: tr.IsFinal, ReceivedAt: now}, PhraseMatched(p), true
		}
		if tr.IsFinal {
			return Utterance{Text: tr.Text, IsFinal: true, ReceivedAt: now}, None(), true
		}
		return Utterance{}, Signal{}, false
	}

	// drainPending consumes every transcript event already queued, so a
	// pending utterance resets the clock (or terminates the capture)
	// before a tick's timeout evaluation runs.
	drainPending := func() (Utterance, Signal, bool) {
		for {
			select {
			case tr, ok := <-session.Partials():
				if !ok {
					return last, ExternalCancel(), true
				}
				if u, s, done := handle(tr); done {
					return u, s, true
				}
			case tr, ok := <-session.Finals():
				if !ok {
					return last, ExternalCancel(), true
				}
				if u, s, done := handle(tr); done {
					return u, s, true
				}
			default:
				return Utterance{}, Signal{}, false
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return last, ExternalCancel(), nil

		case err := <-sendErr:
			observe.Logger(ctx).Warn("transcription send failed mid-capture", "error", err)
			return last, ExternalCancel(), nil

		case tr, ok := <-session.Partials():
			if !ok {
				return last, ExternalCancel(), nil
			}
			if u, s, done := handle(tr); done {
				return u, s, nil
			}

		case tr, ok := <-session.Finals():
			if !ok {
				return last, ExternalCancel(), nil
			}
			if u, s, done := handle(tr); done {
				return u, s, nil
			}

		case <-ticker.C:
			if u, s, done := drainPending(); done {
				return u, s, nil
			}

			idle := time.Since(w.lastActivityAt)
			if w.nudged && idle >= w.silence+w.nudge {
				return last, SilenceTimeout(), nil
			}
			if !w.nudged && idle >= w.silence {
				w.nudged = true
				if cfg.NudgeSource == nil {
					// No nudge prompt configured. The grace window still
					// applies, but when it has already elapsed (always the
					// case for a zero NudgeTimeout) the capture ends on
					// this tick rather than waiting for the next one.
					if idle >= w.silence+w.nudge {
						return last, SilenceTimeout(), nil
					}
					continue
				}
				nudgeStart := time.Now()
				newDone, ok := a.playNudge(ctx, cfg, session, pumpDone, sendErr)
				if !ok {
					return last, ExternalCancel(), nil
				}
				pumpDone = newDone
				// The silence clock pauses while the speaker is busy:
				// shift it by the nudge's elapsed time instead of
				// resetting it. Only real user speech resets the clock.
				w.lastActivityAt = w.lastActivityAt.Add(time.Since(nudgeStart))
				if a.metrics != nil {
					a.metrics.RecordNudge(ctx)
				}
			}
		}
	}
}

// playNudge pauses capture for the nudge prompt: the microphone is closed
// (not merely muted — the speaker needs the device), the prompt plays, and
// the microphone reopens on the same transcription session. The watchdog is
// not reset by the reopen.
//
// Returns the pump handle for the reopened frame stream; ok is false when
// the capture could not be resumed.
func (a *Arbiter) playNudge(ctx context.Context, cfg CaptureConfig, session stt.SessionHandle, pumpDone <-chan struct{}, sendErr chan error) (<-chan struct{}, bool) {
	_ = a.capture.Close()
	<-pumpDone
	a.setMic(false)

	if cfg.NudgePreDelay > 0 {
		sleepCtx(ctx, cfg.NudgePreDelay)
	}

	a.setSpeaker(true)
	err := a.playback.Play(ctx, cfg.NudgeSource)
	a.setSpeaker(false)
	if err != nil && ctx.Err() == nil {
		slog.Warn("nudge playback failed", "error", err)
	}
	if ctx.Err() != nil {
		return nil, false
	}

	if cfg.NudgePostDelay > 0 {
		sleepCtx(ctx, cfg.NudgePostDelay)
	}

	frames, err := a.capture.Open(ctx)
	if err != nil {
		slog.Warn("reopen capture after nudge failed", "error", err)
		return nil, false
	}
	a.setMic(true)

	slog.Debug("nudge played, capture resumed")
	return a.startPump(frames, session, sendErr), true
}

// startPump feeds captured frames to the transcription session until the
// frame channel closes. Muted frames still flow but are discarded here.
func (a *Arbiter) startPump(frames <-chan audio.Frame, session stt.SessionHandle, sendErr chan<- error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range frames {
			if len(f.Data) == 0 || a.capture.Muted() {
				continue
			}
			if err := session.SendAudio(f.Data); err != nil {
				select {
				case sendErr <- err:
				default:
				}
				return
			}
		}
	}()
	return done
}

func (a *Arbiter) setMic(active bool) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if active && a.state.SpeakerActive {
		slog.Error("device exclusion violated: mic opened while speaker active")
	}
	a.state.MicActive = active
}

func (a *Arbiter) setMicMuted(muted bool) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.state.MicMuted = muted
}

func (a *Arbiter) setSpeaker(active bool) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if active && a.state.MicActive {
		slog.Error("device exclusion violated: speaker opened while mic active")
	}
	a.state.SpeakerActive = active
}

// appendPhraseBoosts adds a keyword boost per termination phrase so the
// recognizer does not miss the words that end a capture.
func appendPhraseBoosts(base []stt.KeywordBoost, phrases []string) []stt.KeywordBoost {
	if len(phrases) == 0 {
		return base
	}
	out := make([]stt.KeywordBoost, 0, len(base)+len(phrases))
	out = append(out, base...)
	for _, p := range phrases {
		out = append(out, stt.KeywordBoost{Keyword: p, Boost: phraseBoost})
	}
	return out
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
