package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wellbot-ai/wellbot/internal/observe"
	"github.com/wellbot-ai/wellbot/pkg/audio"
	"github.com/wellbot-ai/wellbot/pkg/provider/stt"
)

// PlayAudio opens the speaker and plays src to completion. It blocks the
// calling activity; capture and playback from the same activity are strictly
// sequential, serialized on the arbiter's operation lock.
//
// When interruptible is true, a shadow capture listens for the arbiter's
// playback phrase set while the speaker runs. Its transcripts are matched but
// never surfaced as utterances; a match halts playback and the call returns
// [SignalPhraseMatched]. Long-form content (guided meditations) uses this so
// the user can cut it short.
//
// Returns [SignalNone] on natural completion, [SignalExternalCancel] on ctx
// cancellation or a playback fault. The speaker flag is always cleared before
// returning.
func (a *Arbiter) PlayAudio(ctx context.Context, src audio.Source, interruptible bool) (Signal, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "arbiter.play_audio",
		trace.WithAttributes(attribute.Bool("interruptible", interruptible)))
	defer span.End()

	if ctx.Err() != nil {
		return ExternalCancel(), nil
	}

	start := time.Now()
	sig, err := a.runPlayback(ctx, src, interruptible)
	if err == nil {
		span.SetAttributes(attribute.String("signal", sig.Kind.String()))
		if a.metrics != nil {
			a.metrics.RecordPlayback(ctx, time.Since(start), sig.Kind.String())
		}
	}
	return sig, err
}

func (a *Arbiter) runPlayback(ctx context.Context, src audio.Source, interruptible bool) (Signal, error) {
	matched := make(chan string, 1)

	var stopListen func()
	if interruptible && len(a.playbackPhrases) > 0 {
		stop, err := a.startPhraseListen(ctx, matched)
		if err != nil {
			// Playback proceeds uninterruptible rather than failing the call.
			slog.Warn("interruptible listen unavailable", "error", err)
		} else {
			stopListen = stop
		}
	}

	a.setSpeaker(true)
	err := a.playback.Play(ctx, src)
	a.setSpeaker(false)

	if stopListen != nil {
		stopListen()
	}

	select {
	case p := <-matched:
		observe.Logger(ctx).Info("playback interrupted by phrase", "phrase", p)
		return PhraseMatched(p), nil
	default:
	}

	if ctx.Err() != nil {
		return ExternalCancel(), nil
	}
	if err != nil {
		slog.Warn("playback failed", "error", err)
		return ExternalCancel(), nil
	}
	return None(), nil
}

// startPhraseListen opens the shadow capture and transcription session used
// to interrupt playback. On a phrase match it stops the playback channel and
// delivers the phrase on matched.
//
// The returned stop function tears the listen path down; it is idempotent at
// the channel level (Close on both is a no-op when already closed).
func (a *Arbiter) startPhraseListen(ctx context.Context, matched chan<- string) (stop func(), err error) {
	frames, err := a.capture.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("arbiter: open listen capture: %w", err)
	}

	streamCfg := a.sttConfig
	streamCfg.Keywords = appendPhraseBoosts(streamCfg.Keywords, a.playbackPhrases)
	session, err := a.stt.StartStream(ctx, streamCfg)
	if err != nil {
		_ = a.capture.Close()
		return nil, fmt.Errorf("arbiter: start listen transcription: %w", err)
	}

	a.setMicMuted(true)

	sendErr := make(chan error, 1)
	pumpDone := a.startPump(frames, session, sendErr)

	scan := func(tr stt.Transcript) bool {
		p, ok := a.matcher.Match(tr.Text, a.playbackPhrases)
		if !ok {
			return false
		}
		select {
		case matched <- p:
		default:
		}
		a.playback.Stop()
		return true
	}

	stopCh := make(chan struct{})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for {
			select {
			case tr, ok := <-session.Partials():
				if !ok {
					return
				}
				if scan(tr) {
					return
				}
			case tr, ok := <-session.Finals():
				if !ok {
					return
				}
				if scan(tr) {
					return
				}
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		close(stopCh)
		_ = session.Close()
		_ = a.capture.Close()
		<-pumpDone
		<-loopDone
		a.setMicMuted(false)
	}, nil
}
