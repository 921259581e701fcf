package arbiter_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/pkg/audio"
	audiomock "github.com/wellbot-ai/wellbot/pkg/audio/mock"
	"github.com/wellbot-ai/wellbot/pkg/provider/stt"
	sttmock "github.com/wellbot-ai/wellbot/pkg/provider/stt/mock"
)

// fixture bundles the mocks behind an arbiter configured for fast tests.
type fixture struct {
	capture  *audiomock.Capture
	playback *audiomock.Playback
	session  *sttmock.Session
	provider *sttmock.Provider
	arb      *arbiter.Arbiter
}

func newFixture(opts ...arbiter.Option) *fixture {
	f := &fixture{
		capture:  &audiomock.Capture{},
		playback: &audiomock.Playback{},
		session: &sttmock.Session{
			PartialsCh: make(chan stt.Transcript, 16),
			FinalsCh:   make(chan stt.Transcript, 16),
		},
	}
	f.provider = &sttmock.Provider{Session: f.session}
	opts = append([]arbiter.Option{arbiter.WithWatchdogInterval(10 * time.Millisecond)}, opts...)
	f.arb = arbiter.New(f.capture, f.playback, f.provider, stt.StreamConfig{SampleRate: 16000, Channels: 1}, opts...)
	return f
}

// closedSource returns a Source that completes immediately.
func closedSource() audio.Source {
	ch := make(chan []byte)
	close(ch)
	return audio.ChunkSource(ch)
}

func TestCaptureFinalUtterance(t *testing.T) {
	t.Parallel()
	f := newFixture()

	go func() {
		f.session.PartialsCh <- stt.Transcript{Text: "I want to"}
		f.session.FinalsCh <- stt.Transcript{Text: "I want to write in my journal", IsFinal: true}
	}()

	utt, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: time.Second,
		NudgeTimeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalNone {
		t.Fatalf("expected SignalNone, got %v", sig)
	}
	if utt.Text != "I want to write in my journal" || !utt.IsFinal {
		t.Errorf("unexpected utterance: %+v", utt)
	}
	if !f.arb.DeviceReleased() {
		t.Error("expected device released after capture")
	}
	if f.capture.IsOpen() {
		t.Error("expected capture channel closed")
	}
}

func TestCapturePhraseMatchedOnInterim(t *testing.T) {
	t.Parallel()
	f := newFixture()

	go func() {
		f.session.PartialsCh <- stt.Transcript{Text: "stop journal"}
	}()

	utt, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout:     time.Second,
		NudgeTimeout:       time.Second,
		TerminationPhrases: []string{"stop journal"},
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalPhraseMatched {
		t.Fatalf("expected SignalPhraseMatched, got %v", sig)
	}
	if sig.Phrase != "stop journal" {
		t.Errorf("expected matched phrase %q, got %q", "stop journal", sig.Phrase)
	}
	if utt.IsFinal {
		t.Error("interim match should not be marked final")
	}
}

func TestCaptureSilenceTimeoutPlaysOneNudge(t *testing.T) {
	t.Parallel()
	f := newFixture()

	start := time.Now()
	utt, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: 50 * time.Millisecond,
		NudgeTimeout:   50 * time.Millisecond,
		NudgeSource:    closedSource(),
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalSilenceTimeout {
		t.Fatalf("expected SignalSilenceTimeout, got %v", sig)
	}
	if utt.Text != "" {
		t.Errorf("expected empty text on silent timeout, got %q", utt.Text)
	}
	if got := f.playback.CallCountPlay; got != 1 {
		t.Errorf("expected exactly one nudge, got %d plays", got)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("returned too early: %v", elapsed)
	}
	if !f.arb.DeviceReleased() {
		t.Error("expected device released after timeout")
	}
}

func TestCaptureWithoutNudgeSourceTimesOutOnSilenceTick(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithWatchdogInterval(100 * time.Millisecond))

	start := time.Now()
	_, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: 200 * time.Millisecond,
		NudgeTimeout:   0,
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalSilenceTimeout {
		t.Fatalf("expected SignalSilenceTimeout, got %v", sig)
	}
	// With no nudge prompt and a zero grace window the capture must end on
	// the tick that crosses the silence window, not one tick later.
	if elapsed > 280*time.Millisecond {
		t.Errorf("timeout deferred past the silence tick: %v", elapsed)
	}
	if got := f.playback.CallCountPlay; got != 0 {
		t.Errorf("expected no nudge without a source, got %d plays", got)
	}
}

func TestCaptureNudgeReopenDoesNotResetWatchdog(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithWatchdogInterval(5 * time.Millisecond))

	start := time.Now()
	_, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: 50 * time.Millisecond,
		NudgeTimeout:   50 * time.Millisecond,
		NudgeSource:    closedSource(),
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalSilenceTimeout {
		t.Fatalf("expected SignalSilenceTimeout, got %v", sig)
	}
	// If the reopen after the nudge reset the clock, the call would take
	// silence + silence + nudge (~150ms) instead of silence + nudge (~100ms).
	if elapsed > 140*time.Millisecond {
		t.Errorf("watchdog appears to have been reset by the nudge reopen: %v", elapsed)
	}
}

func TestCaptureSpeechSuppressesNudge(t *testing.T) {
	t.Parallel()
	f := newFixture()

	go func() {
		for i := 0; i < 4; i++ {
			time.Sleep(30 * time.Millisecond)
			f.session.PartialsCh <- stt.Transcript{Text: "still talking"}
		}
		f.session.FinalsCh <- stt.Transcript{Text: "still talking here", IsFinal: true}
	}()

	_, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: 80 * time.Millisecond,
		NudgeTimeout:   80 * time.Millisecond,
		NudgeSource:    closedSource(),
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalNone {
		t.Fatalf("expected SignalNone, got %v", sig)
	}
	if got := f.playback.CallCountPlay; got != 0 {
		t.Errorf("expected no nudge while speech keeps arriving, got %d plays", got)
	}
}

func TestCapturePhraseBeatsTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithWatchdogInterval(25 * time.Millisecond))

	go func() {
		time.Sleep(80 * time.Millisecond)
		f.session.FinalsCh <- stt.Transcript{Text: "goodbye", IsFinal: true}
	}()

	_, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout:     100 * time.Millisecond,
		NudgeTimeout:       0,
		TerminationPhrases: []string{"goodbye"},
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalPhraseMatched {
		t.Fatalf("expected phrase match to beat the timeout, got %v", sig)
	}
}

func TestCaptureExternalCancel(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		f.session.PartialsCh <- stt.Transcript{Text: "I was saying"}
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	utt, sig, err := f.arb.CaptureUtterance(ctx, arbiter.CaptureConfig{
		SilenceTimeout: time.Second,
		NudgeTimeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalExternalCancel {
		t.Fatalf("expected SignalExternalCancel, got %v", sig)
	}
	if utt.Text != "I was saying" {
		t.Errorf("expected accumulated text to be returned, got %q", utt.Text)
	}
}

func TestCaptureCollaboratorFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()

	go func() {
		f.session.PartialsCh <- stt.Transcript{Text: "half a thought"}
		time.Sleep(20 * time.Millisecond)
		close(f.session.PartialsCh)
	}()

	utt, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: time.Second,
		NudgeTimeout:   time.Second,
	})
	if err != nil {
		t.Fatalf("collaborator failure must not surface as an error: %v", err)
	}
	if sig.Kind != arbiter.SignalExternalCancel {
		t.Fatalf("expected SignalExternalCancel, got %v", sig)
	}
	if utt.Text != "half a thought" {
		t.Errorf("expected accumulated text, got %q", utt.Text)
	}
}

func TestCaptureDeviceUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.capture.OpenErr = audio.ErrDeviceUnavailable

	_, _, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: time.Second,
	})
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestCaptureBoostsTerminationPhrases(t *testing.T) {
	t.Parallel()
	f := newFixture()

	go func() {
		f.session.FinalsCh <- stt.Transcript{Text: "hello", IsFinal: true}
	}()

	_, _, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout:     time.Second,
		TerminationPhrases: []string{"goodbye", "stop journal"},
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}

	if len(f.provider.StartStreamCalls) != 1 {
		t.Fatalf("expected 1 StartStream call, got %d", len(f.provider.StartStreamCalls))
	}
	keywords := f.provider.StartStreamCalls[0].Cfg.Keywords
	if len(keywords) != 2 {
		t.Fatalf("expected 2 keyword boosts, got %d", len(keywords))
	}
	if keywords[0].Keyword != "goodbye" || keywords[0].Boost <= 0 {
		t.Errorf("unexpected keyword boost: %+v", keywords[0])
	}
}

func TestMutualExclusion(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithWatchdogInterval(5 * time.Millisecond))

	var violated atomic.Bool
	pollDone := make(chan struct{})
	stopPoll := make(chan struct{})
	go func() {
		defer close(pollDone)
		for {
			select {
			case <-stopPoll:
				return
			default:
			}
			st := f.arb.State()
			if st.MicActive && st.SpeakerActive {
				violated.Store(true)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	// A capture whose nudge forces a mic-close / speaker-open / mic-reopen
	// sequence is the hot path for an exclusion bug.
	_, sig, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{
		SilenceTimeout: 30 * time.Millisecond,
		NudgeTimeout:   30 * time.Millisecond,
		NudgeSource:    closedSource(),
	})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalSilenceTimeout {
		t.Fatalf("expected SignalSilenceTimeout, got %v", sig)
	}

	close(stopPoll)
	<-pollDone
	if violated.Load() {
		t.Fatal("mic and speaker were active at the same time")
	}
}

func TestCaptureAlreadyCancelledContext(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, sig, err := f.arb.CaptureUtterance(ctx, arbiter.CaptureConfig{SilenceTimeout: time.Second})
	if err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if sig.Kind != arbiter.SignalExternalCancel {
		t.Fatalf("expected SignalExternalCancel, got %v", sig)
	}
	if f.capture.CallCountOpen != 0 {
		t.Error("capture must not open under a cancelled context")
	}
}

// Not parallel: swaps the global tracer provider.
func TestCaptureAndPlaybackEmitSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	f := newFixture()
	go func() {
		f.session.FinalsCh <- stt.Transcript{Text: "hello", IsFinal: true}
	}()
	if _, _, err := f.arb.CaptureUtterance(context.Background(), arbiter.CaptureConfig{SilenceTimeout: time.Second}); err != nil {
		t.Fatalf("CaptureUtterance: %v", err)
	}
	if _, err := f.arb.PlayAudio(context.Background(), closedSource(), false); err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}

	byName := map[string]bool{}
	for _, s := range exp.GetSpans() {
		byName[s.Name] = true
	}
	for _, want := range []string{"arbiter.capture_utterance", "arbiter.play_audio"} {
		if !byName[want] {
			t.Errorf("missing span %q; recorded: %v", want, byName)
		}
	}
}
