package arbiter_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/pkg/audio"
	"github.com/wellbot-ai/wellbot/pkg/provider/stt"
)

func TestPlayAudioCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture()

	ch := make(chan []byte, 2)
	ch <- []byte("aa")
	ch <- []byte("bb")
	close(ch)

	sig, err := f.arb.PlayAudio(context.Background(), audio.ChunkSource(ch), false)
	if err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	if sig.Kind != arbiter.SignalNone {
		t.Fatalf("expected SignalNone, got %v", sig)
	}
	if len(f.playback.Played) != 1 || !bytes.Equal(f.playback.Played[0], []byte("aabb")) {
		t.Errorf("unexpected played audio: %v", f.playback.Played)
	}
	if !f.arb.DeviceReleased() {
		t.Error("expected speaker released after playback")
	}
}

func TestPlayAudioInterruptedByPhrase(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithPlaybackPhrases([]string{"goodbye", "stop"}))

	// An open chunk channel keeps playback running until it is stopped.
	ch := make(chan []byte)
	defer close(ch)

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.session.PartialsCh <- stt.Transcript{Text: "uh goodbye"}
	}()

	sig, err := f.arb.PlayAudio(context.Background(), audio.ChunkSource(ch), true)
	if err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	if sig.Kind != arbiter.SignalPhraseMatched {
		t.Fatalf("expected SignalPhraseMatched, got %v", sig)
	}
	if sig.Phrase != "goodbye" {
		t.Errorf("expected phrase %q, got %q", "goodbye", sig.Phrase)
	}
	if f.playback.CallCountStop == 0 {
		t.Error("expected the phrase match to stop playback")
	}
	if !f.arb.DeviceReleased() {
		t.Error("expected shadow capture released after playback")
	}
	if f.capture.IsOpen() {
		t.Error("expected shadow capture channel closed")
	}
}

func TestPlayAudioNotInterruptibleOpensNoListen(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithPlaybackPhrases([]string{"goodbye"}))

	ch := make(chan []byte)
	close(ch)

	sig, err := f.arb.PlayAudio(context.Background(), audio.ChunkSource(ch), false)
	if err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	if sig.Kind != arbiter.SignalNone {
		t.Fatalf("expected SignalNone, got %v", sig)
	}
	if f.capture.CallCountOpen != 0 {
		t.Error("non-interruptible playback must not open the capture channel")
	}
}

func TestPlayAudioListenFailureFallsBackUninterruptible(t *testing.T) {
	t.Parallel()
	f := newFixture(arbiter.WithPlaybackPhrases([]string{"goodbye"}))
	f.capture.OpenErr = errors.New("device busy")

	ch := make(chan []byte)
	close(ch)

	sig, err := f.arb.PlayAudio(context.Background(), audio.ChunkSource(ch), true)
	if err != nil {
		t.Fatalf("listen failure must not fail the playback: %v", err)
	}
	if sig.Kind != arbiter.SignalNone {
		t.Fatalf("expected SignalNone, got %v", sig)
	}
	if f.playback.CallCountPlay != 1 {
		t.Errorf("expected playback to proceed, got %d plays", f.playback.CallCountPlay)
	}
}

func TestPlayAudioExternalCancel(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan []byte)
	defer close(ch)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sig, err := f.arb.PlayAudio(ctx, audio.ChunkSource(ch), false)
	if err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	if sig.Kind != arbiter.SignalExternalCancel {
		t.Fatalf("expected SignalExternalCancel, got %v", sig)
	}
	if !f.arb.DeviceReleased() {
		t.Error("expected speaker released after cancellation")
	}
}

func TestPlayAudioAlreadyCancelledContext(t *testing.T) {
	t.Parallel()
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sig, err := f.arb.PlayAudio(ctx, closedSource(), false)
	if err != nil {
		t.Fatalf("PlayAudio: %v", err)
	}
	if sig.Kind != arbiter.SignalExternalCancel {
		t.Fatalf("expected SignalExternalCancel, got %v", sig)
	}
	if f.playback.CallCountPlay != 0 {
		t.Error("playback must not start under a cancelled context")
	}
}

func TestPlayAudioPlaybackFault(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.playback.PlayErr = errors.New("pipe broke")

	sig, err := f.arb.PlayAudio(context.Background(), closedSource(), false)
	if err != nil {
		t.Fatalf("playback fault must not surface as an error: %v", err)
	}
	if sig.Kind != arbiter.SignalExternalCancel {
		t.Fatalf("expected SignalExternalCancel, got %v", sig)
	}
	if f.arb.State().SpeakerActive {
		t.Error("speaker flag must be cleared after a fault")
	}
}

func TestSignalString(t *testing.T) {
	t.Parallel()
	cases := []struct {
		sig  arbiter.Signal
		want string
	}{
		{arbiter.None(), "none"},
		{arbiter.PhraseMatched("goodbye"), "phrase_matched(goodbye)"},
		{arbiter.SilenceTimeout(), "silence_timeout"},
		{arbiter.ExternalCancel(), "external_cancel"},
	}
	for _, c := range cases {
		if got := c.sig.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
	if arbiter.None().Terminal() {
		t.Error("None must not be terminal")
	}
	if !arbiter.SilenceTimeout().Terminal() {
		t.Error("SilenceTimeout must be terminal")
	}
}
