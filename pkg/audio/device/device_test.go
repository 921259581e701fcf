package device_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wellbot-ai/wellbot/pkg/audio/device"
)

func TestCaptureCloseBeforeOpenIsNoop(t *testing.T) {
	t.Parallel()
	c := device.NewCapture(device.Config{})

	// Close without a claimed device must not touch any process state.
	if err := c.Close(); err != nil {
		t.Fatalf("Close before Open: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCaptureMuteStateWithoutOpen(t *testing.T) {
	t.Parallel()
	c := device.NewCapture(device.Config{})

	if c.Muted() {
		t.Error("fresh capture reports muted")
	}
	c.Mute()
	if !c.Muted() {
		t.Error("Mute did not take effect")
	}
	c.Unmute()
	if c.Muted() {
		t.Error("Unmute did not take effect")
	}
}

func TestCaptureOpenFailsWithMissingBinary(t *testing.T) {
	t.Parallel()
	c := device.NewCapture(device.Config{
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
	})

	if _, err := c.Open(context.Background()); err == nil {
		t.Fatal("expected Open to fail without an ffmpeg binary")
	}
	// A failed Open leaves the channel closed; Close stays a no-op.
	if err := c.Close(); err != nil {
		t.Fatalf("Close after failed Open: %v", err)
	}
}

func TestPlaybackStopAndCloseAreIdempotent(t *testing.T) {
	t.Parallel()
	p := device.NewPlayback(device.Config{})

	// Nothing is playing: Stop and Close must be safe in any order and
	// any number of times.
	p.Stop()
	p.Stop()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	p.Stop()
}
