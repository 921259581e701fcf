package wake_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wellbot-ai/wellbot/pkg/audio"
	audiomock "github.com/wellbot-ai/wellbot/pkg/audio/mock"
	"github.com/wellbot-ai/wellbot/pkg/wake"
	wakemock "github.com/wellbot-ai/wellbot/pkg/wake/mock"
)

func frame(data ...byte) audio.Frame {
	return audio.Frame{Data: data, SampleRate: 16000, Channels: 1}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestListenerDetection(t *testing.T) {
	t.Parallel()

	capture := &audiomock.Capture{FramesCh: make(chan audio.Frame, 16)}
	spotter := &wakemock.Spotter{Detections: []bool{false, true, false, true}}
	l := wake.New(capture, spotter)

	var detections atomic.Int32
	h, err := l.Arm(context.Background(), func() { detections.Add(1) })
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	for range 4 {
		capture.FramesCh <- frame(1, 2)
	}

	// Two scripted detections; the listener keeps running between and after.
	waitFor(t, func() bool { return detections.Load() == 2 })

	if err := h.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if capture.IsOpen() {
		t.Error("capture still open after Disarm")
	}
}

func TestListenerSkipsEmptyFrames(t *testing.T) {
	t.Parallel()

	capture := &audiomock.Capture{FramesCh: make(chan audio.Frame, 16)}
	spotter := &wakemock.Spotter{DefaultResult: true}
	l := wake.New(capture, spotter)

	var detections atomic.Int32
	h, err := l.Arm(context.Background(), func() { detections.Add(1) })
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	// Muted frames carry no data and must not reach the spotter.
	capture.FramesCh <- frame()
	capture.FramesCh <- frame()
	capture.FramesCh <- frame(1, 2)

	waitFor(t, func() bool { return detections.Load() == 1 })
	if err := h.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if spotter.CallCountClassify != 1 {
		t.Errorf("Classify called %d times, want 1 (empty frames skipped)", spotter.CallCountClassify)
	}
}

func TestArmDeviceUnavailable(t *testing.T) {
	t.Parallel()

	capture := &audiomock.Capture{OpenErr: audio.ErrDeviceUnavailable}
	l := wake.New(capture, &wakemock.Spotter{})

	_, err := l.Arm(context.Background(), func() {})
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("want ErrDeviceUnavailable, got %v", err)
	}
}

func TestDoubleArmFails(t *testing.T) {
	t.Parallel()

	capture := &audiomock.Capture{FramesCh: make(chan audio.Frame, 1)}
	l := wake.New(capture, &wakemock.Spotter{})

	h, err := l.Arm(context.Background(), func() {})
	if err != nil {
		t.Fatalf("first Arm: %v", err)
	}
	defer h.Disarm()

	if _, err := l.Arm(context.Background(), func() {}); err == nil {
		t.Fatal("second Arm should fail while armed")
	}
}

func TestDisarmIdempotent(t *testing.T) {
	t.Parallel()

	capture := &audiomock.Capture{FramesCh: make(chan audio.Frame, 1)}
	l := wake.New(capture, &wakemock.Spotter{})

	h, err := l.Arm(context.Background(), func() {})
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}

	if err := h.Disarm(); err != nil {
		t.Fatalf("first Disarm: %v", err)
	}
	if err := h.Disarm(); err != nil {
		t.Fatalf("second Disarm should be a no-op, got %v", err)
	}
	if capture.CallCountClose != 1 {
		t.Errorf("capture Close called %d times, want 1", capture.CallCountClose)
	}
}

func TestRearmAfterDisarm(t *testing.T) {
	t.Parallel()

	capture := &audiomock.Capture{}
	spotter := &wakemock.Spotter{}
	l := wake.New(capture, spotter)

	h, err := l.Arm(context.Background(), func() {})
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := h.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}

	h2, err := l.Arm(context.Background(), func() {})
	if err != nil {
		t.Fatalf("re-Arm: %v", err)
	}
	defer h2.Disarm()

	if spotter.CallCountReset != 2 {
		t.Errorf("spotter Reset called %d times, want 2 (once per Arm)", spotter.CallCountReset)
	}
}
