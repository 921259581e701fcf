// Package wake implements the background wake-word listener.
//
// A [Listener] owns a dedicated capture channel and continuously feeds its
// frames to a [Spotter] (the keyword-classification collaborator). When the
// spotter reports a detection, the registered callback fires once per keyword
// event and the listener keeps running — it does not auto-disarm. The
// orchestrator disarms explicitly before handing the microphone to the
// streaming transcriber.
package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wellbot-ai/wellbot/pkg/audio"
)

// Spotter classifies incoming audio frames for the trigger keyword.
// It is the external keyword-spotting collaborator; implementations wrap a
// real model (Porcupine-style) or a simple energy detector for development.
//
// Classify is called once per captured frame, in arrival order, from a single
// goroutine. Implementations may keep per-stream state (sliding windows).
type Spotter interface {
	// Classify reports whether frame completes a keyword event.
	Classify(frame audio.Frame) bool

	// Reset clears any per-stream state. Called when the listener re-arms.
	Reset()
}

// Listener arms and disarms wake-word detection on its capture channel.
// All methods are safe for concurrent use, but at most one armed handle may
// exist at a time.
type Listener struct {
	capture audio.CaptureChannel
	spotter Spotter

	mu    sync.Mutex
	armed *Handle
}

// New creates a Listener that reads from capture and classifies with spotter.
func New(capture audio.CaptureChannel, spotter Spotter) *Listener {
	return &Listener{capture: capture, spotter: spotter}
}

// Arm opens the capture channel and starts the background detection loop.
// onDetect is invoked once per keyword event, on the listener's internal
// goroutine — callbacks must not block.
//
// Returns [audio.ErrDeviceUnavailable] (wrapped) if the input device cannot
// be opened; the caller retries with backoff. Returns an error if the
// listener is already armed.
func (l *Listener) Arm(ctx context.Context, onDetect func()) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.armed != nil {
		return nil, errors.New("wake: listener already armed")
	}

	frames, err := l.capture.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("wake: open input: %w", err)
	}

	l.spotter.Reset()

	h := &Handle{listener: l, done: make(chan struct{})}
	l.armed = h

	go l.run(frames, onDetect, h)

	slog.Debug("wake listener armed")
	return h, nil
}

// run is the detection loop. It exits when the frame channel closes (the
// handle was disarmed or the device failed).
func (l *Listener) run(frames <-chan audio.Frame, onDetect func(), h *Handle) {
	defer close(h.done)

	for frame := range frames {
		if len(frame.Data) == 0 {
			continue
		}
		if l.spotter.Classify(frame) {
			slog.Info("wake word detected")
			onDetect()
		}
	}

	slog.Debug("wake listener loop ended")
}

// disarm closes the capture channel and waits for the loop to drain.
// Called via [Handle.Disarm].
func (l *Listener) disarm(h *Handle) error {
	l.mu.Lock()
	if l.armed != h {
		l.mu.Unlock()
		return nil
	}
	l.armed = nil
	l.mu.Unlock()

	if err := l.capture.Close(); err != nil {
		return fmt.Errorf("wake: close input: %w", err)
	}
	<-h.done

	slog.Debug("wake listener disarmed")
	return nil
}

// Handle represents one armed detection session. Disarm it to stop detection;
// a handle cannot be re-armed.
type Handle struct {
	listener *Listener
	done     chan struct{}

	once sync.Once
	err  error
}

// Disarm stops detection and releases the input device. Idempotent: calling
// Disarm on an already-disarmed handle is a no-op and returns the first
// result.
func (h *Handle) Disarm() error {
	h.once.Do(func() {
		h.err = h.listener.disarm(h)
	})
	return h.err
}
