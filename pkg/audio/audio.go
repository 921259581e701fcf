// Package audio defines the interfaces and types for microphone capture and
// speaker playback within Well-Bot.
//
// The two primary abstractions are:
//
//   - [CaptureChannel] — wraps the single microphone device and exposes a live
//     stream of raw PCM frames plus mute/unmute controls.
//   - [PlaybackChannel] — wraps the single speaker device and plays a finite
//     [Source] to completion or cancellation.
//
// Implementations of these interfaces are provided by device-specific adapter
// packages (e.g., audio/device for the local ffmpeg-backed devices). The
// interfaces are intentionally narrow: neither wrapper enforces exclusivity —
// the session arbiter is the only component allowed to open them, and it
// guarantees that capture and playback are never active at the same time.
//
// This package lives under pkg/ because external code (alternative device
// adapters) is expected to implement these interfaces.
package audio

import (
	"context"
	"errors"
	"os"
)

// ErrDeviceUnavailable is returned when the underlying audio device cannot be
// opened (already claimed by another process, unplugged, or still being
// released by a previous owner). Callers should retry with backoff rather
// than busy-loop.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// CaptureChannel wraps the microphone device.
//
// Only one capture may be open at a time on the physical device; this is
// enforced by the session arbiter, not by implementations. Implementations
// must be safe for concurrent use.
type CaptureChannel interface {
	// Open claims the device and returns a live stream of captured frames.
	// The channel is closed when the capture ends (Close is called or the
	// device fails). Returns [ErrDeviceUnavailable] if the device cannot be
	// claimed. Calling Open on an already-open channel returns an error.
	Open(ctx context.Context) (<-chan Frame, error)

	// Mute logically discards captured audio: frames still flow (so the
	// device stays open and warm) but consumers should treat the channel as
	// silent. Used so the mic survives short self-generated audio without a
	// full close/reopen cycle.
	Mute()

	// Unmute reverses Mute.
	Unmute()

	// Muted reports whether the channel is currently muted.
	Muted() bool

	// Close stops capture and releases the device. The frame channel returned
	// by Open is closed. Calling Close on an already-closed channel is a
	// no-op, not an error.
	Close() error
}

// PlaybackChannel wraps the speaker device.
//
// Implementations must be safe for concurrent use: Stop may be called from a
// different goroutine while Play is blocked.
type PlaybackChannel interface {
	// Play writes the source's audio to the speaker and blocks until the
	// source is exhausted, Stop is called, or ctx is cancelled. Returns nil
	// on natural completion and ctx.Err() on cancellation; a Stop call ends
	// playback with a nil error.
	Play(ctx context.Context, src Source) error

	// Stop halts any in-flight Play on a best-effort basis. Safe to call at
	// any time, including when nothing is playing or after Close.
	Stop()

	// Close releases the device. Idempotent.
	Close() error
}

// Source supplies a finite stream of raw PCM chunks for playback — either a
// synthesized speech stream or a pre-recorded prompt file.
type Source interface {
	// Open starts the source and returns its chunk stream. The channel is
	// closed when the source is exhausted. Open may be called at most once.
	Open(ctx context.Context) (<-chan []byte, error)
}

// ChunkSource adapts an existing chunk channel (e.g., the output of a TTS
// provider) into a [Source].
type ChunkSource <-chan []byte

// Open returns the wrapped channel unchanged.
func (s ChunkSource) Open(context.Context) (<-chan []byte, error) {
	return s, nil
}

// fileSource streams a raw PCM file from disk in fixed-size chunks.
type fileSource struct {
	path      string
	chunkSize int
}

// NewFileSource returns a [Source] that reads the raw PCM file at path in
// chunks of chunkSize bytes (default 4096 if chunkSize <= 0). The file is
// opened lazily in Open so that a missing prompt file surfaces as an Open
// error rather than a construction error.
func NewFileSource(path string, chunkSize int) Source {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &fileSource{path: path, chunkSize: chunkSize}
}

func (s *fileSource) Open(ctx context.Context) (<-chan []byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, 4)
	go func() {
		defer close(out)
		defer f.Close()
		for {
			buf := make([]byte, s.chunkSize)
			n, err := f.Read(buf)
			if n > 0 {
				select {
				case out <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				// io.EOF ends the source; a read error on a corrupt file
				// ends it early and playback treats that as completion.
				return
			}
		}
	}()
	return out, nil
}
