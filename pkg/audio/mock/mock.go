// Package mock provides in-memory mock implementations of the
// [audio.CaptureChannel], [audio.PlaybackChannel], and [audio.Source]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and expose exported fields that the test
// can set to control return values.
//
// Typical usage:
//
//	frames := make(chan audio.Frame, 16)
//	cap := &mock.Capture{FramesCh: frames}
//	got, err := cap.Open(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/wellbot-ai/wellbot/pkg/audio"
)

// ─── Capture ─────────────────────────────────────────────────────────────────

// Capture is a mock [audio.CaptureChannel].
// Set the exported fields before use; inspect the CallCount* fields after.
type Capture struct {
	mu sync.Mutex

	// FramesCh is the channel returned by Open. The test owns this channel
	// and is responsible for sending frames and closing it. If nil, Open
	// creates and returns a fresh buffered channel (retrievable via Frames).
	FramesCh chan audio.Frame

	// OpenErr, if non-nil, is returned by every Open call.
	OpenErr error

	open  bool
	muted bool

	CallCountOpen   int
	CallCountMute   int
	CallCountUnmute int
	CallCountClose  int
}

// Compile-time interface check.
var _ audio.CaptureChannel = (*Capture)(nil)

// Open implements [audio.CaptureChannel].
func (c *Capture) Open(_ context.Context) (<-chan audio.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOpen++
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	if c.FramesCh == nil {
		c.FramesCh = make(chan audio.Frame, 16)
	}
	c.open = true
	return c.FramesCh, nil
}

// Mute implements [audio.CaptureChannel].
func (c *Capture) Mute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountMute++
	c.muted = true
}

// Unmute implements [audio.CaptureChannel].
func (c *Capture) Unmute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountUnmute++
	c.muted = false
}

// Muted implements [audio.CaptureChannel].
func (c *Capture) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Close implements [audio.CaptureChannel]. Closes FramesCh on the first call
// after a successful Open; subsequent calls are no-ops.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if c.open {
		c.open = false
		if c.FramesCh != nil {
			close(c.FramesCh)
			c.FramesCh = nil
		}
	}
	return nil
}

// IsOpen reports whether the capture is currently open. Test helper.
func (c *Capture) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// ─── Playback ────────────────────────────────────────────────────────────────

// Playback is a mock [audio.PlaybackChannel]. Play consumes the source's
// chunks and blocks until the source is drained, Stop is called, or the
// context is cancelled — mirroring a real device's pacing-free behaviour.
type Playback struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call before the source
	// is consumed.
	PlayErr error

	// Played records the concatenated chunks of every completed Play call.
	Played [][]byte

	stopCh chan struct{}

	CallCountPlay  int
	CallCountStop  int
	CallCountClose int
}

// Compile-time interface check.
var _ audio.PlaybackChannel = (*Playback)(nil)

// Play implements [audio.PlaybackChannel].
func (p *Playback) Play(ctx context.Context, src audio.Source) error {
	p.mu.Lock()
	p.CallCountPlay++
	if p.PlayErr != nil {
		p.mu.Unlock()
		return p.PlayErr
	}
	stop := make(chan struct{})
	p.stopCh = stop
	p.mu.Unlock()

	chunks, err := src.Open(ctx)
	if err != nil {
		return err
	}

	var got []byte
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				p.mu.Lock()
				p.Played = append(p.Played, got)
				p.stopCh = nil
				p.mu.Unlock()
				return nil
			}
			got = append(got, chunk...)
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop implements [audio.PlaybackChannel]. Unblocks an in-flight Play.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

// Close implements [audio.PlaybackChannel].
func (p *Playback) Close() error {
	p.mu.Lock()
	p.CallCountClose++
	p.mu.Unlock()
	p.Stop()
	return nil
}
