// Package device implements [audio.CaptureChannel] and [audio.PlaybackChannel]
// on top of local audio devices using ffmpeg/ffplay subprocesses.
//
// Subprocess-based I/O keeps the binary free of CGO audio bindings while still
// working against PulseAudio, ALSA, and avfoundation backends. The capture
// side spawns one ffmpeg process per Open and reads s16le PCM from its stdout;
// the playback side pipes PCM into an ffplay process per Play call.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/wellbot-ai/wellbot/pkg/audio"
)

// Config describes the local audio devices and formats.
type Config struct {
	// FFmpegPath is the ffmpeg executable. Default "ffmpeg".
	FFmpegPath string

	// FFplayPath is the ffplay executable used for playback. Default "ffplay".
	FFplayPath string

	// InputFormat is the ffmpeg input backend ("pulse", "alsa", "avfoundation").
	// Default "pulse".
	InputFormat string

	// InputDevice is the capture device name. Default "default".
	InputDevice string

	// SampleRate is the capture sample rate in Hz. Default 16000.
	SampleRate int

	// Channels is the capture channel count. Default 1.
	Channels int

	// FrameSize is the PCM byte count per emitted [audio.Frame]. Default 3200
	// (100 ms of 16 kHz mono s16le).
	FrameSize int
}

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFplayPath == "" {
		c.FFplayPath = "ffplay"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 3200
	}
	return c
}

// Capture is an ffmpeg-backed [audio.CaptureChannel].
// All methods are safe for concurrent use.
type Capture struct {
	cfg Config

	mu      sync.Mutex
	open    bool
	muted   bool
	process *os.Process
	stdout  io.ReadCloser
	waitErr <-chan error
	frames  chan audio.Frame
}

// Compile-time interface check.
var _ audio.CaptureChannel = (*Capture)(nil)

// NewCapture creates a capture channel for the configured device. The device
// is not touched until Open is called.
func NewCapture(cfg Config) *Capture {
	return &Capture{cfg: cfg.withDefaults()}
}

// Open spawns the ffmpeg capture process and starts the frame reader.
func (c *Capture) Open(ctx context.Context) (<-chan audio.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return nil, errors.New("device: capture already open")
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.InputDevice,
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("device: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("device: start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg exits immediately when the device is claimed elsewhere. Give it
	// a short window to fail before declaring the capture live.
	select {
	case werr := <-waitErr:
		_ = stdout.Close()
		return nil, fmt.Errorf("%w: ffmpeg exited: %v: %s",
			audio.ErrDeviceUnavailable, werr, bytes.TrimSpace(stderr.Bytes()))
	case <-time.After(250 * time.Millisecond):
	}

	frames := make(chan audio.Frame, 16)
	c.open = true
	c.muted = false
	c.process = cmd.Process
	c.stdout = stdout
	c.waitErr = waitErr
	c.frames = frames

	go c.readLoop(stdout, frames)
	return frames, nil
}

// readLoop reads fixed-size PCM chunks from ffmpeg stdout and emits frames
// until the pipe closes. Muted frames are emitted with empty Data so that
// downstream timing (frame cadence) is preserved without leaking audio.
func (c *Capture) readLoop(r io.Reader, out chan<- audio.Frame) {
	defer close(out)

	start := time.Now()
	buf := make([]byte, c.cfg.FrameSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := make([]byte, n)
			c.mu.Lock()
			muted := c.muted
			c.mu.Unlock()
			if muted {
				data = data[:0]
			} else {
				copy(data, buf[:n])
			}
			out <- audio.Frame{
				Data:       data,
				SampleRate: c.cfg.SampleRate,
				Channels:   c.cfg.Channels,
				Timestamp:  time.Since(start),
			}
		}
		if err != nil {
			return
		}
	}
}

// Mute implements [audio.CaptureChannel].
func (c *Capture) Mute() {
	c.mu.Lock()
	c.muted = true
	c.mu.Unlock()
}

// Unmute implements [audio.CaptureChannel].
func (c *Capture) Unmute() {
	c.mu.Lock()
	c.muted = false
	c.mu.Unlock()
}

// Muted implements [audio.CaptureChannel].
func (c *Capture) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Close stops the ffmpeg process and releases the device. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}
	c.open = false

	if c.process != nil {
		_ = c.process.Signal(os.Interrupt)
	}
	select {
	case <-c.waitErr:
	case <-time.After(1200 * time.Millisecond):
		if c.process != nil {
			_ = c.process.Kill()
		}
		<-c.waitErr
	}
	_ = c.stdout.Close()

	c.process = nil
	c.stdout = nil
	c.waitErr = nil
	return nil
}

// Playback is an ffplay-backed [audio.PlaybackChannel].
// All methods are safe for concurrent use.
type Playback struct {
	cfg Config

	mu      sync.Mutex
	playing *os.Process
	stopped bool
}

// Compile-time interface check.
var _ audio.PlaybackChannel = (*Playback)(nil)

// NewPlayback creates a playback channel for the configured device.
func NewPlayback(cfg Config) *Playback {
	return &Playback{cfg: cfg.withDefaults()}
}

// Play pipes the source's PCM into an ffplay subprocess and blocks until the
// source ends, Stop is called, or ctx is cancelled.
func (p *Playback) Play(ctx context.Context, src audio.Source) error {
	chunks, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("device: open source: %w", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-autoexit",
		"-nodisp",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.cfg.SampleRate),
		"-ch_layout", layoutName(p.cfg.Channels),
		"-i", "-",
	}

	cmd := exec.CommandContext(ctx, p.cfg.FFplayPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("device: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffplay: %v", audio.ErrDeviceUnavailable, err)
	}

	p.mu.Lock()
	p.playing = cmd.Process
	p.stopped = false
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.playing = nil
		p.mu.Unlock()
	}()

	for chunk := range chunks {
		if _, werr := stdin.Write(chunk); werr != nil {
			// ffplay was stopped or died; drain the source and report how.
			for range chunks {
			}
			_ = stdin.Close()
			_ = cmd.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
	_ = stdin.Close()
	_ = cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Stop halts the in-flight Play, if any, on a best-effort basis.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.playing != nil {
		_ = p.playing.Kill()
	}
}

// Close implements [audio.PlaybackChannel]. Stops any active playback.
func (p *Playback) Close() error {
	p.Stop()
	return nil
}

// layoutName maps a channel count to an ffplay channel layout name.
func layoutName(channels int) string {
	if channels == 2 {
		return "stereo"
	}
	return "mono"
}
