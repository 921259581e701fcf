package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wellbot-ai/wellbot/internal/config"
)

const watchedInfoYAML = `
server:
  log_level: info
providers:
  stt:
    name: deepgram
  tts:
    name: elevenlabs
session:
  termination_phrases:
    - goodbye
`

const watchedDebugYAML = `
server:
  log_level: debug
providers:
  stt:
    name: deepgram
  tts:
    name: elevenlabs
session:
  termination_phrases:
    - goodbye
    - stop journal
`

// reloadRecorder collects onChange invocations.
type reloadRecorder struct {
	mu    sync.Mutex
	old   *config.Config
	fresh *config.Config
	calls int
	fired chan struct{}
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{fired: make(chan struct{}, 1)}
}

func (r *reloadRecorder) onChange(old, updated *config.Config) {
	r.mu.Lock()
	r.old, r.fresh = old, updated
	r.calls++
	r.mu.Unlock()
	select {
	case r.fired <- struct{}{}:
	default:
	}
}

func (r *reloadRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// watchedFile writes content to a temp config file and returns its path.
func watchedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wellbot.yaml")
	rewrite(t, path, content)
	return path
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcherLoadsInitialConfig(t *testing.T) {
	t.Parallel()
	w, err := config.NewWatcher(watchedFile(t, watchedInfoYAML), nil,
		config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current is nil after construction")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
}

func TestWatcherReportsContentChange(t *testing.T) {
	t.Parallel()
	path := watchedFile(t, watchedInfoYAML)
	rec := newReloadRecorder()

	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, watchedDebugYAML)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange never fired")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.old == nil || rec.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old config: %+v, want log_level info", rec.old)
	}
	if rec.fresh == nil || rec.fresh.Server.LogLevel != config.LogDebug {
		t.Errorf("fresh config: %+v, want log_level debug", rec.fresh)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current log_level = %q, want debug", got)
	}
}

func TestWatcherRejectsInvalidEdit(t *testing.T) {
	t.Parallel()
	path := watchedFile(t, watchedInfoYAML)
	rec := newReloadRecorder()

	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, "server:\n  log_level: bananas\n")
	time.Sleep(300 * time.Millisecond)

	if got := rec.callCount(); got != 0 {
		t.Errorf("onChange fired %d times for an invalid edit, want 0", got)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current log_level = %q, want the pre-edit info", got)
	}
}

func TestWatcherIgnoresTouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := watchedFile(t, watchedInfoYAML)
	rec := newReloadRecorder()

	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := rec.callCount(); got != 0 {
		t.Errorf("onChange fired %d times for a touch-only change, want 0", got)
	}
}

func TestWatcherFailsWhenFileMissing(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected an initial-load error for a missing file")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := config.NewWatcher(watchedFile(t, watchedInfoYAML), nil,
		config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
	w.Stop()
}
