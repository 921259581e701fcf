package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wellbot-ai/wellbot/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "wellbot.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention open, got: %v", err)
	}
}

func TestValidate_DefaultsPartialSession(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  silence_timeout: 8s
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Session.SilenceTimeout.Std(); got != 8*time.Second {
		t.Errorf("silence_timeout: got %v, want 8s", got)
	}
	// Unset fields pick up defaults around the explicit one.
	if got := cfg.Session.NudgeTimeout.Std(); got != config.DefaultNudgeTimeout {
		t.Errorf("nudge_timeout default: got %v, want %v", got, config.DefaultNudgeTimeout)
	}
	if got := cfg.Session.WakeSilenceTimeout.Std(); got != config.DefaultWakeSilenceTimeout {
		t.Errorf("wake_silence_timeout default: got %v, want %v", got, config.DefaultWakeSilenceTimeout)
	}
}

func TestValidate_KeepsExplicitPhrases(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  termination_phrases:
    - that will be all
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Session.TerminationPhrases) != 1 || cfg.Session.TerminationPhrases[0] != "that will be all" {
		t.Errorf("explicit phrases must survive validation, got %v", cfg.Session.TerminationPhrases)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	sttNames := config.ValidProviderNames["stt"]
	if len(sttNames) == 0 {
		t.Fatal("ValidProviderNames[\"stt\"] should not be empty")
	}
	found := false
	for _, n := range sttNames {
		if n == "deepgram" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"stt\"] should contain \"deepgram\"")
	}
}
