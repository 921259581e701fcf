package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":  {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":  {"deepgram"},
	"tts":  {"elevenlabs"},
	"wake": {"energy", "porcupine"},
}

// DefaultTerminationPhrases is the phrase set used when the config declares
// none.
var DefaultTerminationPhrases = []string{"goodbye", "stop journal", "that's all for now"}

// Timing defaults applied by [Validate] when the config leaves them zero.
const (
	DefaultSilenceTimeout     = 12 * time.Second
	DefaultNudgeTimeout       = 10 * time.Second
	DefaultWakeSilenceTimeout = 6 * time.Second
	DefaultNudgePreDelay      = 150 * time.Millisecond
	DefaultNudgePostDelay     = 200 * time.Millisecond
	DefaultGuardDelay         = 250 * time.Millisecond
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for fields left unset. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("wake", cfg.Providers.Wake.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; captured speech cannot be transcribed")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; smalltalk and intent fallback are unavailable")
	}

	// Session timing: reject negatives, default zeroes.
	checkDuration := func(name string, d Duration) {
		if d < 0 {
			errs = append(errs, fmt.Errorf("session.%s must not be negative", name))
		}
	}
	checkDuration("silence_timeout", cfg.Session.SilenceTimeout)
	checkDuration("nudge_timeout", cfg.Session.NudgeTimeout)
	checkDuration("wake_silence_timeout", cfg.Session.WakeSilenceTimeout)
	checkDuration("nudge_pre_delay", cfg.Session.NudgePreDelay)
	checkDuration("nudge_post_delay", cfg.Session.NudgePostDelay)
	checkDuration("guard_delay", cfg.Session.GuardDelay)

	if cfg.Session.SilenceTimeout == 0 {
		cfg.Session.SilenceTimeout = Duration(DefaultSilenceTimeout)
	}
	if cfg.Session.NudgeTimeout == 0 {
		cfg.Session.NudgeTimeout = Duration(DefaultNudgeTimeout)
	}
	if cfg.Session.WakeSilenceTimeout == 0 {
		cfg.Session.WakeSilenceTimeout = Duration(DefaultWakeSilenceTimeout)
	}
	if cfg.Session.NudgePreDelay == 0 {
		cfg.Session.NudgePreDelay = Duration(DefaultNudgePreDelay)
	}
	if cfg.Session.NudgePostDelay == 0 {
		cfg.Session.NudgePostDelay = Duration(DefaultNudgePostDelay)
	}
	if cfg.Session.GuardDelay == 0 {
		cfg.Session.GuardDelay = Duration(DefaultGuardDelay)
	}

	if len(cfg.Session.TerminationPhrases) == 0 {
		cfg.Session.TerminationPhrases = slices.Clone(DefaultTerminationPhrases)
	}
	for i, p := range cfg.Session.TerminationPhrases {
		if p == "" {
			errs = append(errs, fmt.Errorf("session.termination_phrases[%d] is empty", i))
		}
	}

	if t := cfg.Session.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("session.fuzzy_threshold %.2f is out of range [0, 1]", t))
	}

	// Nudge audio must exist when configured.
	if p := cfg.Session.NudgeAudioPath; p != "" {
		if _, err := os.Stat(p); err != nil {
			slog.Warn("session.nudge_audio_path is not readable; nudge will be silent", "path", p, "err", err)
		}
	}

	// Memory availability
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; conversation turns and journal entries will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
