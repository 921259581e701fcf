// Package app assembles the Well-Bot runtime: audio devices, speech
// providers, memory stores, the session arbiter, the wake listener, and the
// orchestrator, plus the HTTP observability server.
//
// The package owns construction order and teardown only. All behaviour lives
// in the components it wires together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wellbot-ai/wellbot/internal/activity"
	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/internal/config"
	"github.com/wellbot-ai/wellbot/internal/health"
	"github.com/wellbot-ai/wellbot/internal/intent"
	"github.com/wellbot-ai/wellbot/internal/observe"
	"github.com/wellbot-ai/wellbot/internal/orchestrator"
	"github.com/wellbot-ai/wellbot/internal/phrase"
	"github.com/wellbot-ai/wellbot/internal/resilience"
	"github.com/wellbot-ai/wellbot/pkg/audio"
	"github.com/wellbot-ai/wellbot/pkg/audio/device"
	"github.com/wellbot-ai/wellbot/pkg/memory"
	"github.com/wellbot-ai/wellbot/pkg/memory/postgres"
	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
	"github.com/wellbot-ai/wellbot/pkg/provider/stt"
	"github.com/wellbot-ai/wellbot/pkg/provider/tts"
	"github.com/wellbot-ai/wellbot/pkg/wake"
)

// Providers bundles the speech and wake collaborators instantiated from the
// provider registry. LLM, STT, and TTS are required for a functional session;
// Spotter falls back to the built-in energy detector when nil.
type Providers struct {
	LLM     llm.Provider
	STT     stt.Provider
	TTS     tts.Provider
	Spotter wake.Spotter

	// LLMFallbacks are tried in order when LLM fails or its breaker is open.
	LLMFallbacks []NamedLLM
}

// NamedLLM pairs a fallback LLM backend with its registry name for logs.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// App is the assembled Well-Bot runtime.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	sessionID string

	arb   *arbiter.Arbiter
	orch  *orchestrator.Orchestrator
	llm   llm.Provider    // breaker-guarded failover chain; nil without an LLM
	store *postgres.Store // nil when memory.postgres_dsn is unset

	turns   memory.TurnStore
	journal memory.JournalStore

	httpSrv *http.Server
}

// Option configures an App before construction completes.
type Option func(*App)

// WithTurnStore injects a turn store, bypassing the Postgres setup. Used in
// tests and by alternative storage backends.
func WithTurnStore(s memory.TurnStore) Option {
	return func(a *App) { a.turns = s }
}

// WithJournalStore injects a journal store, bypassing the Postgres setup.
func WithJournalStore(s memory.JournalStore) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics overrides the default meter-provider-backed metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires the full runtime from cfg and providers. The context bounds the
// startup work only (store connection, migration).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if providers.STT == nil {
		return nil, errors.New("app: no stt provider configured")
	}
	if providers.TTS == nil {
		return nil, errors.New("app: no tts provider configured")
	}

	if err := a.initMemory(ctx); err != nil {
		return nil, err
	}
	a.initSession()
	a.initHTTP()

	slog.Info("application assembled",
		"session_id", a.sessionID,
		"persistent_memory", a.turns != nil,
	)
	return a, nil
}

// initMemory connects the Postgres store when a DSN is configured and no
// store was injected. Without either, activities run non-persistent.
func (a *App) initMemory(ctx context.Context) error {
	if a.turns != nil || a.journal != nil {
		return nil
	}
	dsn := a.cfg.Memory.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; journal entries and turns will not persist")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: open memory store: %w", err)
	}
	a.store = store
	a.turns = store.Turns()
	a.journal = store.Journal()
	return nil
}

// initSession builds the arbiter, the wake listener, the activities, and the
// orchestrator.
func (a *App) initSession() {
	devCfg := device.Config{
		FFmpegPath:  a.cfg.Audio.FFmpegPath,
		FFplayPath:  a.cfg.Audio.FFplayPath,
		InputFormat: a.cfg.Audio.InputFormat,
		InputDevice: a.cfg.Audio.InputDevice,
		SampleRate:  a.cfg.Audio.SampleRate,
		Channels:    a.cfg.Audio.Channels,
		FrameSize:   a.cfg.Audio.FrameSize,
	}
	capture := device.NewCapture(devCfg)
	playback := device.NewPlayback(devCfg)
	// The wake listener owns a separate input stream; the arbiter and the
	// listener never hold the device at the same time.
	wakeCapture := device.NewCapture(devCfg)

	streamCfg := stt.StreamConfig{
		SampleRate: a.cfg.Audio.SampleRate,
		Channels:   a.cfg.Audio.Channels,
	}

	var matcherOpts []phrase.Option
	if t := a.cfg.Session.FuzzyThreshold; t > 0 {
		matcherOpts = append(matcherOpts, phrase.WithFuzzyThreshold(t))
	}
	matcher := phrase.New(matcherOpts...)
	phrases := a.cfg.Session.TerminationPhrases

	a.arb = arbiter.New(capture, playback, a.providers.STT, streamCfg,
		arbiter.WithMatcher(matcher),
		arbiter.WithMetrics(a.metrics),
		arbiter.WithPlaybackPhrases(phrases),
	)

	var nudge audio.Source
	if path := a.cfg.Session.NudgeAudioPath; path != "" {
		nudge = audio.NewFileSource(path, a.cfg.Audio.FrameSize)
	}
	baseCapture := arbiter.CaptureConfig{
		SilenceTimeout:     a.cfg.Session.SilenceTimeout.Std(),
		NudgeTimeout:       a.cfg.Session.NudgeTimeout.Std(),
		NudgeSource:        nudge,
		NudgePreDelay:      a.cfg.Session.NudgePreDelay.Std(),
		NudgePostDelay:     a.cfg.Session.NudgePostDelay.Std(),
		TerminationPhrases: phrases,
	}

	a.llm = a.buildLLM()

	handle := activity.Handle{
		TTS:       a.providers.TTS,
		Voice:     voiceProfile(a.cfg.Providers.TTS),
		LLM:       a.llm,
		Turns:     a.turns,
		Journal:   a.journal,
		Capture:   baseCapture,
		SessionID: a.sessionID,
	}

	acts := map[intent.Intent]activity.Activity{
		intent.Smalltalk: &activity.Smalltalk{SystemPrompt: a.cfg.Activities.SystemPrompt},
		intent.Journal:   &activity.Journal{},
		intent.Gratitude: &activity.Gratitude{},
		intent.Quote:     &activity.Quote{Quotes: a.cfg.Activities.Quotes},
		intent.Meditation: &activity.Meditation{
			Source: meditationSource(a.cfg.Activities.MeditationAudioPath, a.cfg.Audio.FrameSize),
		},
	}

	var classifyOpts []intent.Option
	if a.llm != nil {
		classifyOpts = append(classifyOpts, intent.WithLLM(a.llm))
	}

	spotter := a.providers.Spotter
	if spotter == nil {
		spotter = wake.NewEnergySpotter()
	}
	listener := wake.New(wakeCapture, spotter)

	a.orch = orchestrator.New(
		a.arb,
		orchestrator.WrapWake(listener),
		intent.New(classifyOpts...),
		acts,
		handle,
		orchestrator.Config{
			GuardDelay: a.cfg.Session.GuardDelay.Std(),
			WakeCapture: arbiter.CaptureConfig{
				SilenceTimeout:     a.cfg.Session.WakeSilenceTimeout.Std(),
				TerminationPhrases: phrases,
			},
			ArmBackoff: resilience.BackoffConfig{
				Name:        "wake-arm",
				Initial:     250 * time.Millisecond,
				Max:         5 * time.Second,
				MaxAttempts: 8,
			},
		},
		orchestrator.WithMetrics(a.metrics),
	)
}

// initHTTP builds the observability server: liveness, readiness, session
// status, and Prometheus metrics.
func (a *App) initHTTP() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	checkers := []health.Checker{
		{Name: "session", Check: func(context.Context) error {
			if a.orch.Phase() == orchestrator.PhaseStarting {
				return errors.New("session not started")
			}
			return nil
		}},
	}
	if a.store != nil {
		checkers = append(checkers, health.Checker{
			Name: "memory",
			Check: func(ctx context.Context) error {
				_, err := a.store.Turns().RecentTurns(ctx, a.sessionID, time.Minute)
				return err
			},
		})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.HandleFunc("GET /statusz", health.Statusz(func() any { return a.orch.Status() }))
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildLLM stacks the configured LLM backends into a breaker-guarded
// failover chain. A chain of one still fails fast while the backend's
// breaker is open, instead of stalling every conversation turn on a dead
// endpoint.
func (a *App) buildLLM() llm.Provider {
	if a.providers.LLM == nil {
		return nil
	}
	name := a.cfg.Providers.LLM.Name
	if name == "" {
		name = "primary"
	}
	chain := resilience.NewLLMChain(resilience.BreakerConfig{
		TripAfter: 3,
		CoolDown:  30 * time.Second,
	})
	chain.Add(name, a.providers.LLM)
	for _, fb := range a.providers.LLMFallbacks {
		if fb.Provider == nil {
			continue
		}
		chain.Add(fb.Name, fb.Provider)
	}
	return chain
}

// Orchestrator exposes the session orchestrator, mainly for status queries.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// LLM exposes the assembled completion backend (the failover chain), or nil
// when no LLM is configured.
func (a *App) LLM() llm.Provider { return a.llm }

// SessionID returns the identifier under which this process records turns
// and journal entries.
func (a *App) SessionID() string { return a.sessionID }

// Run drives the session loop and the HTTP server until ctx is cancelled or
// either fails. A shutdown intent from the user ends Run with a nil error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	orchDone := make(chan struct{})
	g.Go(func() error {
		defer close(orchDone)
		return a.orch.Run(ctx)
	})

	if a.httpSrv != nil {
		g.Go(func() error {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = a.httpSrv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			// Stop serving once the session ends or the context is cancelled.
			select {
			case <-ctx.Done():
			case <-orchDone:
			}
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases resources held by the App. Call after Run returns.
func (a *App) Shutdown(_ context.Context) error {
	if a.store != nil {
		a.store.Close()
	}
	slog.Info("application stopped", "session_id", a.sessionID)
	return nil
}

// ApplyConfig reacts to a hot-reloaded configuration. Only the log level is
// applied live; phrase and timing changes need a restart because the arbiter
// and activities captured them at assembly time.
func (a *App) ApplyConfig(level *slog.LevelVar, old, updated *config.Config) {
	diff := config.Diff(old, updated)
	if !diff.Any() {
		return
	}
	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level updated", "level", string(diff.NewLogLevel))
	}
	if diff.PhrasesChanged || diff.TimingChanged || diff.ActivitiesChanged {
		slog.Warn("session settings changed on disk; restart to apply",
			"phrases", diff.PhrasesChanged,
			"timing", diff.TimingChanged,
			"activities", diff.ActivitiesChanged,
		)
	}
}

// meditationSource returns a per-run file source factory, or nil when no
// meditation audio is configured.
func meditationSource(path string, chunkSize int) func() audio.Source {
	if path == "" {
		return nil
	}
	return func() audio.Source { return audio.NewFileSource(path, chunkSize) }
}

// voiceProfile extracts the TTS voice selection from the provider entry's
// options block.
func voiceProfile(entry config.ProviderEntry) tts.VoiceProfile {
	v := tts.VoiceProfile{Provider: entry.Name}
	if entry.Options == nil {
		return v
	}
	if id, ok := entry.Options["voice"].(string); ok {
		v.ID = id
	}
	if name, ok := entry.Options["voice_name"].(string); ok {
		v.Name = name
	}
	return v
}

// slogLevel maps the config level to slog's.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
