// Package orchestrator drives the top-level session state machine: wake-word
// idle listening, intent capture, activity execution, and the guarded device
// hand-offs between them.
//
// The orchestrator is the only component that arms and disarms the wake
// listener, and the only one that decides which activity runs. Activities see
// the arbiter through [activity.Handle]; the wake listener never runs while
// the arbiter holds the microphone.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wellbot-ai/wellbot/internal/activity"
	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/internal/intent"
	"github.com/wellbot-ai/wellbot/internal/observe"
	"github.com/wellbot-ai/wellbot/internal/resilience"
	"github.com/wellbot-ai/wellbot/pkg/wake"
)

// Phase is the process-wide session phase. Exactly one value holds at a time.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseIdle
	PhaseWakeProcessing
	PhaseActivityActive
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseIdle:
		return "idle"
	case PhaseWakeProcessing:
		return "wake_processing"
	case PhaseActivityActive:
		return "activity_active"
	case PhaseShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Arbiter is the session surface the orchestrator needs: the capture and
// playback calls it hands to activities, plus the device-release probe used
// before re-arming the wake listener.
type Arbiter interface {
	activity.Session
	DeviceReleased() bool
}

// WakeControl arms wake-word detection. [WrapWake] adapts *wake.Listener.
type WakeControl interface {
	Arm(ctx context.Context, onDetect func()) (WakeHandle, error)
}

// WakeHandle is one armed detection session.
type WakeHandle interface {
	Disarm() error
}

type wakeListener struct{ l *wake.Listener }

func (w wakeListener) Arm(ctx context.Context, onDetect func()) (WakeHandle, error) {
	return w.l.Arm(ctx, onDetect)
}

// WrapWake adapts a *wake.Listener to the [WakeControl] interface.
func WrapWake(l *wake.Listener) WakeControl { return wakeListener{l: l} }

// Classifier resolves a transcribed utterance to an intent.
// *intent.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, text string) (intent.Result, error)
}

// Config carries the orchestrator's timing and capture parameters. Zero
// durations are honoured as-is; config.Validate applies operational defaults
// before the orchestrator sees them.
type Config struct {
	// GuardDelay is the fixed settle pause after full device release before
	// the wake listener's input stream reopens. Device-driver release
	// latency is platform-dependent; this is its black-box allowance.
	GuardDelay time.Duration

	// WakeCapture is the short capture configuration used for the
	// intent-classification utterance right after a wake event. It uses a
	// tighter silence window and no nudge.
	WakeCapture arbiter.CaptureConfig

	// ArmBackoff governs retries when arming the wake listener fails with a
	// busy device. Exhausting it is fatal.
	ArmBackoff resilience.BackoffConfig

	// ReleasePoll is the interval at which the arbiter's device state is
	// probed while waiting for release. Defaults to 10ms.
	ReleasePoll time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics overrides the default meter-provider-backed metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the sleep function, for tests.
func WithClock(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// Orchestrator owns the session phase and the wake/activity loop.
type Orchestrator struct {
	arb      Arbiter
	wakeCtl  WakeControl
	classify Classifier
	acts     map[intent.Intent]activity.Activity
	handle   activity.Handle
	cfg      Config
	metrics  *observe.Metrics
	sleep    func(ctx context.Context, d time.Duration)

	phase atomic.Int32

	mu       sync.Mutex
	armed    WakeHandle
	current  string // running (or last finished) activity name
	lastWake intentSnapshot

	wakeEvents   atomic.Uint64
	activityRuns atomic.Uint64
}

type intentSnapshot struct {
	Intent string
	Source string
}

// New builds an Orchestrator. The handle is a template: Session and Activity
// are set per run, everything else (providers, stores, capture config,
// session ID) is carried through to activities unchanged.
func New(arb Arbiter, wakeCtl WakeControl, classify Classifier, acts map[intent.Intent]activity.Activity, handle activity.Handle, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ReleasePoll <= 0 {
		cfg.ReleasePoll = 10 * time.Millisecond
	}
	o := &Orchestrator{
		arb:      arb,
		wakeCtl:  wakeCtl,
		classify: classify,
		acts:     acts,
		handle:   handle,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
	o.handle.Session = arb
	o.phase.Store(int32(PhaseStarting))
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Phase returns the current session phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

func (o *Orchestrator) setPhase(p Phase) {
	old := Phase(o.phase.Swap(int32(p)))
	if old != p {
		slog.Info("session phase", "from", old.String(), "to", p.String())
	}
}

// Status is a point-in-time snapshot for health and readiness reporting.
type Status struct {
	Phase          string `json:"phase"`
	Activity       string `json:"activity,omitempty"`
	LastIntent     string `json:"last_intent,omitempty"`
	IntentSource   string `json:"intent_source,omitempty"`
	WakeEvents     uint64 `json:"wake_events"`
	ActivityRuns   uint64 `json:"activity_runs"`
	DeviceReleased bool   `json:"device_released"`
}

// Status reports the orchestrator's current state. Safe to call from any
// goroutine, including HTTP handlers.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	current := o.current
	last := o.lastWake
	o.mu.Unlock()

	return Status{
		Phase:          o.Phase().String(),
		Activity:       current,
		LastIntent:     last.Intent,
		IntentSource:   last.Source,
		WakeEvents:     o.wakeEvents.Load(),
		ActivityRuns:   o.activityRuns.Load(),
		DeviceReleased: o.arb.DeviceReleased(),
	}
}

// Run executes the session loop until ctx is cancelled or a shutdown intent
// arrives. It returns nil on an orderly shutdown and an error only for
// unrecoverable faults (the wake listener cannot be armed).
func (o *Orchestrator) Run(ctx context.Context) error {
	wakeCh := make(chan struct{}, 1)
	onDetect := func() {
		select {
		case wakeCh <- struct{}{}:
		default: // an event is already pending
		}
	}

	if err := o.armWake(ctx, onDetect); err != nil {
		o.setPhase(PhaseShuttingDown)
		return fmt.Errorf("orchestrator: initial arm: %w", err)
	}
	o.setPhase(PhaseIdle)

	for {
		select {
		case <-ctx.Done():
			return o.shutdown(ctx, nil)
		case <-wakeCh:
		}

		shutdown, err := o.handleWake(ctx, onDetect)
		if err != nil {
			return o.shutdown(ctx, err)
		}
		if shutdown || ctx.Err() != nil {
			return o.shutdown(ctx, nil)
		}
	}
}

// handleWake runs one wake cycle: disarm, capture the intent utterance,
// classify, run the activity, re-arm. The bool result requests a full
// session shutdown; the error result is fatal (re-arming failed).
func (o *Orchestrator) handleWake(ctx context.Context, onDetect func()) (bool, error) {
	o.setPhase(PhaseWakeProcessing)
	o.wakeEvents.Add(1)
	o.metrics.RecordWakeDetection(ctx)

	if err := o.disarmWake(); err != nil {
		slog.Warn("wake disarm failed", "err", err)
	}

	utt, sig, err := o.arb.CaptureUtterance(ctx, o.cfg.WakeCapture)
	if err != nil {
		// A busy or failed device right after wake is not fatal; the arbiter
		// released everything before returning. Go back to idle listening.
		slog.Warn("intent capture failed", "err", err)
		return false, o.rearm(ctx, onDetect)
	}
	if sig.Kind == arbiter.SignalSilenceTimeout || utt.Text == "" {
		slog.Info("wake event with no utterance")
		return false, o.rearm(ctx, onDetect)
	}
	if sig.Kind == arbiter.SignalExternalCancel && ctx.Err() != nil {
		return true, nil
	}
	if sig.Kind == arbiter.SignalPhraseMatched {
		// A termination phrase right after the wake word dismisses the
		// session; it is not a request to start anything.
		slog.Info("wake capture ended by phrase", "phrase", sig.Phrase)
		return false, o.rearm(ctx, onDetect)
	}

	res, err := o.classify.Classify(ctx, utt.Text)
	if err != nil {
		// The classifier already degraded to its fallback result.
		slog.Warn("intent classification degraded", "err", err)
	}
	o.mu.Lock()
	o.lastWake = intentSnapshot{Intent: string(res.Intent), Source: string(res.Source)}
	o.mu.Unlock()
	slog.Info("intent classified",
		"intent", string(res.Intent),
		"source", string(res.Source),
		"confidence", res.Confidence,
	)

	if res.Intent == intent.Shutdown {
		return true, nil
	}

	if shutdown := o.runActivity(ctx, res.Intent); shutdown {
		return true, nil
	}
	return false, o.rearm(ctx, onDetect)
}

// runActivity resolves and executes the activity for in. Faults and panics
// are absorbed here: the session always returns to idle. The bool result
// requests shutdown.
func (o *Orchestrator) runActivity(ctx context.Context, in intent.Intent) bool {
	act, ok := o.acts[in]
	if !ok {
		act, ok = o.acts[intent.Smalltalk]
		if !ok {
			slog.Error("no activity registered", "intent", string(in))
			return false
		}
	}

	o.setPhase(PhaseActivityActive)
	o.activityRuns.Add(1)
	o.mu.Lock()
	o.current = act.Name()
	o.mu.Unlock()

	h := o.handle
	h.Activity = act.Name()

	start := time.Now()
	res, err := o.safeRun(ctx, act, &h)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
		slog.Error("activity failed", "activity", act.Name(), "err", err)
	case res.Signal.Terminal():
		status = res.Signal.Kind.String()
	}
	o.metrics.RecordActivityRun(ctx, act.Name(), status)
	slog.Info("activity finished",
		"activity", act.Name(),
		"status", status,
		"signal", res.Signal.String(),
		"duration", time.Since(start),
	)

	return res.Shutdown
}

// safeRun isolates activity panics so one misbehaving activity cannot take
// the session down.
func (o *Orchestrator) safeRun(ctx context.Context, act activity.Activity, h *activity.Handle) (res activity.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("activity panicked",
				"activity", act.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = activity.Result{Signal: arbiter.ExternalCancel()}
			err = nil
		}
	}()
	return act.Run(ctx, h)
}

// rearm waits for full device release plus the guard delay, then arms the
// wake listener again and returns to idle. An arm failure after retries is
// fatal.
func (o *Orchestrator) rearm(ctx context.Context, onDetect func()) error {
	if err := o.waitRelease(ctx); err != nil {
		return nil // shutting down; Run's select observes ctx
	}
	o.sleep(ctx, o.cfg.GuardDelay)
	if ctx.Err() != nil {
		return nil
	}

	if err := o.armWake(ctx, onDetect); err != nil {
		return fmt.Errorf("orchestrator: re-arm: %w", err)
	}
	o.setPhase(PhaseIdle)
	o.mu.Lock()
	o.current = ""
	o.mu.Unlock()
	return nil
}

// waitRelease polls until both capture and playback sides of the arbiter are
// inactive.
func (o *Orchestrator) waitRelease(ctx context.Context) error {
	for !o.arb.DeviceReleased() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.ReleasePoll):
		}
	}
	return nil
}

func (o *Orchestrator) armWake(ctx context.Context, onDetect func()) error {
	return resilience.Retry(ctx, o.cfg.ArmBackoff, func(ctx context.Context) error {
		h, err := o.wakeCtl.Arm(ctx, onDetect)
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.armed = h
		o.mu.Unlock()
		return nil
	})
}

func (o *Orchestrator) disarmWake() error {
	o.mu.Lock()
	h := o.armed
	o.armed = nil
	o.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Disarm()
}

// shutdown disarms, waits for the arbiter to let go of the device, and
// settles the final phase. cause, when non-nil, is the fatal error to return.
func (o *Orchestrator) shutdown(ctx context.Context, cause error) error {
	o.setPhase(PhaseShuttingDown)
	if err := o.disarmWake(); err != nil {
		slog.Warn("shutdown disarm failed", "err", err)
	}

	// The parent context is usually cancelled by now; bound the drain wait
	// independently so shutdown cannot hang on a wedged device.
	drainCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for !o.arb.DeviceReleased() {
		select {
		case <-drainCtx.Done():
			slog.Warn("device still held at shutdown")
			return cause
		case <-time.After(o.cfg.ReleasePoll):
		}
	}

	slog.Info("session ended",
		"wake_events", o.wakeEvents.Load(),
		"activity_runs", o.activityRuns.Load(),
	)
	return cause
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
