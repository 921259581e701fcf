// Package resilience holds the failure-handling primitives shared by the
// session core: [Retry] for transient device errors, [Breaker] for flaky
// remote providers, and [Chain] for provider failover.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is cooling
// down after a trip. The wrapped call is not made.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState uint8

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call until the cool-down elapses.
	BreakerOpen

	// BreakerHalfOpen admits a limited number of probe calls to decide
	// whether the backend has recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// TripAfter is the run of consecutive failures that opens the breaker.
	// Default 5.
	TripAfter int

	// CoolDown is how long the breaker rejects calls after tripping before
	// it starts probing. Default 30s.
	CoolDown time.Duration

	// ProbeQuota is how many probe calls must succeed, back to back, for a
	// half-open breaker to close. A single probe failure re-opens it.
	// Default 3.
	ProbeQuota int
}

// Breaker guards calls to an unreliable backend. A run of failures trips it;
// while tripped, calls fail fast with [ErrBreakerOpen] instead of piling up
// on a backend that is already down. After the cool-down a few probe calls
// decide whether to close again.
//
// Safe for concurrent use.
type Breaker struct {
	name       string
	tripAfter  int
	coolDown   time.Duration
	probeQuota int

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &Breaker{
		name:       cfg.Name,
		tripAfter:  cfg.TripAfter,
		coolDown:   cfg.CoolDown,
		probeQuota: cfg.ProbeQuota,
	}
}

// Do runs fn unless the breaker rejects the call, and feeds the outcome back
// into the trip accounting. fn's error is returned unchanged so callers can
// still inspect it with [errors.Is].
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it counts as a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) < b.coolDown {
			return false, ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeWins = 0
		slog.Info("breaker probing backend", "name", b.name)
	}

	if b.state == BreakerHalfOpen {
		if b.probes >= b.probeQuota {
			// Probe budget spent; outcome pending from in-flight probes.
			return false, ErrBreakerOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// settle records the call outcome.
func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if probe {
			b.probeWins++
			if b.probeWins >= b.probeQuota {
				b.state = BreakerClosed
				b.failures = 0
				slog.Info("breaker closed", "name", b.name)
			}
			return
		}
		b.failures = 0
		return
	}

	if probe {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("breaker re-opened by failed probe", "name", b.name, "err", err)
		return
	}

	b.failures++
	if b.state == BreakerClosed && b.failures >= b.tripAfter {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// State reports the breaker's mode. An open breaker whose cool-down has
// elapsed reports half-open; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.coolDown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeWins = 0
}
