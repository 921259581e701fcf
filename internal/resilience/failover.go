package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when every link in a [Chain] either failed or
// was skipped because its breaker is open.
var ErrChainExhausted = errors.New("resilience: all providers failed")

// chainLink pairs one provider instance with its own breaker, so a dead
// primary stops being tried without affecting the fallbacks.
type chainLink[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain is an ordered failover list of same-typed providers. Do walks the
// links in registration order, skipping any whose breaker is open, until one
// call succeeds.
//
// Add is not safe to call concurrently with Do; register all links during
// assembly.
type Chain[T any] struct {
	links      []chainLink[T]
	breakerCfg BreakerConfig
}

// NewChain creates an empty chain. cfg seeds the per-link breakers (the
// link's name overrides cfg.Name).
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{breakerCfg: cfg}
}

// Add appends a link. The first link added is the preferred provider.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.breakerCfg
	cfg.Name = name
	c.links = append(c.links, chainLink[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Len reports how many links are registered.
func (c *Chain[T]) Len() int { return len(c.links) }

// Primary returns the first link's provider, when one exists.
func (c *Chain[T]) Primary() (T, bool) {
	var zero T
	if len(c.links) == 0 {
		return zero, false
	}
	return c.links[0].value, true
}

// Do tries fn against each healthy link in order. The first success wins;
// when every link fails or is skipped, the last failure is wrapped in
// [ErrChainExhausted].
func (c *Chain[T]) Do(fn func(value T) error) error {
	if len(c.links) == 0 {
		return ErrChainExhausted
	}
	var lastErr error
	for i := range c.links {
		link := &c.links[i]
		err := link.breaker.Do(func() error { return fn(link.value) })
		if err == nil {
			if i > 0 {
				slog.Info("failover succeeded", "provider", link.name)
			}
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider with open breaker", "provider", link.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", link.name, "err", err)
		}
	}
	return fmt.Errorf("%w: %w", ErrChainExhausted, lastErr)
}

// ChainDo is [Chain.Do] for calls that produce a result. It is a package
// function because methods cannot introduce their own type parameters.
func ChainDo[T, R any](c *Chain[T], fn func(value T) (R, error)) (R, error) {
	var result R
	err := c.Do(func(value T) error {
		var innerErr error
		result, innerErr = fn(value)
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
