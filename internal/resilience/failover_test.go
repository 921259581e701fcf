package resilience

import (
	"errors"
	"testing"
	"time"
)

// newStringChain builds a chain over plain string "providers" with a short
// cool-down so tests can exercise breaker interplay.
func newStringChain(names ...string) *Chain[string] {
	c := NewChain[string](BreakerConfig{TripAfter: 2, CoolDown: time.Hour})
	for _, n := range names {
		c.Add(n, n)
	}
	return c
}

func TestChainPrefersFirstLink(t *testing.T) {
	t.Parallel()
	c := newStringChain("primary", "backup")

	var used []string
	err := c.Do(func(v string) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(used) != 1 || used[0] != "primary" {
		t.Errorf("used = %v, want [primary]", used)
	}
}

func TestChainFailsOverInOrder(t *testing.T) {
	t.Parallel()
	c := newStringChain("primary", "backup")

	var used []string
	err := c.Do(func(v string) error {
		used = append(used, v)
		if v == "primary" {
			return errBackend
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(used) != 2 || used[1] != "backup" {
		t.Errorf("used = %v, want [primary backup]", used)
	}
}

func TestChainExhaustedWrapsLastError(t *testing.T) {
	t.Parallel()
	c := newStringChain("primary", "backup")

	err := c.Do(func(string) error { return errBackend })
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("got %v, want ErrChainExhausted", err)
	}
	if !errors.Is(err, errBackend) {
		t.Errorf("last backend error not wrapped: %v", err)
	}
}

func TestChainSkipsLinkWithOpenBreaker(t *testing.T) {
	t.Parallel()
	c := newStringChain("primary", "backup")

	// Trip the primary's breaker (TripAfter is 2). The backup succeeds, so
	// both calls return nil overall.
	for i := 0; i < 2; i++ {
		err := c.Do(func(v string) error {
			if v == "primary" {
				return errBackend
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do %d: %v", i, err)
		}
	}

	var used []string
	err := c.Do(func(v string) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(used) != 1 || used[0] != "backup" {
		t.Errorf("used = %v, want [backup] while primary breaker is open", used)
	}
}

func TestChainEmpty(t *testing.T) {
	t.Parallel()
	c := NewChain[string](BreakerConfig{})

	if err := c.Do(func(string) error { return nil }); !errors.Is(err, ErrChainExhausted) {
		t.Errorf("empty chain: got %v, want ErrChainExhausted", err)
	}
	if _, ok := c.Primary(); ok {
		t.Error("empty chain reported a primary")
	}
}

func TestChainDoReturnsResult(t *testing.T) {
	t.Parallel()
	c := newStringChain("primary", "backup")

	got, err := ChainDo(c, func(v string) (int, error) {
		if v == "primary" {
			return 0, errBackend
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("ChainDo: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
}
