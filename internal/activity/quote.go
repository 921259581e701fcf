package activity

import (
	"context"
	"sync"
)

const (
	quotePreamble = "Here is a quote for you."
	quoteMissing  = "I'm sorry, I don't have a quote for you right now."
)

// DefaultQuotes is the built-in rotation used when the config declares none.
var DefaultQuotes = []string{
	"Peace comes from within. Do not seek it without.",
	"Gratitude turns what we have into enough.",
	"You are allowed to be both a masterpiece and a work in progress.",
	"Breathe. You are exactly where you need to be.",
}

// Quote speaks the next quote from a rotation. The rotation index survives
// across runs so repeated requests cycle through the set.
type Quote struct {
	// Quotes is the rotation. DefaultQuotes is used when empty.
	Quotes []string

	mu   sync.Mutex
	next int
}

// Compile-time interface check.
var _ Activity = (*Quote)(nil)

func (q *Quote) Name() string { return "quote" }

// Run implements [Activity].
func (q *Quote) Run(ctx context.Context, h *Handle) (Result, error) {
	text, ok := q.nextQuote()
	if !ok {
		if _, err := h.Speak(ctx, quoteMissing); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	if sig, err := h.Speak(ctx, quotePreamble); err != nil || sig.Terminal() {
		return Result{Signal: sig}, err
	}
	if sig, err := h.Speak(ctx, text); err != nil || sig.Terminal() {
		return Result{Signal: sig}, err
	}
	return Result{}, nil
}

func (q *Quote) nextQuote() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	quotes := q.Quotes
	if len(quotes) == 0 {
		quotes = DefaultQuotes
	}
	if len(quotes) == 0 {
		return "", false
	}
	text := quotes[q.next%len(quotes)]
	q.next++
	return text, true
}
