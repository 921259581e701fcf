package activity

import (
	"context"

	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/pkg/audio"
)

const (
	meditationIntro   = "Settle in comfortably. You can say goodbye at any time to stop."
	meditationClosing = "I hope you feel rested."
	meditationMissing = "I'm sorry, I don't have a meditation ready right now."
)

// Meditation plays a long-form guided meditation. The playback is
// interruptible: the arbiter's shadow listener lets the user cut it short
// with a termination phrase.
type Meditation struct {
	// Source yields the meditation audio. A fresh Source is needed per run
	// because sources are single-use.
	Source func() audio.Source
}

// Compile-time interface check.
var _ Activity = (*Meditation)(nil)

func (m *Meditation) Name() string { return "meditation" }

// Run implements [Activity].
func (m *Meditation) Run(ctx context.Context, h *Handle) (Result, error) {
	if m.Source == nil {
		if _, err := h.Speak(ctx, meditationMissing); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	if sig, err := h.Speak(ctx, meditationIntro); err != nil || sig.Terminal() {
		return Result{Signal: sig}, err
	}

	sig, err := h.Session.PlayAudio(ctx, m.Source(), true)
	if err != nil {
		return Result{Signal: sig}, err
	}
	switch sig.Kind {
	case arbiter.SignalPhraseMatched, arbiter.SignalExternalCancel:
		return Result{Signal: sig}, nil
	}

	if _, err := h.Speak(ctx, meditationClosing); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
