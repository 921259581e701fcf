package activity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/pkg/memory"
)

const (
	gratitudePrompt    = "What are you grateful for today?"
	gratitudeSaved     = "Thank you for sharing. I've saved your gratitude note."
	gratitudeNoContent = "I didn't catch that. Let's try again another time."
)

// Gratitude captures a single gratitude note and persists it.
type Gratitude struct{}

// Compile-time interface check.
var _ Activity = (*Gratitude)(nil)

func (g *Gratitude) Name() string { return "gratitude" }

// Run implements [Activity].
func (g *Gratitude) Run(ctx context.Context, h *Handle) (Result, error) {
	if sig, err := h.Speak(ctx, gratitudePrompt); err != nil || sig.Terminal() {
		return Result{Signal: sig}, err
	}

	utt, sig, err := h.Listen(ctx)
	if err != nil {
		return Result{}, err
	}
	if sig.Kind == arbiter.SignalExternalCancel {
		return Result{Signal: sig}, nil
	}

	content := strings.TrimSpace(utt.Text)
	if content == "" || sig.Kind == arbiter.SignalPhraseMatched {
		if _, err := h.Speak(ctx, gratitudeNoContent); err != nil {
			return Result{Signal: sig}, err
		}
		return Result{Signal: sig}, nil
	}

	if h.Journal != nil {
		err := h.Journal.AddEntry(ctx, memory.JournalEntry{
			SessionID: h.SessionID,
			Kind:      memory.KindGratitude,
			Content:   content,
		})
		if err != nil {
			return Result{Signal: sig}, fmt.Errorf("gratitude: save entry: %w", err)
		}
	} else {
		slog.Warn("no journal store configured; gratitude note discarded")
	}

	if _, err := h.Speak(ctx, gratitudeSaved); err != nil {
		return Result{Signal: sig}, err
	}
	return Result{Signal: sig}, nil
}
