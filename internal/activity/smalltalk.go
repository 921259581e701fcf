package activity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wellbot-ai/wellbot/internal/arbiter"
	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
)

// defaultSystemPrompt frames the companion persona for smalltalk replies.
const defaultSystemPrompt = `You are a gentle wellness companion. Keep replies short,
warm, and spoken-language friendly. Never use lists or markdown.`

// farewell is spoken when the user ends the conversation with a phrase.
const farewell = "Take care. Goodbye."

// Smalltalk is the open conversation loop: capture an utterance, generate a
// reply, speak it, repeat until a terminal signal.
type Smalltalk struct {
	// SystemPrompt overrides the built-in persona when non-empty.
	SystemPrompt string

	// MaxTurns caps the number of user turns. Zero means no cap; the
	// termination phrases and the silence watchdog end the loop.
	MaxTurns int

	// Opening is spoken before the first capture, when non-empty.
	Opening string
}

// Compile-time interface check.
var _ Activity = (*Smalltalk)(nil)

func (s *Smalltalk) Name() string { return "smalltalk" }

// Run implements [Activity].
func (s *Smalltalk) Run(ctx context.Context, h *Handle) (Result, error) {
	prompt := s.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	if s.Opening != "" {
		if sig, err := h.Speak(ctx, s.Opening); err != nil || sig.Terminal() {
			return Result{Signal: sig}, err
		}
	}

	var history []llm.Message
	for turn := 0; s.MaxTurns == 0 || turn < s.MaxTurns; turn++ {
		utt, sig, err := h.Listen(ctx)
		if err != nil {
			return Result{}, err
		}

		switch sig.Kind {
		case arbiter.SignalPhraseMatched:
			// Say goodbye; a failure here must not mask the termination.
			if _, err := h.Speak(ctx, farewell); err != nil {
				slog.Warn("farewell playback failed", "err", err)
			}
			return Result{Signal: sig}, nil
		case arbiter.SignalSilenceTimeout, arbiter.SignalExternalCancel:
			return Result{Signal: sig}, nil
		}

		history = append(history, llm.Message{Role: "user", Content: utt.Text})
		resp, err := h.LLM.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: prompt,
			Messages:     history,
		})
		if err != nil {
			return Result{Signal: arbiter.ExternalCancel()},
				fmt.Errorf("smalltalk: completion: %w", err)
		}
		history = append(history, llm.Message{Role: "assistant", Content: resp.Content})

		if sig, err := h.Speak(ctx, resp.Content); err != nil {
			return Result{}, err
		} else if sig.Terminal() {
			return Result{Signal: sig}, nil
		}
	}

	return Result{}, nil
}
