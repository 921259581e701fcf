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
	journalIntro     = "I'm listening. Say stop journal whenever you are done."
	journalSaved     = "Your journal entry is saved."
	journalNoContent = "We can write another time. Nothing was saved."
)

// Journal is the guided journaling activity. Every captured utterance is
// appended to the entry; the termination phrase or the silence watchdog
// closes it and the accumulated text is persisted.
type Journal struct{}

// Compile-time interface check.
var _ Activity = (*Journal)(nil)

func (j *Journal) Name() string { return "journal" }

// Run implements [Activity].
func (j *Journal) Run(ctx context.Context, h *Handle) (Result, error) {
	if sig, err := h.Speak(ctx, journalIntro); err != nil || sig.Terminal() {
		return Result{Signal: sig}, err
	}

	var parts []string
	for {
		utt, sig, err := h.Listen(ctx)
		if err != nil {
			return Result{}, err
		}
		if utt.Text != "" && sig.Kind != arbiter.SignalPhraseMatched {
			parts = append(parts, utt.Text)
		}

		if !sig.Terminal() {
			continue
		}
		if sig.Kind == arbiter.SignalExternalCancel {
			// Save what we have, skip the confirmation: the session is gone.
			j.save(ctx, h, parts)
			return Result{Signal: sig}, nil
		}

		return j.finish(ctx, h, sig, parts)
	}
}

func (j *Journal) finish(ctx context.Context, h *Handle, sig arbiter.Signal, parts []string) (Result, error) {
	if len(parts) == 0 {
		if _, err := h.Speak(ctx, journalNoContent); err != nil {
			return Result{Signal: sig}, err
		}
		return Result{Signal: sig}, nil
	}

	if err := j.save(ctx, h, parts); err != nil {
		return Result{Signal: sig}, err
	}
	if _, err := h.Speak(ctx, journalSaved); err != nil {
		return Result{Signal: sig}, err
	}
	return Result{Signal: sig}, nil
}

func (j *Journal) save(ctx context.Context, h *Handle, parts []string) error {
	content := strings.TrimSpace(strings.Join(parts, " "))
	if content == "" {
		return nil
	}
	if h.Journal == nil {
		slog.Warn("no journal store configured; entry discarded", "words", len(strings.Fields(content)))
		return nil
	}
	err := h.Journal.AddEntry(ctx, memory.JournalEntry{
		SessionID: h.SessionID,
		Kind:      memory.KindJournal,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("journal: save entry: %w", err)
	}
	slog.Info("journal entry saved", "session", h.SessionID, "words", len(strings.Fields(content)))
	return nil
}
