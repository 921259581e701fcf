// Package intent classifies a transcribed utterance into the activity the
// user asked for.
//
// Classification runs in two stages. A keyword table is checked first with
// the same normalization rules the termination-phrase matcher uses; any hit
// is authoritative. When no keyword matches and an LLM is configured, the
// model picks a label from the known intent set. Anything unresolvable falls
// back to smalltalk so the session always has somewhere to go.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wellbot-ai/wellbot/internal/phrase"
	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
)

// Intent names the activity an utterance requests.
type Intent string

const (
	Smalltalk  Intent = "smalltalk"
	Journal    Intent = "journal"
	Meditation Intent = "meditation"
	Gratitude  Intent = "gratitude"
	Quote      Intent = "quote"

	// Shutdown ends the session entirely rather than starting an activity.
	Shutdown Intent = "shutdown"
)

// Known reports whether i is one of the defined intents.
func (i Intent) Known() bool {
	switch i {
	case Smalltalk, Journal, Meditation, Gratitude, Quote, Shutdown:
		return true
	}
	return false
}

// Source records which stage produced a classification.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceLLM     Source = "llm"
	SourceDefault Source = "default"
)

// Result is a classification outcome.
type Result struct {
	Intent     Intent
	Confidence float64
	Source     Source

	// Keyword is the table entry that matched, set only for SourceKeyword.
	Keyword string
}

// Keywords maps an intent to the phrases that trigger it. Entries are checked
// in slice order so earlier intents win ties.
type Keywords struct {
	Intent  Intent
	Phrases []string
}

// DefaultKeywords is the built-in keyword table.
var DefaultKeywords = []Keywords{
	{Journal, []string{"journal", "write in my journal", "dear diary", "journaling"}},
	{Meditation, []string{"meditation", "meditate", "breathing exercise", "help me relax"}},
	{Gratitude, []string{"gratitude", "i am grateful", "i am thankful", "thankful for"}},
	{Quote, []string{"quote", "inspire me", "something uplifting"}},
	{Shutdown, []string{"go to sleep", "shut down", "power off"}},
}

// llmConfidence is reported for classifications produced by the model. The
// keyword table reports 1.0; the default fallback reports 0.
const llmConfidence = 0.9

const classifyPrompt = `You are an intent classifier for a wellness voice assistant.
Reply with exactly one word from this list and nothing else:
smalltalk, journal, meditation, gratitude, quote, shutdown.`

// Option configures a [Classifier].
type Option func(*Classifier)

// WithLLM enables the model fallback stage.
func WithLLM(p llm.Provider) Option {
	return func(c *Classifier) { c.llm = p }
}

// WithKeywords replaces the built-in keyword table.
func WithKeywords(table []Keywords) Option {
	return func(c *Classifier) { c.keywords = table }
}

// Classifier routes utterances to intents. Safe for concurrent use; all state
// is set at construction.
type Classifier struct {
	keywords []Keywords
	matcher  *phrase.Matcher
	llm      llm.Provider
}

// New creates a Classifier with the default keyword table and no LLM
// fallback.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		keywords: DefaultKeywords,
		// Fuzzy matching is disabled here: a near-miss on an intent keyword
		// should fall through to the LLM, not guess an activity.
		matcher: phrase.New(phrase.WithoutFuzzy()),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the intent for text. It never fails into an error for an
// unclassifiable utterance; the smalltalk fallback absorbs those. The error
// return covers LLM transport failures only, and even then the fallback
// result is returned alongside it.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{Intent: Smalltalk, Source: SourceDefault}, nil
	}

	for _, kw := range c.keywords {
		if matched, ok := c.matcher.Match(text, kw.Phrases); ok {
			return Result{Intent: kw.Intent, Confidence: 1.0, Source: SourceKeyword, Keyword: matched}, nil
		}
	}

	if c.llm == nil {
		return Result{Intent: Smalltalk, Source: SourceDefault}, nil
	}
	return c.classifyLLM(ctx, text)
}

func (c *Classifier) classifyLLM(ctx context.Context, text string) (Result, error) {
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifyPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
		Temperature:  0,
		MaxTokens:    8,
	})
	if err != nil {
		return Result{Intent: Smalltalk, Source: SourceDefault},
			fmt.Errorf("intent: llm classify: %w", err)
	}

	label := Intent(strings.ToLower(strings.TrimSpace(resp.Content)))
	if !label.Known() {
		slog.Debug("llm returned unknown intent label", "label", string(label))
		return Result{Intent: Smalltalk, Source: SourceDefault}, nil
	}
	return Result{Intent: label, Confidence: llmConfidence, Source: SourceLLM}, nil
}
