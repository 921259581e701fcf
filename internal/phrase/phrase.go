// Package phrase implements termination-phrase matching for voice capture.
//
// A Matcher decides whether a transcript fragment contains one of the
// session's termination phrases ("goodbye", "stop journal", …). Matching is
// stateless and works on interim and final transcripts alike, so a user can
// interrupt mid-sentence.
//
// Both text and phrases are normalized before comparison: lowercased,
// punctuation stripped, whitespace collapsed. Four strategies are tried in
// order, first match wins:
//
//  1. Exact equality.
//  2. Prefix — the text begins with the phrase followed by a word break
//     ("goodbye for now" matches "goodbye").
//  3. Substring containment.
//  4. Jaro-Winkler similarity above a configurable threshold, compared
//     against every token window of the phrase's length. This catches
//     transcription slips ("goodbye" heard as "goodby").
package phrase

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// The threshold has to sit above 0.92: Jaro-Winkler's common-prefix bonus
// scores unrelated short words like "good" vs "goodbye" around 0.91.
const defaultFuzzyThreshold = 0.93

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required for the
// similarity fallback to accept a phrase. Default: 0.93.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithoutFuzzy disables the Jaro-Winkler fallback entirely, leaving only the
// exact, prefix, and substring strategies.
func WithoutFuzzy() Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = 0
		m.fuzzyDisabled = true
	}
}

// Matcher matches transcript text against a set of termination phrases.
// All methods are safe for concurrent use — the Matcher is read-only after
// construction.
type Matcher struct {
	fuzzyThreshold float64
	fuzzyDisabled  bool
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{fuzzyThreshold: defaultFuzzyThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match reports whether text contains any of the given phrases. On a match
// it returns the phrase as it appears in phrases (not normalized), so the
// caller can surface which phrase ended the capture.
//
// Strategies run in order over the whole phrase set: exact for every phrase,
// then prefix, then substring, then fuzzy. Within a strategy, phrases are
// checked in declared order and the first hit wins.
func (m *Matcher) Match(text string, phrases []string) (string, bool) {
	norm := Normalize(text)
	if norm == "" || len(phrases) == 0 {
		return "", false
	}

	normalized := make([]string, len(phrases))
	for i, p := range phrases {
		normalized[i] = Normalize(p)
	}

	// Exact.
	for i, p := range normalized {
		if p != "" && norm == p {
			return phrases[i], true
		}
	}

	// Prefix with a word break, so "stop journaling" does not match a bare
	// prefix of an unrelated longer word.
	for i, p := range normalized {
		if p != "" && strings.HasPrefix(norm, p+" ") {
			return phrases[i], true
		}
	}

	// Substring.
	for i, p := range normalized {
		if p != "" && strings.Contains(norm, p) {
			return phrases[i], true
		}
	}

	if m.fuzzyDisabled {
		return "", false
	}

	// Fuzzy: best Jaro-Winkler score between the phrase and any token window
	// of the same length in the text.
	tokens := strings.Fields(norm)
	for i, p := range normalized {
		if p == "" {
			continue
		}
		if bestWindowScore(tokens, p) >= m.fuzzyThreshold {
			return phrases[i], true
		}
	}
	return "", false
}

// Normalize lowercases s, strips punctuation, and collapses runs of
// whitespace into single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
		// Punctuation and symbols are dropped.
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// bestWindowScore slides a window of len(Fields(phrase)) tokens across the
// text tokens and returns the highest Jaro-Winkler score between the phrase
// and any window.
func bestWindowScore(tokens []string, phrase string) float64 {
	width := len(strings.Fields(phrase))
	if width == 0 || len(tokens) < width {
		return 0
	}

	var best float64
	for i := 0; i+width <= len(tokens); i++ {
		window := strings.Join(tokens[i:i+width], " ")
		if s := matchr.JaroWinkler(window, phrase, false); s > best {
			best = s
		}
	}
	return best
}
