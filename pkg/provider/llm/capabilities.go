package llm

import "strings"

// modelFamily pairs a model-name matcher with the limits of that family.
type modelFamily struct {
	match     func(string) bool
	window    int
	maxOutput int
}

func prefix(p string) func(string) bool {
	return func(name string) bool { return strings.HasPrefix(name, p) }
}

func contains(s string) func(string) bool {
	return func(name string) bool { return strings.Contains(name, s) }
}

// families is ordered most-specific first within each vendor; the first match
// wins. Substring matching covers vendors that embed dates or suffixes in
// model names (e.g. claude-3-5-haiku-20241022).
var families = []modelFamily{
	{prefix("gpt-4o-mini"), 128_000, 16_384},
	{prefix("gpt-4o"), 128_000, 16_384},
	{prefix("gpt-4-turbo"), 128_000, 4_096},
	{prefix("gpt-4"), 8_192, 4_096},
	{prefix("gpt-3.5-turbo"), 16_385, 4_096},
	{prefix("o1-mini"), 128_000, 65_536},
	{prefix("o1"), 200_000, 100_000},
	{prefix("o3-mini"), 200_000, 100_000},
	{prefix("o3"), 200_000, 100_000},
	{contains("claude-3-opus"), 200_000, 4_096},
	{prefix("claude"), 200_000, 8_192},
	{contains("gemini-1.5-pro"), 2_097_152, 8_192},
	{contains("gemini-2.0-flash"), 1_048_576, 8_192},
	{contains("gemini-1.5-flash"), 1_048_576, 8_192},
	{prefix("gemini"), 128_000, 8_192},
}

// CapabilitiesFor returns the known limits for a model name. Unrecognised
// models get conservative modern defaults rather than an error, since new
// model names appear faster than this table is updated.
func CapabilitiesFor(model string) ModelCapabilities {
	caps := ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}
	lower := strings.ToLower(model)
	for _, f := range families {
		if f.match(lower) {
			caps.ContextWindow = f.window
			caps.MaxOutputTokens = f.maxOutput
			break
		}
	}
	return caps
}

const (
	// charsPerToken is the rough GPT-series average for English text.
	charsPerToken = 4

	// messageOverhead covers the role and formatting tokens each chat
	// message costs beyond its content.
	messageOverhead = 4
)

// EstimateTokens approximates the token cost of a message history. It is a
// heuristic for context budgeting, not a tokenizer; counts are within ~20%
// for typical conversational English.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + charsPerToken - 1) / charsPerToken
		total += messageOverhead
	}
	return total
}
