package llm

import "testing"

func TestCapabilitiesForKnownFamilies(t *testing.T) {
	t.Parallel()
	cases := []struct {
		model     string
		window    int
		maxOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4o", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1-mini", 128_000, 65_536},
		{"o1", 200_000, 100_000},
		{"claude-3-5-haiku-20241022", 200_000, 8_192},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
	}
	for _, tc := range cases {
		caps := CapabilitiesFor(tc.model)
		if caps.ContextWindow != tc.window {
			t.Errorf("%s: ContextWindow = %d, want %d", tc.model, caps.ContextWindow, tc.window)
		}
		if caps.MaxOutputTokens != tc.maxOutput {
			t.Errorf("%s: MaxOutputTokens = %d, want %d", tc.model, caps.MaxOutputTokens, tc.maxOutput)
		}
		if !caps.SupportsStreaming {
			t.Errorf("%s: expected SupportsStreaming", tc.model)
		}
	}
}

func TestCapabilitiesForIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	if got := CapabilitiesFor("GPT-4o"); got.MaxOutputTokens != 16_384 {
		t.Errorf("MaxOutputTokens = %d, want 16384", got.MaxOutputTokens)
	}
}

func TestCapabilitiesForUnknownModelGetsDefaults(t *testing.T) {
	t.Parallel()
	caps := CapabilitiesFor("some-local-finetune")
	if caps.ContextWindow <= 0 || caps.MaxOutputTokens <= 0 {
		t.Errorf("expected positive defaults, got %+v", caps)
	}
	if !caps.SupportsStreaming {
		t.Error("expected SupportsStreaming by default")
	}
}

func TestEstimateTokensScalesWithContent(t *testing.T) {
	t.Parallel()
	short := EstimateTokens([]Message{{Role: "user", Content: "hi"}})
	long := EstimateTokens([]Message{{Role: "user", Content: "tell me about your day in as much detail as you like"}})
	if short <= 0 {
		t.Fatalf("short estimate = %d, want > 0", short)
	}
	if long <= short {
		t.Errorf("long estimate %d should exceed short estimate %d", long, short)
	}
}

func TestEstimateTokensChargesPerMessageOverhead(t *testing.T) {
	t.Parallel()
	one := EstimateTokens([]Message{{Role: "user", Content: ""}})
	two := EstimateTokens([]Message{{Role: "user", Content: ""}, {Role: "assistant", Content: ""}})
	if two != 2*one {
		t.Errorf("two empty messages = %d, want %d", two, 2*one)
	}
}
