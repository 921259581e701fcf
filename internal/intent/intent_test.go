package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wellbot-ai/wellbot/internal/intent"
	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
	llmmock "github.com/wellbot-ai/wellbot/pkg/provider/llm/mock"
)

func TestClassify_KeywordHits(t *testing.T) {
	t.Parallel()
	c := intent.New()

	cases := []struct {
		text string
		want intent.Intent
	}{
		{"I want to write in my journal", intent.Journal},
		{"Journal.", intent.Journal},
		{"can we do a breathing exercise", intent.Meditation},
		{"I am grateful for my family", intent.Gratitude},
		{"inspire me please", intent.Quote},
		{"go to sleep", intent.Shutdown},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			res, err := c.Classify(context.Background(), tc.text)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if res.Intent != tc.want {
				t.Errorf("intent = %q, want %q", res.Intent, tc.want)
			}
			if res.Source != intent.SourceKeyword {
				t.Errorf("source = %q, want keyword", res.Source)
			}
			if res.Confidence != 1.0 {
				t.Errorf("confidence = %v, want 1.0", res.Confidence)
			}
			if res.Keyword == "" {
				t.Error("matched keyword should be recorded")
			}
		})
	}
}

func TestClassify_EmptyTextDefaultsToSmalltalk(t *testing.T) {
	t.Parallel()
	c := intent.New()
	res, err := c.Classify(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Smalltalk || res.Source != intent.SourceDefault {
		t.Errorf("expected smalltalk default, got %+v", res)
	}
}

func TestClassify_NoKeywordNoLLMDefaults(t *testing.T) {
	t.Parallel()
	c := intent.New()
	res, err := c.Classify(context.Background(), "how was your day")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Smalltalk || res.Source != intent.SourceDefault {
		t.Errorf("expected smalltalk default, got %+v", res)
	}
}

func TestClassify_LLMFallback(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: " Meditation\n"},
	}
	c := intent.New(intent.WithLLM(p))

	res, err := c.Classify(context.Background(), "my thoughts keep racing, can you help")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Meditation {
		t.Errorf("intent = %q, want meditation", res.Intent)
	}
	if res.Source != intent.SourceLLM {
		t.Errorf("source = %q, want llm", res.Source)
	}
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt == "" {
		t.Error("classification request should carry the system prompt")
	}
	if req.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", req.Temperature)
	}
}

func TestClassify_KeywordBeatsLLM(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "smalltalk"},
	}
	c := intent.New(intent.WithLLM(p))

	res, err := c.Classify(context.Background(), "start my journal")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Journal || res.Source != intent.SourceKeyword {
		t.Errorf("expected keyword journal, got %+v", res)
	}
	if len(p.CompleteCalls) != 0 {
		t.Errorf("LLM must not be called on a keyword hit, got %d calls", len(p.CompleteCalls))
	}
}

func TestClassify_LLMUnknownLabelDefaults(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "pizza"},
	}
	c := intent.New(intent.WithLLM(p))

	res, err := c.Classify(context.Background(), "tell me something")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Smalltalk || res.Source != intent.SourceDefault {
		t.Errorf("expected smalltalk default for unknown label, got %+v", res)
	}
}

func TestClassify_LLMErrorReturnsFallback(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteErr: errors.New("model down")}
	c := intent.New(intent.WithLLM(p))

	res, err := c.Classify(context.Background(), "tell me something")
	if err == nil {
		t.Fatal("expected error from LLM failure")
	}
	if res.Intent != intent.Smalltalk {
		t.Errorf("fallback result should still be smalltalk, got %q", res.Intent)
	}
}

func TestClassify_CustomKeywords(t *testing.T) {
	t.Parallel()
	c := intent.New(intent.WithKeywords([]intent.Keywords{
		{Intent: intent.Quote, Phrases: []string{"wisdom"}},
	}))
	res, err := c.Classify(context.Background(), "share some wisdom")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Quote {
		t.Errorf("intent = %q, want quote", res.Intent)
	}
	// The default table is replaced, so its entries no longer match.
	res, err = c.Classify(context.Background(), "journal")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Intent != intent.Smalltalk {
		t.Errorf("intent = %q, want smalltalk", res.Intent)
	}
}
