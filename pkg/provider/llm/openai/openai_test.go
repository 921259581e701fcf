package openai

import (
	"testing"

	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
)

// ── construction ──

func TestNewRejectsEmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNewRejectsEmptyModel(t *testing.T) {
	t.Parallel()
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNewAcceptsOptions(t *testing.T) {
	t.Parallel()
	_, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://gateway.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("New with options: %v", err)
	}
}

// ── message translation ──

func TestRoleMessageMapsEachRole(t *testing.T) {
	t.Parallel()

	sys, err := roleMessage(llm.Message{Role: "system", Content: "You are a gentle wellness companion."})
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	if sys.OfSystem == nil {
		t.Error("system role should map to OfSystem")
	}

	usr, err := roleMessage(llm.Message{Role: "user", Content: "I want to write in my journal."})
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if usr.OfUser == nil {
		t.Error("user role should map to OfUser")
	}

	asst, err := roleMessage(llm.Message{Role: "assistant", Content: "Of course, whenever you are ready."})
	if err != nil {
		t.Fatalf("assistant: %v", err)
	}
	if asst.OfAssistant == nil {
		t.Error("assistant role should map to OfAssistant")
	}
}

func TestRoleMessageRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := roleMessage(llm.Message{Role: "narrator", Content: "meanwhile"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// ── request params ──

func TestRequestParamsPrependsSystemPrompt(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	params, err := p.requestParams(llm.CompletionRequest{
		SystemPrompt: "Keep replies short and calm.",
		Messages:     []llm.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("requestParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
}

func TestRequestParamsOmitsUnsetTuning(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	params, err := p.requestParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("requestParams: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("zero temperature should be left unset")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("zero max tokens should be left unset")
	}
}

// ── provider metadata ──

func TestCapabilitiesFollowModelName(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o-mini"}
	caps := p.Capabilities()
	if caps.ContextWindow != 128_000 {
		t.Errorf("ContextWindow = %d, want 128000", caps.ContextWindow)
	}
	if !caps.SupportsStreaming {
		t.Error("expected SupportsStreaming")
	}
}

func TestCountTokensIsPositiveForContent(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	n, err := p.CountTokens([]llm.Message{{Role: "user", Content: "Hello world"}})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n <= 0 {
		t.Errorf("token count = %d, want > 0", n)
	}
}
