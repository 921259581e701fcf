package resilience

import (
	"context"

	"github.com/wellbot-ai/wellbot/pkg/provider/llm"
)

// LLMChain is an [llm.Provider] that fails over across multiple backends.
// Each backend sits behind its own breaker, so a model endpoint that keeps
// erroring is skipped until its cool-down passes while the conversation
// continues on a fallback.
type LLMChain struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMChain)(nil)

// NewLLMChain creates an empty chain; register backends with [LLMChain.Add],
// preferred first.
func NewLLMChain(cfg BreakerConfig) *LLMChain {
	return &LLMChain{chain: NewChain[llm.Provider](cfg)}
}

// Add registers a backend at the end of the chain.
func (c *LLMChain) Add(name string, p llm.Provider) {
	c.chain.Add(name, p)
}

// Len reports how many backends are registered.
func (c *LLMChain) Len() int { return c.chain.Len() }

// Complete asks the first healthy backend for a completion.
func (c *LLMChain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ChainDo(c.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a completion stream on the first healthy backend.
// Failover covers stream setup only; once chunks flow, mid-stream errors
// belong to the caller.
func (c *LLMChain) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ChainDo(c.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens delegates to the first healthy backend.
func (c *LLMChain) CountTokens(messages []llm.Message) (int, error) {
	return ChainDo(c.chain, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the preferred backend's capabilities. Static metadata
// does not fail over: activities size their prompts for the model they were
// configured with.
func (c *LLMChain) Capabilities() llm.ModelCapabilities {
	if p, ok := c.chain.Primary(); ok {
		return p.Capabilities()
	}
	return llm.ModelCapabilities{}
}
