package resilience

import (
	"context"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Len returns the number of backends including the primary.
func (f *LLMFallback) Len() int { return f.group.Len() }

// Health reports the breaker state of every backend.
func (f *LLMFallback) Health() []EntryHealth { return f.group.Health() }

// Healthy reports whether any backend would accept a request.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

// Reset closes every breaker so all backends are tried again.
func (f *LLMFallback) Reset() { f.group.Reset() }

// Complete sends the request to the first healthy provider and returns its
// response. An empty response counts as success.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy provider and returns a
// streaming chunk channel. Only establishing the stream fails over; errors
// after the first chunk are reported in-band.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens asks each backend in order until one can count. Counting is
// local and never trips a breaker.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	var lastErr error
	for _, e := range f.group.entries {
		n, err := e.value.CountTokens(messages)
		if err == nil {
			return n, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// Capabilities returns the primary's capabilities with the context window
// narrowed to the smallest known window of any backend, so a history sized
// for the primary still fits a fallback. Streaming is reported only when every
// backend streams.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	if len(f.group.entries) == 0 {
		return llm.ModelCapabilities{}
	}
	caps := f.group.entries[0].value.Capabilities()
	for _, e := range f.group.entries[1:] {
		c := e.value.Capabilities()
		caps.SupportsStreaming = caps.SupportsStreaming && c.SupportsStreaming
		w := c.ContextWindow
		if w > 0 && (caps.ContextWindow == 0 || w < caps.ContextWindow) {
			caps.ContextWindow = w
		}
	}
	return caps
}
