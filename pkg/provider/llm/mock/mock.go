// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed scripted comedian replies without a live
// LLM backend and to inspect the CompletionRequests the agents built.
//
// Example:
//
//	p := &mock.Provider{Replies: []string{"setup", "punchline"}}
//	resp, err := p.Complete(ctx, req) // "setup", then "punchline"
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// Replies is consumed in order by Complete, one entry per call. Once it is
	// exhausted Complete falls back to CompleteResponse.
	Replies []string

	// ReplyFunc, if set, takes precedence over Replies and CompleteResponse.
	ReplyFunc func(req llm.CompletionRequest) (string, error)

	// StreamChunks is emitted on the channel returned by StreamCompletion.
	// When empty, the scripted replies are streamed instead.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned from StreamCompletion.
	StreamErr error

	// CompleteResponse is returned by Complete when no scripted reply applies.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// StreamCompletion records the call and returns a channel that emits
// StreamChunks. Without StreamChunks it streams the next scripted reply word
// by word, ending with a "stop" chunk; a ReplyFunc error is sent in-band as
// an "error" chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	if len(chunks) == 0 {
		text, err := p.nextReply(req)
		if err != nil {
			chunks = []llm.Chunk{{Text: err.Error(), FinishReason: "error"}}
		} else {
			for _, w := range strings.SplitAfter(text, " ") {
				if w != "" {
					chunks = append(chunks, llm.Chunk{Text: w})
				}
			}
			chunks = append(chunks, llm.Chunk{FinishReason: "stop"})
		}
	}
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.ReplyFunc == nil && p.next >= len(p.Replies) {
		return p.CompleteResponse, nil
	}
	text, err := p.nextReply(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: text}, nil
}

// nextReply consumes the next scripted reply. Must be called with p.mu held.
func (p *Provider) nextReply(req llm.CompletionRequest) (string, error) {
	switch {
	case p.ReplyFunc != nil:
		return p.ReplyFunc(req)
	case p.next < len(p.Replies):
		text := p.Replies[p.next]
		p.next++
		return text, nil
	case p.CompleteResponse != nil:
		return p.CompleteResponse.Content, nil
	}
	return "", nil
}

// CountTokens returns TokenCount.
func (p *Provider) CountTokens(_ []llm.Message) (int, error) {
	return p.TokenCount, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls and rewinds Replies. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
	p.CompleteCalls = nil
	p.next = 0
}

var _ llm.Provider = (*Provider)(nil)
