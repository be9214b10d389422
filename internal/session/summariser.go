// Package session manages what each comedian remembers of a conversation.
//
// [ContextManager] keeps an agent's per-peer history inside the model's
// context window, folding old turns into a rolling summary produced by a
// [Summariser] ([LLMSummariser] in production).
//
// All exported types are safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when summarising
// older parts of a comedy conversation.
const summarisationPrompt = `Summarise the following exchange between two stand-up comedians.
Keep every joke's topic and punchline, running gags, and any callbacks the
comedians promised. Be brief.`

// Summariser produces a concise summary of a conversation segment.
type Summariser interface {
	Summarise(ctx context.Context, messages []llm.Message) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise flattens messages into a single transcript and asks the model
// for a summary.
func (s *LLMSummariser) Summarise(ctx context.Context, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, m := range messages {
		speaker := m.Role
		if m.Name != "" {
			speaker = m.Name
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, m.Content)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:  0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}
	return resp.Content, nil
}
