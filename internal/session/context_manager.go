package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

// charsPerToken is the heuristic ratio used when no token counter is
// configured. English text averages roughly 4 characters per token.
const charsPerToken = 4

// TokenCounter estimates the token footprint of messages. [llm.Provider]
// satisfies it through CountTokens.
type TokenCounter interface {
	CountTokens(messages []llm.Message) (int, error)
}

// ContextManager keeps one agent's view of a conversation within a token
// budget.
//
// Messages are appended as they are said. When the estimated token count
// exceeds ThresholdRatio × MaxTokens, the oldest half is folded into a single
// rolling summary via the [Summariser]. [ContextManager.Messages] returns the
// summary (as a system message) followed by the retained messages.
//
// All methods are safe for concurrent use.
type ContextManager struct {
	maxTokens      int
	thresholdRatio float64
	summariser     Summariser
	counter        TokenCounter

	mu       sync.Mutex
	messages []llm.Message
	summary  string
	tokens   int
	// gen counts resets; compaction drops its result if it changed.
	gen uint64
}

// ContextManagerConfig configures a [ContextManager].
type ContextManagerConfig struct {
	// MaxTokens is the budget the history must stay under, normally the
	// model's context window. Zero disables summarisation.
	MaxTokens int

	// ThresholdRatio is the fraction of MaxTokens at which summarisation is
	// triggered. Defaults to 0.75 if zero or negative.
	ThresholdRatio float64

	// Summariser compresses old messages. When nil, old messages are dropped
	// instead of summarised.
	Summariser Summariser

	// Counter estimates token usage. When nil a 4-chars-per-token heuristic
	// is used.
	Counter TokenCounter
}

// NewContextManager creates a new [ContextManager] with the given configuration.
func NewContextManager(cfg ContextManagerConfig) *ContextManager {
	ratio := cfg.ThresholdRatio
	if ratio <= 0 {
		ratio = 0.75
	}
	return &ContextManager{
		maxTokens:      cfg.MaxTokens,
		thresholdRatio: ratio,
		summariser:     cfg.Summariser,
		counter:        cfg.Counter,
	}
}

// Add appends messages and compacts the history if it grew past the budget.
// The messages are kept even when compaction fails; the error is reported so
// the caller can log it.
func (cm *ContextManager) Add(ctx context.Context, msgs ...llm.Message) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, m := range msgs {
		cm.messages = append(cm.messages, m)
		cm.tokens += cm.estimate(m)
	}

	if cm.maxTokens <= 0 || len(cm.messages) < 2 {
		return nil
	}
	threshold := int(float64(cm.maxTokens) * cm.thresholdRatio)
	if cm.tokens <= threshold {
		return nil
	}
	if err := cm.compact(ctx); err != nil {
		return fmt.Errorf("session: compact history: %w", err)
	}
	return nil
}

// Messages returns the history ready to be used as [llm.CompletionRequest]
// messages.
func (cm *ContextManager) Messages() []llm.Message {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	out := make([]llm.Message, 0, len(cm.messages)+1)
	if cm.summary != "" {
		out = append(out, llm.Message{
			Role:    "system",
			Content: "[Earlier in this conversation]: " + cm.summary,
		})
	}
	return append(out, cm.messages...)
}

// Len returns the number of retained (unsummarised) messages.
func (cm *ContextManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.messages)
}

// TokenEstimate returns the current estimated token count including the summary.
func (cm *ContextManager) TokenEstimate() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.tokens
}

// Reset forgets everything.
func (cm *ContextManager) Reset() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.messages = nil
	cm.summary = ""
	cm.tokens = 0
	cm.gen++
}

// compact folds the oldest half of the messages into the rolling summary.
// Must be called with cm.mu held; the lock is released around the LLM call.
func (cm *ContextManager) compact(ctx context.Context) error {
	half := max(len(cm.messages)/2, 1)
	old := make([]llm.Message, half)
	copy(old, cm.messages[:half])
	prev := cm.summary
	gen := cm.gen

	summary := ""
	if cm.summariser != nil {
		input := old
		if prev != "" {
			input = append([]llm.Message{{Role: "system", Content: prev}}, old...)
		}
		cm.mu.Unlock()
		s, err := cm.summariser.Summarise(ctx, input)
		cm.mu.Lock()
		if cm.gen != gen {
			return nil
		}
		if err != nil {
			return err
		}
		summary = s
	}

	// Add may have run while unlocked; the summary still covers old.
	half = min(half, len(cm.messages))
	removed := 0
	for _, m := range cm.messages[:half] {
		removed += cm.estimate(m)
	}
	cm.messages = append([]llm.Message(nil), cm.messages[half:]...)
	cm.tokens -= removed
	cm.tokens -= len(prev) / charsPerToken
	if summary != "" {
		cm.summary = summary
	}
	cm.tokens = max(cm.tokens+len(cm.summary)/charsPerToken, 0)
	return nil
}

func (cm *ContextManager) estimate(m llm.Message) int {
	if cm.counter != nil {
		if n, err := cm.counter.CountTokens([]llm.Message{m}); err == nil {
			return n
		}
	}
	return estimateTokens(m)
}

// estimateTokens returns a rough token count using the
// 1-token-per-4-characters heuristic.
func estimateTokens(m llm.Message) int {
	chars := len(m.Content) + len(m.Role) + len(m.Name)
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens
}
