package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

type fakeSummariser struct {
	result string
	err    error
	calls  int
	inputs [][]llm.Message
}

func (f *fakeSummariser) Summarise(_ context.Context, msgs []llm.Message) (string, error) {
	f.calls++
	f.inputs = append(f.inputs, msgs)
	return f.result, f.err
}

type fixedCounter int

func (c fixedCounter) CountTokens(msgs []llm.Message) (int, error) {
	return int(c) * len(msgs), nil
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		msg  llm.Message
		want int
	}{
		{"empty", llm.Message{}, 0},
		{"tiny", llm.Message{Role: "user", Content: "Hi"}, 1},
		{"long", llm.Message{Role: "assistant", Content: strings.Repeat("a", 391)}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateTokens(tt.msg); got != tt.want {
				t.Errorf("estimateTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContextManager_BelowThresholdKeepsEverything(t *testing.T) {
	s := &fakeSummariser{result: "summary"}
	cm := NewContextManager(ContextManagerConfig{MaxTokens: 1000, Summariser: s, Counter: fixedCounter(10)})

	if err := cm.Add(context.Background(),
		llm.Message{Role: "user", Content: "a"},
		llm.Message{Role: "assistant", Content: "b"},
	); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s.calls != 0 {
		t.Errorf("summariser called %d times, want 0", s.calls)
	}
	if cm.Len() != 2 || cm.TokenEstimate() != 20 {
		t.Errorf("len=%d tokens=%d", cm.Len(), cm.TokenEstimate())
	}
}

func TestContextManager_CompactsOldestHalf(t *testing.T) {
	s := &fakeSummariser{result: "they joked about cats"}
	cm := NewContextManager(ContextManagerConfig{
		MaxTokens:      100,
		ThresholdRatio: 0.5,
		Summariser:     s,
		Counter:        fixedCounter(10),
	})

	for i := range 6 {
		if err := cm.Add(context.Background(), llm.Message{Role: "user", Content: string(rune('a' + i))}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if s.calls != 1 {
		t.Fatalf("summariser called %d times, want 1", s.calls)
	}
	if len(s.inputs[0]) != 3 {
		t.Errorf("summarised %d messages, want 3", len(s.inputs[0]))
	}
	msgs := cm.Messages()
	if msgs[0].Role != "system" || !strings.Contains(msgs[0].Content, "they joked about cats") {
		t.Errorf("first message = %+v, want summary", msgs[0])
	}
	if msgs[1].Content != "d" {
		t.Errorf("oldest retained = %q, want d", msgs[1].Content)
	}
	if cm.Len() != 3 {
		t.Errorf("Len = %d, want 3", cm.Len())
	}
}

func TestContextManager_RollingSummaryIncludesPrevious(t *testing.T) {
	s := &fakeSummariser{result: "first summary"}
	cm := NewContextManager(ContextManagerConfig{MaxTokens: 30, ThresholdRatio: 1, Summariser: s, Counter: fixedCounter(10)})
	ctx := context.Background()

	for range 4 {
		_ = cm.Add(ctx, llm.Message{Role: "user", Content: "x"})
	}
	s.result = "second summary"
	for range 4 {
		_ = cm.Add(ctx, llm.Message{Role: "user", Content: "y"})
	}

	if s.calls < 2 {
		t.Fatalf("summariser called %d times, want >= 2", s.calls)
	}
	last := s.inputs[len(s.inputs)-1]
	if last[0].Role != "system" {
		t.Errorf("previous summary not passed to summariser: %+v", last[0])
	}
	if got := cm.Messages()[0].Content; !strings.Contains(got, "second summary") {
		t.Errorf("summary = %q", got)
	}
}

func TestContextManager_SummariserErrorKeepsMessages(t *testing.T) {
	s := &fakeSummariser{err: errors.New("backend down")}
	cm := NewContextManager(ContextManagerConfig{MaxTokens: 10, Summariser: s, Counter: fixedCounter(10)})

	err := cm.Add(context.Background(),
		llm.Message{Role: "user", Content: "a"},
		llm.Message{Role: "user", Content: "b"},
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if cm.Len() != 2 {
		t.Errorf("Len = %d, want 2", cm.Len())
	}
}

func TestContextManager_NoSummariserDropsOldest(t *testing.T) {
	cm := NewContextManager(ContextManagerConfig{MaxTokens: 20, ThresholdRatio: 1, Counter: fixedCounter(10)})
	for _, c := range []string{"a", "b", "c"} {
		if err := cm.Add(context.Background(), llm.Message{Role: "user", Content: c}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	msgs := cm.Messages()
	if len(msgs) != 2 || msgs[0].Content != "b" {
		t.Errorf("messages = %+v, want [b c]", msgs)
	}
}

func TestContextManager_ZeroBudgetNeverCompacts(t *testing.T) {
	s := &fakeSummariser{result: "x"}
	cm := NewContextManager(ContextManagerConfig{Summariser: s})
	for range 20 {
		_ = cm.Add(context.Background(), llm.Message{Role: "user", Content: strings.Repeat("z", 100)})
	}
	if s.calls != 0 {
		t.Errorf("summariser called %d times", s.calls)
	}
}

func TestContextManager_Reset(t *testing.T) {
	cm := NewContextManager(ContextManagerConfig{MaxTokens: 100})
	_ = cm.Add(context.Background(), llm.Message{Role: "user", Content: "hello"})
	cm.Reset()
	if cm.Len() != 0 || cm.TokenEstimate() != 0 || len(cm.Messages()) != 0 {
		t.Error("Reset did not clear state")
	}
}

// blockingSummariser signals when it is entered and waits for release.
type blockingSummariser struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSummariser) Summarise(ctx context.Context, _ []llm.Message) (string, error) {
	close(b.entered)
	select {
	case <-b.release:
		return "stale summary", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestContextManager_ResetDuringCompaction(t *testing.T) {
	s := &blockingSummariser{entered: make(chan struct{}), release: make(chan struct{})}
	cm := NewContextManager(ContextManagerConfig{MaxTokens: 10, Summariser: s, Counter: fixedCounter(10)})

	done := make(chan error, 1)
	go func() {
		done <- cm.Add(context.Background(),
			llm.Message{Role: "user", Content: "knock knock"},
			llm.Message{Role: "assistant", Content: "who's there"},
		)
	}()
	<-s.entered
	cm.Reset()
	close(s.release)
	if err := <-done; err != nil {
		t.Fatalf("Add: %v", err)
	}

	if got := cm.TokenEstimate(); got != 0 {
		t.Errorf("TokenEstimate = %d, want 0", got)
	}
	if cm.Len() != 0 || len(cm.Messages()) != 0 {
		t.Errorf("messages survived Reset: %+v", cm.Messages())
	}
}
