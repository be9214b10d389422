package openai

import (
	"testing"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

func TestConvertMessage_System(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "system", Content: "You are a comedian."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

func TestConvertMessage_User(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "user", Content: "Tell me one."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

func TestConvertMessage_UserWithName(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "user", Content: "Hi", Name: "cathy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
	if got := param.OfUser.Name.Value; got != "cathy" {
		t.Errorf("name = %q, want cathy", got)
	}
}

func TestConvertMessage_Assistant(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "assistant", Content: "Knock knock.", Name: "joe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if got := param.OfAssistant.Name.Value; got != "joe" {
		t.Errorf("name = %q, want joe", got)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "narrator", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-3.5-turbo"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Your name is Cathy and you are a stand-up comedian.",
		Messages:     []llm.Message{{Role: "user", Content: "Go."}},
		Temperature:  0.7,
		MaxTokens:    128,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if string(params.Model) != "gpt-3.5-turbo" {
		t.Errorf("model = %q", params.Model)
	}
	if params.MaxCompletionTokens.Value != 128 {
		t.Errorf("max tokens = %d, want 128", params.MaxCompletionTokens.Value)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o", WithBaseURL("http://localhost:1234/v1"), WithTimeout(0)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model   string
		window  int
		maxOut  int
	}{
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"o3-mini", 200_000, 100_000},
		{"something-new", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.window {
				t.Errorf("context window = %d, want %d", caps.ContextWindow, tt.window)
			}
			if caps.MaxOutputTokens != tt.maxOut {
				t.Errorf("max output = %d, want %d", caps.MaxOutputTokens, tt.maxOut)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	n, err := p.CountTokens([]llm.Message{{Role: "user", Content: "12345678"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 6 {
		t.Errorf("tokens = %d, want 6", n)
	}
}
