package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

func TestConvertMessage_PreservesFields(t *testing.T) {
	got := convertMessage(llm.Message{Role: "user", Content: "Hi", Name: "cathy"})
	if got.Role != "user" {
		t.Errorf("role = %q, want user", got.Role)
	}
	if got.ContentString() != "Hi" {
		t.Errorf("content = %q, want Hi", got.ContentString())
	}
	if got.Name != "cathy" {
		t.Errorf("name = %q, want cathy", got.Name)
	}
}

func TestBuildParams_SystemPromptAndLimits(t *testing.T) {
	p := &Provider{model: "gpt-3.5-turbo"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Your name is Joe and you are a stand-up comedian.",
		Messages:     []llm.Message{{Role: "user", Content: "Go."}},
		Temperature:  0.9,
		MaxTokens:    200,
	})
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.9 {
		t.Errorf("temperature = %v, want 0.9", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 200 {
		t.Errorf("max tokens = %v, want 200", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesLeaveDefaults(t *testing.T) {
	p := &Provider{model: "gpt-3.5-turbo"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	if params.Temperature != nil {
		t.Error("temperature should be nil")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil")
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(params.Messages))
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model  string
		window int
		maxOut int
	}{
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"GPT-4o", 128_000, 16_384},
		{"claude-3-5-haiku-latest", 200_000, 8_192},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"llama3", 128_000, 4_096},
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
			if !caps.SupportsStreaming {
				t.Error("expected streaming support")
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_OllamaNeedsNoKey(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "llama3" {
		t.Errorf("model = %q", p.model)
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "x"}
	n, err := p.CountTokens([]llm.Message{{Content: "abcd"}, {Content: ""}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (4+3)/4 + 4 + 0 + 4
	if n != 9 {
		t.Errorf("tokens = %d, want 9", n)
	}
}
