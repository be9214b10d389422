package conversation_test

import (
	"context"
	"errors"
	"testing"

	agentmock "github.com/MrWong99/comedyhour/internal/agent/mock"
	"github.com/MrWong99/comedyhour/internal/conversation"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

var pair = transcript.Pair{A: "joe", B: "cathy"}

func TestRunExchange_DelegatesToEngine(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{PairResult: pair}
	d := conversation.NewDriver(eng)

	rec, err := d.RunExchange(context.Background(), "joe", "cathy", "hello", 2)
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	calls := eng.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := agentmock.InitiateChatCall{Initiator: "joe", Responder: "cathy", Opening: "hello", MaxTurns: 2}
	if calls[0] != want {
		t.Errorf("call = %+v, want %+v", calls[0], want)
	}
	if rec.Initiator != "joe" || len(rec.Entries) != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestRunExchange_DeclaredInitiatorWins(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{
		PairResult: pair,
		Records: []transcript.ExchangeRecord{{
			Initiator: "joe",
			Entries:   []transcript.Entry{{Role: transcript.RoleInitiator, Text: "x"}},
		}},
	}
	rec, err := conversation.NewDriver(eng).RunExchange(context.Background(), "cathy", "joe", "x", 1)
	if err != nil {
		t.Fatalf("RunExchange: %v", err)
	}
	if rec.Initiator != "cathy" || rec.Responder != "joe" {
		t.Errorf("record participants = %s/%s, want cathy/joe", rec.Initiator, rec.Responder)
	}
}

func TestRunExchange_RejectsStrangers(t *testing.T) {
	t.Parallel()
	eng := &agentmock.Engine{PairResult: pair}
	d := conversation.NewDriver(eng)

	tests := []struct {
		name                 string
		initiator, responder transcript.Identity
	}{
		{"unknown initiator", "bob", "cathy"},
		{"unknown responder", "joe", "bob"},
		{"self", "joe", "joe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.RunExchange(context.Background(), tt.initiator, tt.responder, "hi", 1); err == nil {
				t.Error("expected error")
			}
		})
	}
	if n := len(eng.Calls()); n != 0 {
		t.Errorf("engine called %d times", n)
	}
}

func TestRunExchange_WrapsEngineError(t *testing.T) {
	t.Parallel()
	backendErr := errors.New("connection refused")
	eng := &agentmock.Engine{PairResult: pair, Errs: []error{backendErr}}

	rec, err := conversation.NewDriver(eng).RunExchange(context.Background(), "joe", "cathy", "hi", 2)
	if !errors.Is(err, backendErr) {
		t.Fatalf("err = %v, want wrapping %v", err, backendErr)
	}
	if len(rec.Entries) != 0 {
		t.Error("record returned alongside error")
	}
}
