package agent_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/comedyhour/internal/observe"
)

func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func findSpan(t *testing.T, exp *tracetest.InMemoryExporter, name string) (tracetest.SpanStub, map[attribute.Key]attribute.Value) {
	t.Helper()
	for _, s := range exp.GetSpans() {
		if s.Name != name {
			continue
		}
		attrs := make(map[attribute.Key]attribute.Value, len(s.Attributes))
		for _, kv := range s.Attributes {
			attrs[kv.Key] = kv.Value
		}
		return s, attrs
	}
	t.Fatalf("no %q span recorded", name)
	return tracetest.SpanStub{}, nil
}

func TestInitiateChat_SpanAttributes(t *testing.T) {
	exp := recordSpans(t)
	joe, _, cathy, _ := newPair(t, nil, []string{"c1"})

	if _, err := joe.InitiateChat(context.Background(), cathy, "hi", 3); err != nil {
		t.Fatalf("InitiateChat: %v", err)
	}

	span, attrs := findSpan(t, exp, "agent.initiate_chat")
	if span.Status.Code == codes.Error {
		t.Errorf("status = %v, want success", span.Status)
	}
	checks := []struct {
		key  attribute.Key
		want attribute.Value
	}{
		{observe.AttrInitiator, attribute.StringValue("joe")},
		{observe.AttrResponder, attribute.StringValue("cathy")},
		{observe.AttrMaxTurns, attribute.IntValue(3)},
		{observe.AttrTurns, attribute.IntValue(1)},
		{observe.AttrStopReason, attribute.StringValue("empty reply")},
	}
	for _, c := range checks {
		if got := attrs[c.key]; got != c.want {
			t.Errorf("%s = %v, want %v", c.key, got.Emit(), c.want.Emit())
		}
	}

	reply, replyAttrs := findSpan(t, exp, "agent.generate_reply")
	if reply.Parent.SpanID() != span.SpanContext.SpanID() {
		t.Error("generate_reply is not a child of initiate_chat")
	}
	if replyAttrs[observe.AttrStreamed].AsBool() {
		t.Error("blocking backend reported as streamed")
	}
}

func TestInitiateChat_SpanStatusOnFailure(t *testing.T) {
	exp := recordSpans(t)
	joe, _, cathy, cp := newPair(t, nil, nil)
	cp.CompleteErr = errors.New("503 service unavailable")

	if _, err := joe.InitiateChat(context.Background(), cathy, "hi", 2); err == nil {
		t.Fatal("expected error")
	}

	for _, name := range []string{"agent.initiate_chat", "agent.generate_reply"} {
		span, _ := findSpan(t, exp, name)
		if span.Status.Code != codes.Error {
			t.Errorf("%s status = %v, want Error", name, span.Status.Code)
		}
		if len(span.Events) == 0 {
			t.Errorf("%s recorded no error event", name)
		}
	}
}
