package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/comedyhour/internal/agent"
	"github.com/MrWong99/comedyhour/internal/transcript"
	"github.com/MrWong99/comedyhour/pkg/provider/llm"
	llmmock "github.com/MrWong99/comedyhour/pkg/provider/llm/mock"
)

type spoken struct {
	speaker transcript.Identity
	text    string
	done    bool
}

// lineLog collects LineFunc callbacks.
type lineLog struct {
	mu    sync.Mutex
	calls []spoken
}

func (l *lineLog) record(speaker transcript.Identity, text string, done bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, spoken{speaker, text, done})
}

// lines joins the fragments of each finished line.
func (l *lineLog) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	var b strings.Builder
	for _, c := range l.calls {
		b.WriteString(c.text)
		if c.done {
			out = append(out, string(c.speaker)+": "+b.String())
			b.Reset()
		}
	}
	return out
}

func streamingPair(t *testing.T, log *lineLog, joeReplies, cathyReplies []string) (*agent.Agent, *llmmock.Provider, *agent.Agent, *llmmock.Provider) {
	t.Helper()
	caps := llm.ModelCapabilities{SupportsStreaming: true}
	jp := &llmmock.Provider{Replies: joeReplies, ModelCapabilities: caps}
	cp := &llmmock.Provider{Replies: cathyReplies, ModelCapabilities: caps}
	joe, err := agent.New("joe", "You are Joe.", jp, agent.WithLineFunc(log.record))
	if err != nil {
		t.Fatalf("New(joe): %v", err)
	}
	cathy, err := agent.New("cathy", "You are Cathy.", cp, agent.WithLineFunc(log.record))
	if err != nil {
		t.Fatalf("New(cathy): %v", err)
	}
	return joe, jp, cathy, cp
}

func TestInitiateChat_StreamsReplies(t *testing.T) {
	t.Parallel()
	log := &lineLog{}
	joe, jp, cathy, cp := streamingPair(t, log,
		[]string{"My diet is a joke too."},
		[]string{"Why did the chicken join a band?", "It had drumsticks."},
	)

	rec, err := joe.InitiateChat(context.Background(), cathy, "Let's keep the jokes rolling.", 2)
	if err != nil {
		t.Fatalf("InitiateChat: %v", err)
	}

	want := []string{
		"joe: Let's keep the jokes rolling.",
		"cathy: Why did the chicken join a band?",
		"joe: My diet is a joke too.",
		"cathy: It had drumsticks.",
	}
	got := log.lines()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("spoken lines:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if len(rec.Entries) != 5 || rec.Entries[3].Text != "It had drumsticks." {
		t.Errorf("record entries = %+v", rec.Entries)
	}
	if len(jp.CompleteCalls) != 0 || len(cp.CompleteCalls) != 0 {
		t.Error("streaming backend was asked for a blocking completion")
	}
	if len(jp.StreamCalls) != 1 || len(cp.StreamCalls) != 2 {
		t.Errorf("stream calls joe=%d cathy=%d, want 1/2", len(jp.StreamCalls), len(cp.StreamCalls))
	}

	// Each generated line arrives in more than one fragment.
	var fragments int
	for _, c := range log.calls {
		if c.speaker == "cathy" && !c.done {
			fragments++
		}
	}
	if fragments < 4 {
		t.Errorf("cathy streamed %d fragments, want several", fragments)
	}
}

func TestInitiateChat_BlockingBackendEmitsWholeLines(t *testing.T) {
	t.Parallel()
	log := &lineLog{}
	jp := &llmmock.Provider{}
	cp := &llmmock.Provider{Replies: []string{"  Drumsticks.  "}}
	joe, _ := agent.New("joe", "You are Joe.", jp, agent.WithLineFunc(log.record))
	cathy, _ := agent.New("cathy", "You are Cathy.", cp, agent.WithLineFunc(log.record))

	if _, err := joe.InitiateChat(context.Background(), cathy, "Knock knock.", 1); err != nil {
		t.Fatalf("InitiateChat: %v", err)
	}
	for _, c := range log.calls {
		if !c.done {
			t.Errorf("partial fragment %+v from a blocking backend", c)
		}
	}
	want := "joe: Knock knock.\ncathy: Drumsticks."
	if got := strings.Join(log.lines(), "\n"); got != want {
		t.Errorf("spoken lines = %q, want %q", got, want)
	}
}

func TestInitiateChat_StreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *llmmock.Provider)
	}{
		{
			name:  "stream refused",
			setup: func(p *llmmock.Provider) { p.StreamErr = errors.New("429 too many requests") },
		},
		{
			name: "error chunk",
			setup: func(p *llmmock.Provider) {
				p.ReplyFunc = func(llm.CompletionRequest) (string, error) {
					return "", errors.New("connection reset")
				}
			},
		},
		{
			name: "chunk after partial text",
			setup: func(p *llmmock.Provider) {
				p.StreamChunks = []llm.Chunk{{Text: "Why did "}, {Text: "upstream closed", FinishReason: "error"}}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			log := &lineLog{}
			joe, _, cathy, cp := streamingPair(t, log, nil, nil)
			tt.setup(cp)

			rec, err := joe.InitiateChat(context.Background(), cathy, "hi", 2)
			if err == nil {
				t.Fatal("expected error")
			}
			if len(rec.Entries) != 0 {
				t.Errorf("partial record returned: %+v", rec.Entries)
			}
			if n := len(log.calls); n == 0 || !log.calls[n-1].done {
				t.Error("open line was not closed after the failure")
			}
		})
	}
}

func TestDuo_ReleaseForgetsBothSides(t *testing.T) {
	t.Parallel()
	joe, _, cathy, _ := newPair(t, nil, []string{"c1"})
	d, err := agent.NewDuo(joe, cathy)
	if err != nil {
		t.Fatalf("NewDuo: %v", err)
	}
	if _, err := d.InitiateChat(context.Background(), "joe", "cathy", "hi", 1); err != nil {
		t.Fatalf("InitiateChat: %v", err)
	}

	d.Release()

	if len(joe.Memory("cathy")) != 0 || len(cathy.Memory("joe")) != 0 {
		t.Error("Release left memories behind")
	}
	if _, err := d.InitiateChat(context.Background(), "cathy", "joe", "again", 1); err != nil {
		t.Fatalf("InitiateChat after Release: %v", err)
	}
	if got := len(cathy.Memory("joe")); got != 1 {
		t.Errorf("cathy remembers %d messages after Release, want 1", got)
	}
}
