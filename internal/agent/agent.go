// Package agent implements the conversational agents that perform the comedy
// routine.
//
// An [Agent] is a persona (a system message) bound to an [llm.Provider]. It
// remembers, per peer, everything said between itself and that peer and can
// run a bounded back-and-forth with another agent through
// [Agent.InitiateChat]. The result of such an exchange is a
// [transcript.ExchangeRecord] whose entries carry relative roles only; the
// caller decides what the roles mean.
//
// Each agent serialises its own reply generation. Agents are cheap to build
// and are created per conversation so that memories never leak between
// sessions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/session"
	"github.com/MrWong99/comedyhour/internal/transcript"
	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

var (
	// ErrEmptyMessage is returned when an agent is asked to say nothing.
	ErrEmptyMessage = errors.New("agent: message must not be empty")

	// ErrInvalidTurns is returned by [Agent.InitiateChat] for a turn bound
	// below one.
	ErrInvalidTurns = errors.New("agent: max turns must be at least 1")
)

// Stop reasons recorded in the trailing system entry of an exchange.
const (
	stopMaxTurns   = "max turns reached"
	stopEmptyReply = "empty reply"
)

// Agent is one comedian.
type Agent struct {
	name         transcript.Identity
	persona      string
	llm          llm.Provider
	temperature  float64
	maxTokens    int
	memoryBudget int
	summariser   session.Summariser
	metrics      *observe.Metrics
	onLine       LineFunc

	// genMu serialises reply generation.
	genMu sync.Mutex

	mu       sync.Mutex
	memories map[transcript.Identity]*session.ContextManager
}

// Option configures an [Agent].
type Option func(*Agent)

// WithTemperature sets the sampling temperature used for replies.
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// WithMaxTokens caps the length of each reply.
func WithMaxTokens(n int) Option {
	return func(a *Agent) { a.maxTokens = n }
}

// WithMemoryBudget sets the token budget of each per-peer memory. Defaults to
// the provider's context window. Zero disables summarisation.
func WithMemoryBudget(tokens int) Option {
	return func(a *Agent) { a.memoryBudget = tokens }
}

// WithSummariser enables summarisation of old memory. Without one, old
// messages are dropped once the budget is exceeded.
func WithSummariser(s session.Summariser) Option {
	return func(a *Agent) { a.summariser = s }
}

// LineFunc observes lines as they are spoken. Scripted lines arrive in one
// call with done set; generated lines arrive fragment by fragment when the
// backend streams, followed by a call with empty text and done set. It runs
// on the goroutine driving the exchange.
type LineFunc func(speaker transcript.Identity, text string, done bool)

// WithLineFunc registers fn to observe every line the agent speaks.
func WithLineFunc(fn LineFunc) Option {
	return func(a *Agent) { a.onLine = fn }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an agent called name that speaks with the given persona.
func New(name transcript.Identity, persona string, provider llm.Provider, opts ...Option) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent: name must not be empty")
	}
	if provider == nil {
		return nil, errors.New("agent: provider must not be nil")
	}
	a := &Agent{
		name:         name,
		persona:      persona,
		llm:          provider,
		memoryBudget: provider.Capabilities().ContextWindow,
		memories:     make(map[transcript.Identity]*session.ContextManager),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// Name returns the agent's identity.
func (a *Agent) Name() transcript.Identity { return a.name }

// Persona returns the system message the agent speaks with.
func (a *Agent) Persona() string { return a.persona }

// Memory returns what the agent remembers of its conversation with peer, as
// it would be sent to the model.
func (a *Agent) Memory(peer transcript.Identity) []llm.Message {
	return a.memory(peer).Messages()
}

// Send delivers msg from a to recipient without asking for a reply. Both
// agents remember it: a as its own line, recipient as the peer's.
func (a *Agent) Send(ctx context.Context, msg string, recipient *Agent) error {
	if recipient == nil {
		return errors.New("agent: recipient must not be nil")
	}
	if strings.TrimSpace(msg) == "" {
		return ErrEmptyMessage
	}
	a.remember(ctx, recipient.name, llm.Message{Role: "assistant", Name: string(a.name), Content: msg})
	recipient.remember(ctx, a.name, llm.Message{Role: "user", Name: string(a.name), Content: msg})
	return nil
}

// GenerateReply asks the model for a's next line to peer, based on the
// persona and the remembered conversation. Backends that support streaming
// are streamed, so a [LineFunc] sees the line while it is generated. An
// empty string means the model had nothing to say.
func (a *Agent) GenerateReply(ctx context.Context, peer transcript.Identity) (string, error) {
	a.genMu.Lock()
	defer a.genMu.Unlock()

	streamed := a.llm.Capabilities().SupportsStreaming
	ctx, span := observe.StartSpan(ctx, "agent.generate_reply",
		trace.WithAttributes(
			observe.AttrAgent.String(string(a.name)),
			observe.AttrPeer.String(string(peer)),
			observe.AttrStreamed.Bool(streamed),
		),
	)
	defer span.End()

	req := llm.CompletionRequest{
		SystemPrompt: a.persona,
		Messages:     a.memory(peer).Messages(),
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
	}
	start := time.Now()
	var text string
	var err error
	if streamed {
		text, err = a.stream(ctx, req)
	} else {
		text, err = a.complete(ctx, req)
	}
	a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("agent", string(a.name))),
	)

	reply := strings.TrimSpace(text)
	switch {
	case err != nil:
		a.emit("", true)
		return "", observe.Fail(span, fmt.Errorf("agent: %s: generate reply: %w", a.name, err))
	case streamed:
		a.emit("", true)
	default:
		a.emit(reply, true)
	}
	return reply, nil
}

func (a *Agent) stream(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ch, err := a.llm.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.CollectStream(ctx, ch, func(fragment string) { a.emit(fragment, false) })
}

func (a *Agent) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	resp, err := a.llm.Complete(ctx, req)
	if err != nil || resp == nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *Agent) emit(text string, done bool) {
	if a.onLine != nil {
		a.onLine(a.name, text, done)
	}
}

// InitiateChat opens a bounded exchange with recipient.
//
// One turn is a message from a followed by the reply of recipient. The first
// message is the given opening; later ones are generated. The exchange stops
// after maxTurns turns or as soon as either side produces an empty line. The
// returned record lists every line with its relative role and ends with a
// single system entry naming the stop reason.
//
// On error the partial record is discarded.
func (a *Agent) InitiateChat(ctx context.Context, recipient *Agent, message string, maxTurns int) (transcript.ExchangeRecord, error) {
	switch {
	case recipient == nil:
		return transcript.ExchangeRecord{}, errors.New("agent: recipient must not be nil")
	case recipient == a || recipient.name == a.name:
		return transcript.ExchangeRecord{}, fmt.Errorf("agent: %s cannot chat with itself", a.name)
	case maxTurns < 1:
		return transcript.ExchangeRecord{}, ErrInvalidTurns
	case strings.TrimSpace(message) == "":
		return transcript.ExchangeRecord{}, ErrEmptyMessage
	}

	ctx, span := observe.StartExchangeSpan(ctx, "agent.initiate_chat", string(a.name), string(recipient.name), maxTurns)
	defer span.End()

	rec := transcript.ExchangeRecord{Initiator: a.name, Responder: recipient.name}
	fail := func(err error) (transcript.ExchangeRecord, error) {
		return transcript.ExchangeRecord{}, observe.Fail(span, err)
	}

	reason := stopMaxTurns
	turns := 0
	msg := message
	for turns < maxTurns {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("agent: exchange interrupted: %w", err))
		}
		if turns == 0 {
			a.emit(msg, true)
		}
		if err := a.Send(ctx, msg, recipient); err != nil {
			return fail(err)
		}
		rec.Entries = append(rec.Entries, transcript.Entry{Role: transcript.RoleInitiator, Text: msg})
		turns++

		reply, err := recipient.GenerateReply(ctx, a.name)
		if err != nil {
			return fail(err)
		}
		if reply == "" {
			reason = stopEmptyReply
			break
		}
		if err := recipient.Send(ctx, reply, a); err != nil {
			return fail(err)
		}
		rec.Entries = append(rec.Entries, transcript.Entry{Role: transcript.RoleResponder, Text: reply})

		if turns == maxTurns {
			break
		}
		msg, err = a.GenerateReply(ctx, recipient.name)
		if err != nil {
			return fail(err)
		}
		if msg == "" {
			reason = stopEmptyReply
			break
		}
	}

	rec.Entries = append(rec.Entries, transcript.Entry{
		Role: transcript.RoleSystem,
		Text: fmt.Sprintf("exchange finished: %s after %d turn(s)", reason, turns),
	})
	span.SetAttributes(observe.AttrTurns.Int(turns), observe.AttrStopReason.String(reason))
	return rec, nil
}

// Reset forgets every conversation.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cm := range a.memories {
		cm.Reset()
	}
	clear(a.memories)
}

func (a *Agent) memory(peer transcript.Identity) *session.ContextManager {
	a.mu.Lock()
	defer a.mu.Unlock()
	cm, ok := a.memories[peer]
	if !ok {
		cm = session.NewContextManager(session.ContextManagerConfig{
			MaxTokens:  a.memoryBudget,
			Summariser: a.summariser,
			Counter:    a.llm,
		})
		a.memories[peer] = cm
	}
	return cm
}

func (a *Agent) remember(ctx context.Context, peer transcript.Identity, m llm.Message) {
	if err := a.memory(peer).Add(ctx, m); err != nil {
		observe.Logger(ctx).Warn("agent: memory compaction failed",
			"agent", string(a.name), "peer", string(peer), "err", err)
	}
}
