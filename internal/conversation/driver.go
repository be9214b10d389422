// Package conversation drives the scripted comedy routine.
//
// A [Driver] runs one bounded exchange between the two comedians through an
// [agent.Engine]. A [Session] owns a transcript and walks the user-facing
// state machine:
//
//	NotStarted ─Start─▶ Started ─▶ AwaitingUserAction ─Continue─▶ Exchanging ─▶ AwaitingUserAction
//	                                       │
//	                                       └─End─▶ Exchanging ─▶ Ended
//
// Every action drives exactly one exchange and appends its mapped result to
// the transcript. A failed exchange appends nothing.
package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/comedyhour/internal/agent"
	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

// Driver runs exchanges between the participants of an [agent.Engine].
// It adds no retries or timeouts of its own; engine errors propagate wrapped.
type Driver struct {
	engine  agent.Engine
	pair    transcript.Pair
	metrics *observe.Metrics
}

// DriverOption configures a [Driver].
type DriverOption func(*Driver)

// WithDriverMetrics overrides the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithDriverMetrics(m *observe.Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// NewDriver creates a driver over engine.
func NewDriver(engine agent.Engine, opts ...DriverOption) *Driver {
	d := &Driver{engine: engine, pair: engine.Pair()}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Pair returns the two participants.
func (d *Driver) Pair() transcript.Pair { return d.pair }

// RunExchange has initiator open a conversation with responder using opening
// and lets them talk for at most maxTurns turns.
func (d *Driver) RunExchange(ctx context.Context, initiator, responder transcript.Identity, opening string, maxTurns int) (transcript.ExchangeRecord, error) {
	if !d.pair.Contains(initiator) || !d.pair.Contains(responder) || initiator == responder {
		return transcript.ExchangeRecord{}, fmt.Errorf("conversation: %q and %q are not the two participants", initiator, responder)
	}

	ctx, span := observe.StartExchangeSpan(ctx, "conversation.run_exchange", string(initiator), string(responder), maxTurns)
	defer span.End()

	start := time.Now()
	rec, err := d.engine.InitiateChat(ctx, initiator, responder, opening, maxTurns)
	d.metrics.ExchangeDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("initiator", string(initiator))),
	)
	if err != nil {
		return transcript.ExchangeRecord{}, observe.Fail(span,
			fmt.Errorf("conversation: exchange %s→%s: %w", initiator, responder, err))
	}
	// Roles are resolved against the participants asked for here.
	rec.Initiator, rec.Responder = initiator, responder
	span.SetAttributes(attribute.Int("entries", len(rec.Entries)))
	return rec, nil
}

// Release lets the engine drop what the participants remember. The driver
// must not run further exchanges afterwards.
func (d *Driver) Release() { d.engine.Release() }
