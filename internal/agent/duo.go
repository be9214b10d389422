package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/comedyhour/internal/transcript"
)

// Engine runs bounded exchanges between the two participants of a fixed
// [transcript.Pair]. [Duo] is the production implementation.
type Engine interface {
	// Pair returns the two participants the engine can drive.
	Pair() transcript.Pair

	// InitiateChat has initiator open an exchange with responder. See
	// [Agent.InitiateChat].
	InitiateChat(ctx context.Context, initiator, responder transcript.Identity, opening string, maxTurns int) (transcript.ExchangeRecord, error)

	// Release drops everything the participants remember. The engine stays
	// usable afterwards with empty memories.
	Release()
}

var _ Engine = (*Duo)(nil)

// Duo binds two agents into an [Engine].
type Duo struct {
	a, b *Agent
}

// NewDuo returns an engine over a and b. The agents must have distinct names.
func NewDuo(a, b *Agent) (*Duo, error) {
	if a == nil || b == nil {
		return nil, errors.New("agent: duo needs two agents")
	}
	if a.name == b.name {
		return nil, fmt.Errorf("agent: duo members share the name %q", a.name)
	}
	return &Duo{a: a, b: b}, nil
}

// Pair implements [Engine].
func (d *Duo) Pair() transcript.Pair {
	return transcript.Pair{A: d.a.name, B: d.b.name}
}

// Agent returns the member called id, or nil.
func (d *Duo) Agent(id transcript.Identity) *Agent {
	switch id {
	case d.a.name:
		return d.a
	case d.b.name:
		return d.b
	}
	return nil
}

// InitiateChat implements [Engine].
func (d *Duo) InitiateChat(ctx context.Context, initiator, responder transcript.Identity, opening string, maxTurns int) (transcript.ExchangeRecord, error) {
	from, to := d.Agent(initiator), d.Agent(responder)
	if from == nil {
		return transcript.ExchangeRecord{}, fmt.Errorf("agent: unknown initiator %q", initiator)
	}
	if to == nil {
		return transcript.ExchangeRecord{}, fmt.Errorf("agent: unknown responder %q", responder)
	}
	return from.InitiateChat(ctx, to, opening, maxTurns)
}

// Release implements [Engine].
func (d *Duo) Release() {
	d.a.Reset()
	d.b.Reset()
}
