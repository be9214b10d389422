// Package mock provides an in-memory implementation of [agent.Engine] for use
// in unit tests.
//
// The mock is safe for concurrent use, records every call, and exposes
// exported fields for configuring return values.
//
// Example:
//
//	eng := &mock.Engine{
//	    PairResult: transcript.Pair{A: "joe", B: "cathy"},
//	    Records: []transcript.ExchangeRecord{rec},
//	}
//	rec, err := eng.InitiateChat(ctx, "joe", "cathy", "hi", 2)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/comedyhour/internal/agent"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

// InitiateChatCall records the arguments of a single [Engine.InitiateChat]
// invocation.
type InitiateChatCall struct {
	Initiator transcript.Identity
	Responder transcript.Identity
	Opening   string
	MaxTurns  int
}

// Engine is a mock implementation of [agent.Engine].
type Engine struct {
	mu sync.Mutex

	// PairResult is returned by [Engine.Pair].
	PairResult transcript.Pair

	// Records are returned by InitiateChat in order, one per call. Once
	// exhausted, each call echoes the opening as a single initiator entry.
	Records []transcript.ExchangeRecord

	// Errs are returned by InitiateChat in order, one per call, before
	// Records are consulted. A nil entry falls through to Records.
	Errs []error

	// Block, when non-nil, is received from before InitiateChat returns.
	// Tests use it to hold an exchange open.
	Block chan struct{}

	// Started, when non-nil, receives a value each time InitiateChat begins.
	Started chan struct{}

	// Released counts calls to [Engine.Release].
	Released int

	calls []InitiateChatCall
}

// Pair implements [agent.Engine].
func (e *Engine) Pair() transcript.Pair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.PairResult
}

// InitiateChat implements [agent.Engine].
func (e *Engine) InitiateChat(ctx context.Context, initiator, responder transcript.Identity, opening string, maxTurns int) (transcript.ExchangeRecord, error) {
	e.mu.Lock()
	n := len(e.calls)
	e.calls = append(e.calls, InitiateChatCall{
		Initiator: initiator,
		Responder: responder,
		Opening:   opening,
		MaxTurns:  maxTurns,
	})
	var err error
	if n < len(e.Errs) {
		err = e.Errs[n]
	}
	rec := transcript.ExchangeRecord{
		Initiator: initiator,
		Responder: responder,
		Entries:   []transcript.Entry{{Role: transcript.RoleInitiator, Text: opening}},
	}
	if n < len(e.Records) {
		rec = e.Records[n]
	}
	started, block := e.Started, e.Block
	e.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return transcript.ExchangeRecord{}, ctx.Err()
		}
	}
	if err != nil {
		return transcript.ExchangeRecord{}, err
	}
	return rec, nil
}

// Calls returns a copy of all recorded InitiateChat calls.
func (e *Engine) Calls() []InitiateChatCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]InitiateChatCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// Release implements [agent.Engine].
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Released++
}

// Reset clears all recorded calls.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

var _ agent.Engine = (*Engine)(nil)
