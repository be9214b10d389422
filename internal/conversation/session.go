package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/transcript"
)

var (
	// ErrEnded is returned for any action on a session that has ended.
	ErrEnded = errors.New("conversation: session has ended")

	// ErrBusy is returned when an action is requested while another one is
	// still running on the same session.
	ErrBusy = errors.New("conversation: another action is in progress")
)

// State is the position of a [Session] in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateStarted
	StateAwaitingUserAction
	StateExchanging
	StateEnded
)

// String returns the snake_case name of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StateAwaitingUserAction:
		return "awaiting_user_action"
	case StateExchanging:
		return "exchanging"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Line is a scripted cue said by one participant.
type Line struct {
	Speaker transcript.Identity
	Text    string
}

// Script holds the fixed lines that open, continue and close the routine.
type Script struct {
	// Initiator opens the show with Opening.
	Initiator transcript.Identity
	Opening   string

	// Continue is said whenever the user asks for more.
	Continue Line

	// Farewell is said when the user ends the show.
	Farewell Line

	// MaxTurns bounds every exchange.
	MaxTurns int
}

// Validate checks the script against pair.
func (s Script) Validate(pair transcript.Pair) error {
	var errs []error
	if !pair.Contains(s.Initiator) {
		errs = append(errs, fmt.Errorf("initiator %q is not a participant", s.Initiator))
	}
	if strings.TrimSpace(s.Opening) == "" {
		errs = append(errs, errors.New("opening must not be empty"))
	}
	for _, c := range []struct {
		name string
		line Line
	}{{"continue", s.Continue}, {"farewell", s.Farewell}} {
		if !pair.Contains(c.line.Speaker) {
			errs = append(errs, fmt.Errorf("%s speaker %q is not a participant", c.name, c.line.Speaker))
		}
		if strings.TrimSpace(c.line.Text) == "" {
			errs = append(errs, fmt.Errorf("%s text must not be empty", c.name))
		}
	}
	if s.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("max turns must be at least 1, got %d", s.MaxTurns))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("conversation: invalid script: %w", err)
	}
	return nil
}

// Session is one run of the routine: a transcript plus the state machine
// that decides which exchange each user action drives.
//
// Actions are exclusive: a second action while one is running fails with
// [ErrBusy] instead of queueing. Reads ([Session.Messages], [Session.State])
// never block on a running action.
type Session struct {
	id      string
	driver  *Driver
	script  Script
	store   *transcript.Store
	metrics *observe.Metrics

	// action is held for the duration of Start, Continue and End.
	action sync.Mutex

	mu      sync.Mutex
	state   State
	started bool
	changed chan struct{}
}

// SessionOption configures a [Session].
type SessionOption func(*Session)

// WithSessionID sets the identifier used in logs.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

// WithStore uses st as the transcript instead of a fresh one.
func WithStore(st *transcript.Store) SessionOption {
	return func(s *Session) { s.store = st }
}

// WithSessionMetrics overrides the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession creates a session in [StateNotStarted].
func NewSession(driver *Driver, script Script, opts ...SessionOption) (*Session, error) {
	if driver == nil {
		return nil, errors.New("conversation: driver must not be nil")
	}
	if err := script.Validate(driver.Pair()); err != nil {
		return nil, err
	}
	s := &Session{
		driver:  driver,
		script:  script,
		changed: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = transcript.NewStore()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Script returns the session's script.
func (s *Session) Script() Script { return s.script }

// Pair returns the two participants.
func (s *Session) Pair() transcript.Pair { return s.driver.Pair() }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Started reports whether the opening exchange has completed.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Messages returns a snapshot of the transcript.
func (s *Session) Messages() []transcript.Message { return s.store.All() }

// Since returns the transcript messages after seq.
func (s *Session) Since(seq int) []transcript.Message { return s.store.Since(seq) }

// Changed returns a channel that is closed on the next state change or
// transcript append.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Start runs the opening exchange. It is a no-op once the session has
// started.
func (s *Session) Start(ctx context.Context) ([]transcript.Message, error) {
	if err := s.acquire(); err != nil {
		s.metrics.RecordAction(ctx, "start", actionStatus(err))
		return nil, err
	}
	defer s.action.Unlock()

	if s.State() != StateNotStarted {
		s.metrics.RecordAction(ctx, "start", "noop")
		return nil, nil
	}
	msgs, err := s.start(ctx)
	s.metrics.RecordAction(ctx, "start", actionStatus(err))
	return msgs, err
}

// Continue asks for more jokes. A session that has not started yet runs the
// opening first.
func (s *Session) Continue(ctx context.Context) ([]transcript.Message, error) {
	msgs, err := s.act(ctx, "continue", s.script.Continue, StateAwaitingUserAction)
	s.metrics.RecordAction(ctx, "continue", actionStatus(err))
	return msgs, err
}

// End runs the farewell exchange and ends the session. The transcript stays
// readable afterwards; the participants' memories are released.
func (s *Session) End(ctx context.Context) ([]transcript.Message, error) {
	msgs, err := s.act(ctx, "end", s.script.Farewell, StateEnded)
	s.metrics.RecordAction(ctx, "end", actionStatus(err))
	if err == nil {
		s.driver.Release()
	}
	return msgs, err
}

func (s *Session) act(ctx context.Context, action string, cue Line, next State) ([]transcript.Message, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.action.Unlock()

	var out []transcript.Message
	if s.State() == StateNotStarted {
		msgs, err := s.start(ctx)
		if err != nil {
			return nil, err
		}
		out = msgs
	}

	s.setState(StateExchanging)
	msgs, err := s.exchange(ctx, cue.Speaker, cue.Text)
	if err != nil {
		s.setState(StateAwaitingUserAction)
		return out, fmt.Errorf("conversation: %s: %w", action, err)
	}
	s.setState(next)
	return append(out, msgs...), nil
}

// start runs the opening. Must be called with s.action held.
func (s *Session) start(ctx context.Context) ([]transcript.Message, error) {
	s.setState(StateStarted)
	msgs, err := s.exchange(ctx, s.script.Initiator, s.script.Opening)
	if err != nil {
		s.setState(StateNotStarted)
		return nil, fmt.Errorf("conversation: start: %w", err)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.setState(StateAwaitingUserAction)
	return msgs, nil
}

// exchange drives one exchange opened by initiator and appends its result.
func (s *Session) exchange(ctx context.Context, initiator transcript.Identity, opening string) ([]transcript.Message, error) {
	pair := s.driver.Pair()
	rec, err := s.driver.RunExchange(ctx, initiator, pair.Other(initiator), opening, s.script.MaxTurns)
	if err != nil {
		observe.Logger(ctx).Warn("exchange failed, nothing appended",
			"session_id", s.id, "initiator", string(initiator), "err", err)
		return nil, err
	}

	msgs := transcript.Apply(s.store, rec, pair)
	counts := make(map[transcript.Identity]int, 2)
	for _, m := range msgs {
		counts[m.Speaker]++
	}
	for speaker, n := range counts {
		s.metrics.RecordMessages(ctx, string(speaker), n)
	}
	observe.Logger(ctx).Debug("exchange appended",
		"session_id", s.id, "initiator", string(initiator),
		"entries", len(rec.Entries), "appended", len(msgs))
	s.notify()
	return msgs, nil
}

// acquire takes the action lock or reports why it cannot.
func (s *Session) acquire() error {
	if s.State() == StateEnded {
		return ErrEnded
	}
	if !s.action.TryLock() {
		return ErrBusy
	}
	// The session may have ended while the lock was held by End.
	if s.State() == StateEnded {
		s.action.Unlock()
		return ErrEnded
	}
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == st {
		return
	}
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.changed)
	s.changed = make(chan struct{})
}

func actionStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrEnded):
		return "ended"
	default:
		return "error"
	}
}
