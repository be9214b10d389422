package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/comedyhour/internal/observe"
)

// ErrNotFound is returned by [Manager.Get] for unknown or evicted sessions.
var ErrNotFound = errors.New("session: not found")

// Factory builds the value held by a new session.
type Factory[S any] func(ctx context.Context, id string) (S, error)

// ManagerConfig tunes a [Manager].
type ManagerConfig struct {
	// TTL is how long a session may stay idle before [Manager.Sweep] drops
	// it. Zero keeps sessions until they are removed explicitly.
	TTL time.Duration

	// Metrics tracks the number of live sessions. Nil disables recording.
	Metrics *observe.Metrics

	// OnEvict, if set, is called for every session dropped by Sweep or Remove.
	OnEvict func(id string)

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time
}

type managed[S any] struct {
	value    S
	lastSeen time.Time
}

// Manager keeps one value per browser session, keyed by a random UUID.
// All methods are safe for concurrent use.
type Manager[S any] struct {
	factory Factory[S]
	ttl     time.Duration
	metrics *observe.Metrics
	onEvict func(id string)
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*managed[S]
}

// NewManager creates an empty [Manager] that builds sessions with factory.
func NewManager[S any](factory Factory[S], cfg ManagerConfig) *Manager[S] {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager[S]{
		factory: factory,
		ttl:     cfg.TTL,
		metrics: cfg.Metrics,
		onEvict: cfg.OnEvict,
		now:     cfg.Clock,
		entries: make(map[string]*managed[S]),
	}
}

// Get returns the session stored under id and marks it as recently used.
func (m *Manager[S]) Get(id string) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		var zero S
		return zero, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	e.lastSeen = m.now()
	return e.value, nil
}

// Acquire returns the session stored under id. When id is empty or unknown a
// new session is created under a fresh UUID; the returned id is the one the
// caller should hand back next time.
func (m *Manager[S]) Acquire(ctx context.Context, id string) (S, string, error) {
	if id != "" {
		if v, err := m.Get(id); err == nil {
			return v, id, nil
		}
	}

	id = uuid.NewString()
	v, err := m.factory(ctx, id)
	if err != nil {
		var zero S
		return zero, "", fmt.Errorf("session: create: %w", err)
	}

	m.mu.Lock()
	m.entries[id] = &managed[S]{value: v, lastSeen: m.now()}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	observe.Logger(ctx).Debug("session created", "session_id", id)
	return v, id, nil
}

// Remove drops the session stored under id. It reports whether it existed.
func (m *Manager[S]) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if ok {
		m.evicted(id)
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager[S]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops every session idle for longer than the TTL and returns how
// many were dropped.
func (m *Manager[S]) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []string
	for id, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.evicted(id)
	}
	if len(expired) > 0 {
		slog.Info("idle sessions evicted", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is cancelled. It always returns nil so
// it can run inside an errgroup without cancelling its siblings.
func (m *Manager[S]) Run(ctx context.Context, interval time.Duration) error {
	if m.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = m.ttl / 2
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Manager[S]) evicted(id string) {
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	if m.onEvict != nil {
		m.onEvict(id)
	}
}
