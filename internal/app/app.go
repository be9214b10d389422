// Package app wires configuration, LLM backends, agents and sessions into a
// running comedy show.
//
// Every session gets its own pair of agents so that their memories never
// leak between browsers. The LLM backends are shared: one failover group per
// model, built lazily and cached.
//
// For testing, inject a provider with [WithProvider]; the registry is then
// never consulted.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/comedyhour/internal/agent"
	"github.com/MrWong99/comedyhour/internal/config"
	"github.com/MrWong99/comedyhour/internal/conversation"
	"github.com/MrWong99/comedyhour/internal/observe"
	"github.com/MrWong99/comedyhour/internal/resilience"
	"github.com/MrWong99/comedyhour/internal/reveal"
	"github.com/MrWong99/comedyhour/internal/session"
	"github.com/MrWong99/comedyhour/internal/transcript"
	"github.com/MrWong99/comedyhour/internal/web"
	"github.com/MrWong99/comedyhour/pkg/provider/llm"
)

// App owns the shared backends and the live sessions.
type App struct {
	reg           *config.Registry
	provider      llm.Provider
	metrics       *observe.Metrics
	level         *slog.LevelVar
	sweepInterval time.Duration
	onLine        agent.LineFunc

	mu       sync.RWMutex
	cfg      *config.Config
	backends map[string]llm.Provider

	sessions *session.Manager[*conversation.Session]
}

// Option is a functional option for New.
type Option func(*App)

// WithProvider makes every agent use p instead of building backends from the
// registry.
func WithProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithLineFunc hands every line the agents speak to fn as it is produced.
func WithLineFunc(fn agent.LineFunc) Option {
	return func(a *App) { a.onLine = fn }
}

// WithSweepInterval sets how often idle sessions are looked for. Defaults to
// half the session TTL.
func WithSweepInterval(d time.Duration) Option {
	return func(a *App) { a.sweepInterval = d }
}

// New validates cfg, builds the backends every configured agent needs and
// prepares an empty session table.
func New(cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	a := &App{
		reg:      reg,
		cfg:      cfg,
		backends: make(map[string]llm.Provider),
	}
	for _, o := range opts {
		o(a)
	}
	if a.provider == nil && a.reg == nil {
		return nil, errors.New("app: either a registry or a provider is required")
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	for _, ac := range cfg.Agents {
		if _, err := a.backend(ac.Model); err != nil {
			return nil, err
		}
	}

	a.sessions = session.NewManager(a.NewSession, session.ManagerConfig{
		TTL:     cfg.Server.SessionTTL,
		Metrics: a.metrics,
		OnEvict: func(id string) { slog.Debug("session evicted", "session_id", id) },
	})
	return a, nil
}

// Config returns the configuration new sessions are built from.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Sessions returns the live browser sessions.
func (a *App) Sessions() *session.Manager[*conversation.Session] { return a.sessions }

// NewSession builds a fresh show: two agents, their engine, a driver and a
// session in the not-started state.
func (a *App) NewSession(_ context.Context, id string) (*conversation.Session, error) {
	cfg := a.Config()
	if len(cfg.Agents) != 2 {
		return nil, fmt.Errorf("app: need exactly 2 agents, got %d", len(cfg.Agents))
	}

	var members [2]*agent.Agent
	for i, ac := range cfg.Agents {
		p, err := a.backend(ac.Model)
		if err != nil {
			return nil, err
		}
		opts := []agent.Option{
			agent.WithTemperature(ac.Temperature),
			agent.WithMaxTokens(ac.MaxTokens),
			agent.WithSummariser(session.NewLLMSummariser(p)),
			agent.WithMetrics(a.metrics),
		}
		if ac.MemoryTokens > 0 {
			opts = append(opts, agent.WithMemoryBudget(ac.MemoryTokens))
		}
		if a.onLine != nil {
			opts = append(opts, agent.WithLineFunc(a.onLine))
		}
		members[i], err = agent.New(transcript.Identity(ac.Name), ac.SystemMessage, p, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: agent %q: %w", ac.Name, err)
		}
	}
	duo, err := agent.NewDuo(members[0], members[1])
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	driver := conversation.NewDriver(duo, conversation.WithDriverMetrics(a.metrics))
	return conversation.NewSession(driver, ScriptFrom(cfg.Script),
		conversation.WithSessionID(id),
		conversation.WithSessionMetrics(a.metrics),
	)
}

// ScriptFrom converts the configured script.
func ScriptFrom(sc config.ScriptConfig) conversation.Script {
	return conversation.Script{
		Initiator: transcript.Identity(sc.Initiator),
		Opening:   sc.Opening,
		Continue:  conversation.Line{Speaker: transcript.Identity(sc.Continue.Speaker), Text: sc.Continue.Text},
		Farewell:  conversation.Line{Speaker: transcript.Identity(sc.Farewell.Speaker), Text: sc.Farewell.Text},
		MaxTurns:  sc.MaxTurns,
	}
}

// Presentation returns the cosmetic settings for the web UI.
func (a *App) Presentation() web.Presentation {
	cfg := a.Config()
	speakers := make(map[transcript.Identity]web.Speaker, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		speakers[transcript.Identity(ac.Name)] = web.Speaker{DisplayName: ac.DisplayName, Avatar: ac.Avatar}
	}
	pc := cfg.Presentation
	return web.Presentation{
		Title:    pc.Title,
		Speakers: speakers,
		Assets: reveal.Assets{
			Typing:   pc.TypingAnimation,
			Laughing: pc.LaughingAnimation,
			Duration: pc.AnimationDuration,
		},
		RevealDelay: pc.RevealDelay,
	}
}

// Healthy reports whether every backend has at least one usable provider.
func (a *App) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, b := range a.backends {
		if h, ok := b.(interface{ Healthy() bool }); ok && !h.Healthy() {
			return false
		}
	}
	return true
}

// Run evicts idle sessions until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.sessions.Run(ctx, a.sweepInterval)
}

// Reload applies a changed configuration. It is meant as the callback of a
// [config.Watcher]. Personas, script and presentation apply to sessions
// created afterwards; running shows keep what they started with. Provider,
// listen address and telemetry changes are logged and ignored until restart.
// Every reload closes the backends' circuit breakers so that providers fixed
// alongside the edit are tried again at once.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.RestartRequired {
		slog.Warn("config: provider, listen address or telemetry changed; restart to apply")
	}
	a.resetBackends()
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(Level(d.NewLogLevel))
	}

	a.mu.Lock()
	next := *new
	next.Providers = a.cfg.Providers
	next.Server.ListenAddr = a.cfg.Server.ListenAddr
	next.Telemetry = a.cfg.Telemetry
	a.cfg = &next
	a.mu.Unlock()

	for _, ac := range d.AgentChanges {
		slog.Info("config: agent changed", "agent", ac.Name,
			"persona", ac.SystemMessageChanged, "appearance", ac.AppearanceChanged,
			"model", ac.ModelChanged, "added", ac.Added, "removed", ac.Removed)
	}
	slog.Info("config reloaded; new sessions use it",
		"script_changed", d.ScriptChanged,
		"presentation_changed", d.PresentationChanged,
		"log_level", new.Server.LogLevel)
}

func (a *App) resetBackends() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for model, b := range a.backends {
		if r, ok := b.(interface{ Reset() }); ok {
			r.Reset()
			slog.Debug("llm backend breakers reset", "model", model)
		}
	}
}

// Level converts a configured log level. Unknown values map to info.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// backend returns the shared provider for model, building the failover group
// on first use. An empty model selects providers.llm.model.
func (a *App) backend(model string) (llm.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if model == "" {
		model = a.cfg.Providers.LLM.Model
	}
	if p, ok := a.backends[model]; ok {
		return p, nil
	}

	primary := a.cfg.Providers.LLM
	primary.Model = model
	p, err := a.reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("app: create llm %s/%s: %w", primary.Name, model, err)
	}
	group := resilience.NewLLMFallback(p, primary.Name+"/"+model, resilience.FallbackConfig{
		Kind:    "llm",
		Metrics: a.metrics,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Info("llm backend state changed", "provider", name, "from", from.String(), "to", to.String())
			},
		},
	})
	for _, e := range a.cfg.Providers.Fallbacks {
		fp, err := a.reg.CreateLLM(e)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered; skipping", "name", e.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("app: create fallback llm %s/%s: %w", e.Name, e.Model, err)
		}
		group.AddFallback(e.Name+"/"+e.Model, fp)
	}
	slog.Info("llm backend ready", "provider", primary.Name, "model", model, "fallbacks", group.Len()-1)
	a.backends[model] = group
	return group, nil
}
