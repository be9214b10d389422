// Package config provides the configuration schema, loader, hot-reload
// watcher, and provider registry for comedyhour.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Agents       []AgentConfig      `yaml:"agents"`
	Script       ScriptConfig       `yaml:"script"`
	Presentation PresentationConfig `yaml:"presentation"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig holds network, logging, and session settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the web UI listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// SessionTTL is how long an idle browser session is kept before its
	// transcript is dropped. Zero keeps sessions forever.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ProvidersConfig declares the LLM backend. Each entry selects a named
// provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the primary backend.
	LLM ProviderEntry `yaml:"llm"`

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the common configuration block shared by all providers.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-3.5-turbo").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AgentConfig describes one comedian.
type AgentConfig struct {
	// Name is the identity used in the transcript and the script.
	Name string `yaml:"name"`

	// DisplayName is shown in the UI. Defaults to Name.
	DisplayName string `yaml:"display_name"`

	// SystemMessage is the persona sent as the system prompt.
	SystemMessage string `yaml:"system_message"`

	// Avatar is the image shown next to the agent's lines.
	Avatar string `yaml:"avatar"`

	// Model overrides providers.llm.model for this agent.
	Model string `yaml:"model"`

	// Temperature is the sampling temperature. Zero uses the backend default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps each reply. Zero means no cap.
	MaxTokens int `yaml:"max_tokens"`

	// MemoryTokens bounds the per-peer history before old turns are
	// summarised. Zero uses the model's context window.
	MemoryTokens int `yaml:"memory_tokens"`
}

// LineConfig is a scripted cue.
type LineConfig struct {
	Speaker string `yaml:"speaker"`
	Text    string `yaml:"text"`
}

// ScriptConfig holds the fixed lines of the routine.
type ScriptConfig struct {
	// Initiator is the agent that opens the show.
	Initiator string `yaml:"initiator"`

	// Opening is the first line of the show.
	Opening string `yaml:"opening"`

	// Continue is said each time the user asks for more.
	Continue LineConfig `yaml:"continue"`

	// Farewell is said when the user ends the show.
	Farewell LineConfig `yaml:"farewell"`

	// MaxTurns bounds every exchange.
	MaxTurns int `yaml:"max_turns"`
}

// PresentationConfig holds purely cosmetic settings.
type PresentationConfig struct {
	// Title is the page heading.
	Title string `yaml:"title"`

	// TypingAnimation is shown while a reply is being revealed.
	TypingAnimation string `yaml:"typing_animation"`

	// LaughingAnimation is shown after each line.
	LaughingAnimation string `yaml:"laughing_animation"`

	// RevealDelay is the pause between revealed characters.
	RevealDelay time.Duration `yaml:"reveal_delay"`

	// AnimationDuration is how long an animation stays visible.
	AnimationDuration time.Duration `yaml:"animation_duration"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Defaults to "comedyhour".
	ServiceName string `yaml:"service_name"`

	// Environment is reported as deployment.environment (e.g., "staging").
	Environment string `yaml:"environment"`

	// TraceSampleRatio is the fraction of exchanges traced, in [0, 1].
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Agent returns the agent called name, or nil.
func (c *Config) Agent(name string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i]
		}
	}
	return nil
}

// Default returns the configuration of the classic two-comedian show: Joe
// and Cathy on gpt-3.5-turbo, Joe opening, two turns per exchange.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8501",
			LogLevel:   LogInfo,
			SessionTTL: 30 * time.Minute,
		},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{
				Name:   "openai",
				APIKey: "${OPENAI_API_KEY}",
				Model:  "gpt-3.5-turbo",
			},
		},
		Agents: []AgentConfig{
			{
				Name:          "cathy",
				DisplayName:   "Cathy",
				SystemMessage: "Your name is Cathy and you are a stand-up comedian.",
				Avatar:        "/static/cathy.svg",
			},
			{
				Name:          "joe",
				DisplayName:   "Joe",
				SystemMessage: "Your name is Joe and you are a stand-up comedian. Start the next joke from the punchline of the previous joke.",
				Avatar:        "/static/joe.svg",
			},
		},
		Script: ScriptConfig{
			Initiator: "joe",
			Opening:   "I'm Joe. Cathy, let's keep the jokes rolling.",
			Continue:  LineConfig{Speaker: "cathy", Text: "What's the last joke we talked about?"},
			Farewell:  LineConfig{Speaker: "cathy", Text: "I gotta go."},
			MaxTurns:  2,
		},
		Presentation: PresentationConfig{
			Title:             "Chatbot Comedy Hour 🎭",
			TypingAnimation:   "https://media.giphy.com/media/sSgvbe1m3n93G/source.gif",
			LaughingAnimation: "https://media.giphy.com/media/5xaOcLGvzHxDKjufnLW/source.gif",
			RevealDelay:       30 * time.Millisecond,
			AnimationDuration: 1500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{ServiceName: "comedyhour", TraceSampleRatio: 1},
	}
}
