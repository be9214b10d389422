package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files (".env" when none
// are given) into the process environment. Variables that are already set
// win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
		slog.Debug("loaded environment file", "path", f)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Values missing from the file keep their [Default]. An empty path
// yields the validated defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(strings.NewReader(""))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], expands
// environment references, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	normalise(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalise expands environment references and fills derived defaults.
func normalise(cfg *Config) {
	expand := func(e *ProviderEntry) {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	expand(&cfg.Providers.LLM)
	for i := range cfg.Providers.Fallbacks {
		expand(&cfg.Providers.Fallbacks[i])
	}
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		if a.DisplayName == "" {
			a.DisplayName = a.Name
		}
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "comedyhour"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.session_ttl %s must not be negative", cfg.Server.SessionTTL))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		prefix := fmt.Sprintf("providers.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(prefix, fb.Name)
	}

	// Agents
	if len(cfg.Agents) != 2 {
		errs = append(errs, fmt.Errorf("agents: exactly 2 agents are required, got %d", len(cfg.Agents)))
	}
	seen := make(map[string]int, len(cfg.Agents))
	for i, a := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[a.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of agents[%d]", prefix, a.Name, prev))
			}
			seen[a.Name] = i
		}
		if strings.TrimSpace(a.SystemMessage) == "" {
			errs = append(errs, fmt.Errorf("%s.system_message is required", prefix))
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 2]", prefix, a.Temperature))
		}
		if a.MaxTokens < 0 || a.MemoryTokens < 0 {
			errs = append(errs, fmt.Errorf("%s: token limits must not be negative", prefix))
		}
		if a.Model == "" && cfg.Providers.LLM.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required when providers.llm.model is empty", prefix))
		}
	}

	// Script
	s := cfg.Script
	if _, ok := seen[s.Initiator]; !ok {
		errs = append(errs, fmt.Errorf("script.initiator %q is not an agent", s.Initiator))
	}
	if strings.TrimSpace(s.Opening) == "" {
		errs = append(errs, errors.New("script.opening is required"))
	}
	for _, l := range []struct {
		key  string
		line LineConfig
	}{{"script.continue", s.Continue}, {"script.farewell", s.Farewell}} {
		if _, ok := seen[l.line.Speaker]; !ok {
			errs = append(errs, fmt.Errorf("%s.speaker %q is not an agent", l.key, l.line.Speaker))
		}
		if strings.TrimSpace(l.line.Text) == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", l.key))
		}
	}
	if s.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("script.max_turns must be at least 1, got %d", s.MaxTurns))
	}

	// Presentation
	if cfg.Presentation.RevealDelay < 0 || cfg.Presentation.AnimationDuration < 0 {
		errs = append(errs, errors.New("presentation: durations must not be negative"))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %v is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not in
// [ValidProviderNames].
func validateProviderName(key, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"key", key,
		"name", name,
		"known", ValidProviderNames,
	)
}
