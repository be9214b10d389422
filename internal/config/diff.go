package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied to new sessions without a restart are
// tracked; provider and server address changes need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanges lists comedians whose persona or look changed.
	AgentChanges []AgentDiff

	ScriptChanged       bool
	PresentationChanged bool

	// RestartRequired is set when a field that cannot be hot-reloaded changed.
	RestartRequired bool
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	Name                 string
	SystemMessageChanged bool
	AppearanceChanged    bool
	ModelChanged         bool
	Added                bool
	Removed              bool
}

// Changed reports whether anything hot-reloadable changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.AgentChanges) > 0 || d.ScriptChanged || d.PresentationChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Script != new.Script {
		d.ScriptChanged = true
	}
	if old.Presentation != new.Presentation {
		d.PresentationChanged = true
	}
	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Telemetry != new.Telemetry ||
		!sameProvider(old.Providers.LLM, new.Providers.LLM) ||
		!slices.EqualFunc(old.Providers.Fallbacks, new.Providers.Fallbacks, sameProvider) {
		d.RestartRequired = true
	}

	for _, oa := range old.Agents {
		na := new.Agent(oa.Name)
		if na == nil {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{Name: oa.Name, Removed: true})
			continue
		}
		ad := AgentDiff{
			Name:                 oa.Name,
			SystemMessageChanged: oa.SystemMessage != na.SystemMessage,
			AppearanceChanged:    oa.DisplayName != na.DisplayName || oa.Avatar != na.Avatar,
			ModelChanged:         oa.Model != na.Model || oa.Temperature != na.Temperature || oa.MaxTokens != na.MaxTokens || oa.MemoryTokens != na.MemoryTokens,
		}
		if ad.SystemMessageChanged || ad.AppearanceChanged || ad.ModelChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
		}
	}
	for _, na := range new.Agents {
		if old.Agent(na.Name) == nil {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{Name: na.Name, Added: true})
		}
	}

	return d
}

// sameProvider compares entries ignoring Options, which are not comparable.
func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
