package observe

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 2, want: "AlwaysOnSampler"},
		{ratio: 0, want: "AlwaysOffSampler"},
		{ratio: -1, want: "AlwaysOffSampler"},
		{ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := Sampler(tt.ratio).Description()
		if !strings.HasPrefix(got, "ParentBased{root:"+tt.want) {
			t.Errorf("Sampler(%v) = %q, want root %s", tt.ratio, got, tt.want)
		}
	}
}

func TestNewResource(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		service string
		env     string
	}{
		{name: "defaults", cfg: ProviderConfig{}, service: "comedyhour"},
		{
			name:    "configured",
			cfg:     ProviderConfig{ServiceName: "comedy-stage", ServiceVersion: "1.2.0", Environment: "staging"},
			service: "comedy-stage",
			env:     "staging",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newResource(tt.cfg).Set()
			if v, _ := set.Value(attribute.Key("service.name")); v.AsString() != tt.service {
				t.Errorf("service.name = %q, want %q", v.AsString(), tt.service)
			}
			v, ok := set.Value(attribute.Key("deployment.environment"))
			if tt.env == "" && ok {
				t.Errorf("deployment.environment set to %q, want absent", v.AsString())
			}
			if tt.env != "" && v.AsString() != tt.env {
				t.Errorf("deployment.environment = %q, want %q", v.AsString(), tt.env)
			}
		})
	}
}
