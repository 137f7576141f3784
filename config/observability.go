package config

import "strings"

const defaultObservabilityName = "flaggate"

// ObservabilityConfig groups configuration that controls metrics emission.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig `envPrefix:"METRICS_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.sanitize()
}

// ObservabilityMetricsConfig controls the StatsD metrics sink.
type ObservabilityMetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Address string `env:"ADDRESS" envDefault:""`
	Prefix  string `env:"PREFIX"  envDefault:"flaggate"`
}

func (c *ObservabilityMetricsConfig) sanitize() {
	c.Address = strings.TrimSpace(c.Address)
	if c.Prefix = strings.TrimSpace(c.Prefix); c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
}
