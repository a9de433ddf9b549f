// Package config holds the tunables of the propagation engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/procline/pkg/validation"
)

// EngineConfig configures cycle detection and propagation.
type EngineConfig struct {
	// ResidualTolerance bounds the least-squares residual of a group solve,
	// relative to max(1, |pinned value|).
	ResidualTolerance float64 `yaml:"residual_tolerance"`
	// RankTolerance is the relative singular value cut-off used to decide
	// the numerical rank of a group system.
	RankTolerance float64 `yaml:"rank_tolerance"`
	// AutoDetect re-runs cycle detection when the network was edited since
	// groups were last assigned. When false a stale group table is an error.
	AutoDetect *bool `yaml:"auto_detect"`
	// StrictResidual turns residual warnings into run failures.
	StrictResidual bool `yaml:"strict_residual"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultEngineConfig returns default configuration
func DefaultEngineConfig() EngineConfig {
	autoDetect := true
	return EngineConfig{
		ResidualTolerance: 1e-9,
		RankTolerance:     1e-12,
		AutoDetect:        &autoDetect,
		StrictResidual:    false,
		LogLevel:          "info",
	}
}

// ApplyDefaults applies default values to zero-valued fields
func (c *EngineConfig) ApplyDefaults() {
	defaults := DefaultEngineConfig()

	c.ResidualTolerance = validation.DefaultOrFloat(c.ResidualTolerance, defaults.ResidualTolerance)
	c.RankTolerance = validation.DefaultOrFloat(c.RankTolerance, defaults.RankTolerance)
	c.LogLevel = validation.DefaultOr(c.LogLevel, defaults.LogLevel)
	if c.AutoDetect == nil {
		c.AutoDetect = defaults.AutoDetect
	}
}

// Validate validates the engine configuration
func (c *EngineConfig) Validate() error {
	v := validation.NewConfigValidator("EngineConfig")

	v.PositiveFloat("ResidualTolerance", c.ResidualTolerance).
		MaxFloat("ResidualTolerance", c.ResidualTolerance, 1).
		PositiveFloat("RankTolerance", c.RankTolerance).
		MaxFloat("RankTolerance", c.RankTolerance, 1e-3).
		OneOf("LogLevel", c.LogLevel, []string{"debug", "info", "warn", "error"})

	return v.Validate()
}

// AutoDetectEnabled reports the effective AutoDetect setting.
func (c *EngineConfig) AutoDetectEnabled() bool {
	return c.AutoDetect == nil || *c.AutoDetect
}

// Load reads a YAML engine configuration, fills defaults and validates it.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML engine configuration, fills defaults and validates it.
func Parse(data []byte) (EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}
