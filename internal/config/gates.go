package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// GatesConfig mirrors the teacher's guard-profile shape
// (internal/config/guards.go) generalized to ChakraOps' Stage 1 hard
// gates and sector-specific liquidity overrides. Kept on yaml.v2 per
// the teacher's own file, rather than normalized to v3 like the rest
// of the config tree.
type GatesConfig struct {
	Active   string                      `yaml:"active_profile"`
	Profiles map[string]GateThresholds   `yaml:"profiles"`
	Sectors  map[string]SectorOverride   `yaml:"sector_overrides"`
}

// GateThresholds holds the hard-gate thresholds for one profile.
type GateThresholds struct {
	MinPrice          float64  `yaml:"min_price"`
	MaxPrice          float64  `yaml:"max_price"`
	MinVolume         float64  `yaml:"min_volume"`
	MinIVRank         float64  `yaml:"min_iv_rank"`
	AllowMissingIV    bool     `yaml:"allow_missing_iv"`
	AllowedRegimes    []string `yaml:"allowed_regimes"`
}

// SectorOverride allows a sector-specific liquidity floor (spec.md §4.2,
// LIQUIDITY_UNDERLYING "with sector-specific overrides allowed").
type SectorOverride struct {
	MinVolume float64 `yaml:"min_volume"`
}

// DefaultGatesConfig returns production-shaped defaults, mirroring the
// teacher's DefaultEntryGateConfig() idiom (internal/gates/entry.go).
func DefaultGatesConfig() *GatesConfig {
	return &GatesConfig{
		Active: "standard",
		Profiles: map[string]GateThresholds{
			"standard": {
				MinPrice:       10.0,
				MaxPrice:       1000.0,
				MinVolume:      1_000_000,
				MinIVRank:      30.0,
				AllowMissingIV: true,
				AllowedRegimes: []string{"RISK_ON"},
			},
		},
	}
}

// LoadGatesConfig loads a gates profile configuration from file.
func LoadGatesConfig(path string) (*GatesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gates config: %w", err)
	}

	var cfg GatesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gates config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gates config: %w", err)
	}
	return &cfg, nil
}

// Validate ensures the active profile exists and thresholds are sane.
func (c *GatesConfig) Validate() error {
	if _, ok := c.Profiles[c.Active]; !ok {
		return fmt.Errorf("active_profile %q has no matching profile", c.Active)
	}
	for name, p := range c.Profiles {
		if p.MinPrice <= 0 {
			return fmt.Errorf("profile %s: min_price must be positive", name)
		}
		if p.MaxPrice <= p.MinPrice {
			return fmt.Errorf("profile %s: max_price (%f) must exceed min_price (%f)", name, p.MaxPrice, p.MinPrice)
		}
		if p.MinVolume < 0 {
			return fmt.Errorf("profile %s: min_volume cannot be negative", name)
		}
	}
	return nil
}

// ActiveFor returns the thresholds for the active profile, applying the
// sector override (if any) to MinVolume.
func (c *GatesConfig) ActiveFor(sector string) GateThresholds {
	t := c.Profiles[c.Active]
	if ov, ok := c.Sectors[sector]; ok {
		t.MinVolume = ov.MinVolume
	}
	return t
}
