package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UniverseConfig is the YAML-defined seed universe and benchmark list,
// generalized from the teacher's internal/universe/manager.go
// UniverseConfig (which is crypto/exchange specific) to equity symbols
// with no venue routing.
type UniverseConfig struct {
	Benchmarks []string       `yaml:"benchmarks"`
	Symbols    []SymbolConfig `yaml:"symbols"`
}

// SymbolConfig is one seed universe entry (spec.md §3.1 Universe Entry).
type SymbolConfig struct {
	Symbol   string `yaml:"symbol"`
	Enabled  bool   `yaml:"enabled"`
	Notes    string `yaml:"notes,omitempty"`
	Priority int    `yaml:"priority,omitempty"`
	Sector   string `yaml:"sector,omitempty"`
}

// DefaultUniverseConfig mirrors the spec's required-benchmark idiom.
func DefaultUniverseConfig() *UniverseConfig {
	return &UniverseConfig{
		Benchmarks: []string{"SPY", "QQQ"},
	}
}

// LoadUniverseConfig loads the seed universe from a YAML file.
func LoadUniverseConfig(path string) (*UniverseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe config: %w", err)
	}
	var cfg UniverseConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse universe config: %w", err)
	}
	if len(cfg.Benchmarks) == 0 {
		cfg.Benchmarks = DefaultUniverseConfig().Benchmarks
	}
	return &cfg, nil
}

// SchedulerConfig holds the heartbeat scheduler's tunables, mirroring
// the teacher's SchedulerConfig/GlobalConfig split
// (internal/scheduler/scheduler.go) generalized from a cron job list
// to the single fixed-interval cycle spec.md §4.4 describes.
type SchedulerConfig struct {
	ArtifactsDir                   string `yaml:"artifacts_dir"`
	LogLevel                       string `yaml:"log_level"`
	Timezone                      string `yaml:"timezone"`
	RegimeStaleThresholdMinutes    int    `yaml:"regime_stale_threshold_minutes"`
	CandidateRemovalCooldownHours  int    `yaml:"candidate_removal_cooldown_hours"`
}

// DefaultSchedulerConfig mirrors the teacher's loadConfig defaulting step.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ArtifactsDir:                  "artifacts/decisions",
		LogLevel:                      "info",
		Timezone:                      "America/New_York",
		RegimeStaleThresholdMinutes:   240,
		CandidateRemovalCooldownHours: 6,
	}
}

// LoadSchedulerConfig loads scheduler configuration from YAML, filling
// unset fields with DefaultSchedulerConfig (teacher's loadConfig idiom).
func LoadSchedulerConfig(path string) (SchedulerConfig, error) {
	cfg := DefaultSchedulerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read scheduler config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse scheduler config: %w", err)
	}

	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = "artifacts/decisions"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/New_York"
	}
	if cfg.RegimeStaleThresholdMinutes <= 0 {
		cfg.RegimeStaleThresholdMinutes = 240
	}
	if cfg.CandidateRemovalCooldownHours <= 0 {
		cfg.CandidateRemovalCooldownHours = 6
	}

	return cfg, nil
}
