// Package config loads ChakraOps configuration from environment
// variables (spec.md §6.4) and YAML files, in the teacher's
// validate-on-load idiom (internal/config/providers.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RunMode mirrors spec.md §6.4's RUN_MODE values.
type RunMode string

const (
	RunModeLive   RunMode = "LIVE"
	RunModeMock   RunMode = "MOCK"
	RunModeDryRun RunMode = "DRY_RUN"
)

// EnvConfig is the set of environment-recognized settings (spec.md §6.4).
type EnvConfig struct {
	HeartbeatInterval time.Duration
	UIAPIKey          string
	RunMode           RunMode
	DevMode           bool
}

// LoadEnvConfig reads the recognized environment variables, applying
// the documented defaults.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{
		HeartbeatInterval: 60 * time.Second,
		RunMode:           RunModeDryRun,
	}

	if v := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HEARTBEAT_INTERVAL_SECONDS: %w", err)
		}
		if secs <= 0 {
			return nil, fmt.Errorf("HEARTBEAT_INTERVAL_SECONDS must be positive, got %d", secs)
		}
		cfg.HeartbeatInterval = time.Duration(secs) * time.Second
	}

	cfg.UIAPIKey = os.Getenv("UI_API_KEY")

	if v := os.Getenv("RUN_MODE"); v != "" {
		mode := RunMode(strings.ToUpper(strings.TrimSpace(v)))
		switch mode {
		case RunModeLive, RunModeMock, RunModeDryRun:
			cfg.RunMode = mode
		default:
			return nil, fmt.Errorf("invalid RUN_MODE: %q", v)
		}
	}

	cfg.DevMode = isTruthy(os.Getenv("CHAKRAOPS_DEV_MODE"))

	return cfg, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
