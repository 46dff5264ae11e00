// Package config loads the gateway's process configuration: environment
// variables (each with a default) plus an optional YAML file overriding the
// tier table (SPEC_FULL.md §A "Configuration").
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/agentkernel/gateway/internal/tier"
)

// Config is the fully resolved process configuration.
type Config struct {
	// Port is the HTTP listen port (env PORT, default 8080).
	Port int
	// DataDir is where the identity store's JSON document lives (env
	// DATA_DIR, default "./data").
	DataDir string
	// TierConfigPath optionally points at a YAML tier-table override
	// (env TIER_CONFIG_PATH). Empty means "use the built-in table".
	TierConfigPath string
}

// tierOverrideFile is the optional YAML document shape: a map from tier
// name to its three limits, mirroring the teacher's nested-block style
// for connector config (pkg/connector/config.go), scaled down to the
// single concern this gateway actually has.
type tierOverrideFile struct {
	Tiers map[string]tierLimits `yaml:"tiers"`
}

type tierLimits struct {
	MemoryCapacity int `yaml:"memory_capacity"`
	PerMinute      int `yaml:"per_minute"`
	PerDay         int `yaml:"per_day"`
}

// Load reads Config from the environment and, if TIER_CONFIG_PATH is set,
// applies the YAML tier-table override via tier.Override.
func Load() (Config, error) {
	cfg := Config{
		Port:           8080,
		DataDir:        "./data",
		TierConfigPath: os.Getenv("TIER_CONFIG_PATH"),
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if cfg.TierConfigPath != "" {
		if err := applyTierOverride(cfg.TierConfigPath); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func applyTierOverride(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading tier override %q: %w", path, err)
	}
	var doc tierOverrideFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config: parsing tier override %q: %w", path, err)
	}
	for name, limits := range doc.Tiers {
		t := tier.Tier(name)
		if !t.Valid() {
			return fmt.Errorf("config: tier override names unknown tier %q", name)
		}
		tier.Override(t, limits.MemoryCapacity, limits.PerMinute, limits.PerDay)
	}
	return nil
}
