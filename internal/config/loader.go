package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*RunnerConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: $XDG_CONFIG_HOME/loopkit/config.json
// Project: .loopkit/config.json (relative to cwd)
func LoadDefault() (*RunnerConfig, error) {
	return Load(DefaultGlobalPath(), DefaultProjectPath())
}

// fileConfig mirrors RunnerConfig with optional sections, so a file can
// override only the parts it mentions. A non-empty group replaces the
// whole group; a list merge would make removal impossible.
type fileConfig struct {
	Group   []TaskConfig   `json:"group"`
	Journal *JournalConfig `json:"journal"`
	Log     *LogConfig     `json:"log"`
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped. Malformed JSON returns an
// error.
func mergeConfigFile(base *RunnerConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded fileConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(loaded.Group) > 0 {
		base.Group = loaded.Group
	}
	if loaded.Journal != nil {
		base.Journal = *loaded.Journal
	}
	if loaded.Log != nil {
		base.Log = *loaded.Log
	}

	return nil
}
