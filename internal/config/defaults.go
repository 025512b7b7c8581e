package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// DefaultConfig returns the default configuration: the classic two-printer
// group, one second between steps.
func DefaultConfig() *RunnerConfig {
	return &RunnerConfig{
		Group: []TaskConfig{
			{Name: "A", Steps: 5, Interval: Duration(time.Second)},
			{Name: "B", Steps: 2, Interval: Duration(time.Second)},
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// DefaultGlobalPath returns the per-user config path under XDG_CONFIG_HOME.
func DefaultGlobalPath() string {
	return filepath.Join(xdg.ConfigHome, "loopkit", "config.json")
}

// DefaultProjectPath returns the per-project config path, relative to cwd.
func DefaultProjectPath() string {
	return filepath.Join(".loopkit", "config.json")
}

// DefaultJournalPath returns the journal database path under XDG_DATA_HOME.
func DefaultJournalPath() string {
	return filepath.Join(xdg.DataHome, "loopkit", "journal.db")
}
