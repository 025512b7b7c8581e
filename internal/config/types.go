package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Duration is a time.Duration that marshals to and from JSON as a
// human-readable string ("1s", "250ms"). Bare numbers are accepted as
// seconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// TaskConfig describes one task in the configured group.
type TaskConfig struct {
	Name     string   `json:"name"`
	Steps    int      `json:"steps"`
	Interval Duration `json:"interval"`        // suspension between steps
	After    []string `json:"after,omitempty"` // group members that must complete first
}

// JournalConfig controls run-history persistence.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // empty means the default data dir
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `json:"level"`
}

// RunnerConfig is the top-level configuration.
type RunnerConfig struct {
	Group   []TaskConfig  `json:"group"`
	Journal JournalConfig `json:"journal"`
	Log     LogConfig     `json:"log"`
}

// Validate checks the configured group for problems that would be rejected
// at submission anyway, so they surface before anything runs.
func (c *RunnerConfig) Validate() error {
	seen := make(map[string]bool, len(c.Group))
	for _, task := range c.Group {
		if task.Name == "" {
			return errors.New("config: task with empty name")
		}
		if seen[task.Name] {
			return fmt.Errorf("config: duplicate task name %q", task.Name)
		}
		seen[task.Name] = true
		if task.Steps < 0 {
			return fmt.Errorf("config: task %q has negative steps", task.Name)
		}
		if task.Interval < 0 {
			return fmt.Errorf("config: task %q has negative interval", task.Name)
		}
	}
	for _, task := range c.Group {
		for _, dep := range task.After {
			if !seen[dep] {
				return fmt.Errorf("config: task %q waits for unknown task %q", task.Name, dep)
			}
		}
	}
	return nil
}
