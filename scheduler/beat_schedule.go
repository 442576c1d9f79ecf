package scheduler

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from YAML strings such as "30s" or "1h"
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// BeatEntry schedules one task either every interval or on a cron expression
type BeatEntry struct {
	Name  string   `yaml:"name"`
	Task  string   `yaml:"task"`
	Every Duration `yaml:"every"`
	Cron  string   `yaml:"cron"`
}

// BeatSchedule is the list of periodic tasks run by beat
type BeatSchedule struct {
	Entries []BeatEntry `yaml:"entries"`
}

// DefaultBeatSchedule is used when no schedule file is configured
func DefaultBeatSchedule() BeatSchedule {
	return BeatSchedule{
		Entries: []BeatEntry{
			{Name: "heartbeat-every-30-seconds", Task: TaskHeartbeat, Every: Duration{30 * time.Second}},
			{Name: "sync-cron-jobs", Task: TaskSyncCronJobs, Every: Duration{5 * time.Minute}},
			{Name: "cleanup-run-logs", Task: TaskCleanupRunLogs, Cron: "0 * * * *"},
		},
	}
}

// LoadBeatSchedule reads a YAML beat schedule. An empty path yields the default schedule.
func LoadBeatSchedule(path string) (BeatSchedule, error) {
	if path == "" {
		return DefaultBeatSchedule(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultBeatSchedule(), nil
		}
		return BeatSchedule{}, fmt.Errorf("read beat schedule %s: %w", path, err)
	}

	return ParseBeatSchedule(data)
}

// ParseBeatSchedule decodes and validates a YAML beat schedule
func ParseBeatSchedule(data []byte) (BeatSchedule, error) {
	var schedule BeatSchedule
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return BeatSchedule{}, fmt.Errorf("parse beat schedule: %w", err)
	}
	if err := schedule.Validate(); err != nil {
		return BeatSchedule{}, err
	}
	return schedule, nil
}

// Validate checks that every entry has a name, a task and exactly one timing
func (s BeatSchedule) Validate() error {
	seen := make(map[string]bool, len(s.Entries))
	for i, e := range s.Entries {
		if e.Name == "" {
			return fmt.Errorf("beat entry %d: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("beat entry %q: duplicate name", e.Name)
		}
		seen[e.Name] = true

		if e.Task == "" {
			return fmt.Errorf("beat entry %q: task is required", e.Name)
		}
		hasEvery := e.Every.Duration > 0
		hasCron := e.Cron != ""
		if hasEvery == hasCron {
			return fmt.Errorf("beat entry %q: exactly one of every or cron is required", e.Name)
		}
	}
	return nil
}
