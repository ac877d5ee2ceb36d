package config

import (
	"fmt"
	"strings"
)

// Config is the full daemon configuration.
//
// The file may be JSON or YAML (by extension). Unknown keys are rejected so
// typos surface at load time instead of silently never scheduling a job.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Runner    RunnerConfig    `json:"runner"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Alerts    *AlertsConfig   `json:"alerts,omitempty"`

	// Production gates whether job commands actually execute. When false,
	// due jobs are journaled as suppressed instead of run. CRONPOLL_ENV
	// ("production" / anything else) overrides this flag at runtime.
	Production bool `json:"production"`

	Jobs []JobConfig `json:"jobs"`
}

// JobConfig declares one recurring job.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type JobConfig struct {
	Name string `json:"name"`

	// Schedule is a five-field cron expression:
	// minute hour day-of-month month day-of-week.
	// Day-of-week is 0=Sunday..6=Saturday; months are 1-12.
	Schedule string `json:"schedule"`

	// Command is a shell-quoted command line run on each fire.
	Command string `json:"command"`

	Timeout string `json:"timeout,omitempty"`

	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`

	// AllowOverlap permits a new run while the previous one is still
	// executing. Default is to skip.
	AllowOverlap bool `json:"allow_overlap,omitempty"`
}

func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

// SchedulerConfig controls the trigger poll loop.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// PollInterval is how often triggers are evaluated. Defaults to "60s".
	// The de-duplication window is fixed at 60s, so sub-minute polling is
	// safe but cannot make a job fire more than once per window.
	PollInterval string `json:"poll_interval,omitempty"`

	// Timezone is an IANA zone name used when decomposing the wall clock
	// into calendar fields. Empty means the host's local time.
	Timezone string `json:"timezone,omitempty"`
}

// RunnerConfig controls the execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 0 (no retries)
type RunnerConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig controls the optional run journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./cronpoll.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// Retention, when set, enables a nightly maintenance job that prunes
	// journal records older than this duration (e.g. "168h").
	Retention string `json:"retention,omitempty"`
}

// AlertsConfig controls Telegram failure alerts. Disabled unless a token and
// chat id are set.
type AlertsConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Validate checks the parts of the config that must be caught before a
// reload is committed. Job schedule expressions are deliberately NOT parsed
// here: a malformed schedule is fatal to that one job at registration time,
// not to the whole config (see scheduler registration).
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate job name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(j.Command) == "" {
			return fmt.Errorf("jobs[%d] (%s): command required", i, name)
		}
		if _, err := ParseDurationField(fmt.Sprintf("jobs[%d].timeout", i), j.Timeout); err != nil {
			return err
		}
	}
	if _, err := ParseDurationField("scheduler.poll_interval", c.Scheduler.PollInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("runner.default_timeout", c.Runner.DefaultTimeout); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("storage.retention", c.Storage.Retention); err != nil {
			return err
		}
	}
	return nil
}
