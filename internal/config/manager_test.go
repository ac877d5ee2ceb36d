package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"scheduler": {"enabled": true, "poll_interval": "30s", "timezone": "UTC"},
		"runner": {"workers": 4},
		"production": true,
		"jobs": [
			{"name": "report", "schedule": "0 9 * * 1", "command": "make report", "timeout": "5m"}
		]
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Production {
		t.Fatal("production flag not parsed")
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0].Name != "report" {
		t.Fatalf("jobs not parsed: %+v", cfg.Jobs)
	}
	if !cfg.Jobs[0].IsEnabled() {
		t.Fatal("omitted enabled must default to true")
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", strings.Join([]string{
		"logging:",
		"  level: info",
		"  console: true",
		"  file:",
		"    enabled: false",
		"    path: \"\"",
		"scheduler:",
		"  enabled: true",
		"runner: {}",
		"jobs:",
		"  - name: cleanup",
		"    schedule: \"30 2 * * *\"",
		"    command: \"rm -rf /tmp/scratch\"",
		"    enabled: false",
	}, "\n"))

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(cfg.Jobs))
	}
	if cfg.Jobs[0].IsEnabled() {
		t.Fatal("explicit enabled:false must stick")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"scheduler": {"enabled": true, "workerz": 3}, "jobs": []}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "empty", cfg: Config{}, ok: true},
		{
			name: "valid job",
			cfg:  Config{Jobs: []JobConfig{{Name: "a", Schedule: "* * * * *", Command: "true"}}},
			ok:   true,
		},
		{
			name: "missing name",
			cfg:  Config{Jobs: []JobConfig{{Schedule: "* * * * *", Command: "true"}}},
			ok:   false,
		},
		{
			name: "duplicate name",
			cfg: Config{Jobs: []JobConfig{
				{Name: "a", Schedule: "* * * * *", Command: "true"},
				{Name: "a", Schedule: "* * * * *", Command: "true"},
			}},
			ok: false,
		},
		{
			name: "missing command",
			cfg:  Config{Jobs: []JobConfig{{Name: "a", Schedule: "* * * * *"}}},
			ok:   false,
		},
		{
			name: "bad timeout",
			cfg:  Config{Jobs: []JobConfig{{Name: "a", Schedule: "* * * * *", Command: "true", Timeout: "soon"}}},
			ok:   false,
		},
		{
			name: "bad poll interval",
			cfg:  Config{Scheduler: SchedulerConfig{PollInterval: "-1s"}},
			ok:   false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 42)
	if err != nil || d != 42 {
		t.Fatalf("got (%v, %v), want (42, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
