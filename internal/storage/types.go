package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the run journal.
//
// Driver values:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one journaled run outcome. Keep it compact and schema-stable.
type RunRecord struct {
	At         time.Time `json:"at"`
	Job        string    `json:"job"`
	DurationMS int64     `json:"duration_ms"`
	Attempts   int       `json:"attempts"`
	OK         bool      `json:"ok"`
	Suppressed bool      `json:"suppressed,omitempty"`
	Error      string    `json:"error,omitempty"`
}
