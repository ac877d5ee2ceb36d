package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "cronpoll/pkg/logx"
)

// Store is the journal API used by the app.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	// RecentRuns returns up to limit records, newest first. An empty job
	// name matches all jobs. The app reads the tail at startup to report
	// run health across restarts.
	RecentRuns(ctx context.Context, job string, limit int) ([]RunRecord, error)
	// Prune drops records older than keep. The app schedules this as an
	// internal maintenance job.
	Prune(ctx context.Context, keep time.Duration) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
