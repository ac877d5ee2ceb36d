package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "cronpoll/pkg/logx"
)

func openTestFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "runs.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileStoreAppendAndRecent(t *testing.T) {
	t.Parallel()
	st := openTestFileStore(t)
	ctx := context.Background()

	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := RunRecord{
			At:         base.Add(time.Duration(i) * time.Minute),
			Job:        "backup",
			DurationMS: int64(100 + i),
			Attempts:   1,
			OK:         true,
		}
		if err := st.AppendRun(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := st.AppendRun(ctx, RunRecord{At: base.Add(time.Hour), Job: "cleanup", Attempts: 2, OK: false, Error: "exit status 1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("want 4 records, got %d", len(all))
	}
	if all[0].Job != "cleanup" {
		t.Fatalf("want newest first, got %q", all[0].Job)
	}

	backups, err := st.RecentRuns(ctx, "backup", 2)
	if err != nil {
		t.Fatalf("recent filtered: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("want 2 filtered records, got %d", len(backups))
	}
	for _, r := range backups {
		if r.Job != "backup" {
			t.Fatalf("filter leaked job %q", r.Job)
		}
	}
	if !backups[0].At.After(backups[1].At) {
		t.Fatalf("filtered records not newest first: %v then %v", backups[0].At, backups[1].At)
	}
}

func TestFileStorePrune(t *testing.T) {
	t.Parallel()
	st := openTestFileStore(t)
	ctx := context.Background()

	old := RunRecord{At: time.Now().Add(-48 * time.Hour), Job: "old", OK: true}
	fresh := RunRecord{At: time.Now(), Job: "fresh", OK: true}
	for _, r := range []RunRecord{old, fresh} {
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := st.Prune(ctx, 24*time.Hour); err != nil {
		t.Fatalf("prune: %v", err)
	}

	recs, err := st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 || recs[0].Job != "fresh" {
		t.Fatalf("prune kept wrong records: %+v", recs)
	}

	// Appends after a prune must land in the rewritten file.
	if err := st.AppendRun(ctx, RunRecord{At: time.Now(), Job: "after", OK: true}); err != nil {
		t.Fatalf("append after prune: %v", err)
	}
	recs, err = st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 records after prune+append, got %d", len(recs))
	}
}

func TestFilePruneFailureKeepsJournalUsable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.AppendRun(ctx, RunRecord{At: time.Now().Add(-48 * time.Hour), Job: "old", OK: true}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A directory squatting on the temp path makes the rewrite fail before
	// the journal handle is swapped.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := st.Prune(ctx, 24*time.Hour); err == nil {
		t.Fatal("expected prune failure")
	}

	// The store must still accept appends after the failed prune.
	if err := st.AppendRun(ctx, RunRecord{At: time.Now(), Job: "after", OK: true}); err != nil {
		t.Fatalf("append after failed prune: %v", err)
	}
	recs, err := st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %d", len(recs))
	}
}

func TestFileStoreClosedAppend(t *testing.T) {
	t.Parallel()
	st := openTestFileStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.AppendRun(context.Background(), RunRecord{Job: "late"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: want nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("want error for unknown driver")
	}
}
