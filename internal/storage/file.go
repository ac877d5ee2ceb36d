package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "cronpoll/pkg/logx"
)

// fileStore is a dependency-free journal backend: one JSON object per line,
// append-only. Prune rewrites the file in place.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(_ context.Context, r RunRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}
	_, err = s.f.Write(b)
	return err
}

func (s *fileStore) RecentRuns(_ context.Context, job string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}

	// Newest first; the file is append-ordered so walk backwards.
	out := make([]RunRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		if job != "" && recs[i].Job != job {
			continue
		}
		out = append(out, recs[i])
	}
	return out, nil
}

func (s *fileStore) Prune(_ context.Context, keep time.Duration) error {
	if keep <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-keep)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}
	recs, err := s.readAllLocked()
	if err != nil {
		return err
	}
	kept := recs[:0]
	for _, r := range recs {
		if !r.At.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return nil
	}

	// Rewrite atomically: temp file + rename, then reopen for append.
	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tf)
	for _, r := range kept {
		b, err := json.Marshal(r)
		if err != nil {
			_ = tf.Close()
			return err
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			_ = tf.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tf.Close()
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}
	_ = s.f.Close()
	if err := os.Rename(tmp, s.path); err != nil {
		// The append handle is gone; leave the store disabled rather than
		// holding a closed *os.File that fails every later write.
		s.f = nil
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.f = nil
		return err
	}
	s.f = f
	s.log.Debug("journal pruned", logx.Int("dropped", len(recs)-len(kept)), logx.Int("kept", len(kept)))
	return nil
}

// readAllLocked parses every line of the journal. Corrupt lines (e.g. from a
// crash mid-append) are skipped, not fatal.
func (s *fileStore) readAllLocked() ([]RunRecord, error) {
	rf, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rf.Close()

	var recs []RunRecord
	sc := bufio.NewScanner(rf)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			s.log.Debug("skipping corrupt journal line", logx.Err(err))
			continue
		}
		recs = append(recs, r)
	}
	return recs, sc.Err()
}
