package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tz := s.cfg.Timezone
	if tz == "" {
		if s.loc != nil {
			tz = s.loc.String()
		} else {
			tz = time.Local.String()
		}
	}

	jobs := make([]JobInfo, 0, len(s.defs))
	for _, d := range s.defs {
		jobs = append(jobs, JobInfo{
			ID:           d.id,
			Name:         d.name,
			Expression:   d.expr,
			Timeout:      d.timeout,
			LastFired:    d.eval.LastFired(),
			AllowOverlap: d.opt.AllowOverlap,
		})
	}

	return Snapshot{
		Enabled:      s.cfg.Enabled,
		Timezone:     tz,
		PollInterval: s.pollIntervalLocked(),
		Jobs:         jobs,
	}
}
