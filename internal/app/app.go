// Package app assembles the daemon: config manager, logging, journal,
// event bus, runner, scheduler, and alerter.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cronpoll/internal/alert"
	"cronpoll/internal/config"
	"cronpoll/internal/eventbus"
	"cronpoll/internal/job"
	"cronpoll/internal/runner"
	"cronpoll/internal/scheduler"
	"cronpoll/internal/storage"
	logx "cronpoll/pkg/logx"
)

// pruneJobName is the internal maintenance job registered on the scheduler
// when journal retention is configured. The reserved prefix keeps it out of
// the way of user job names.
const pruneJobName = "_journal.prune"

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	run     *runner.Service
	sched   *scheduler.Service
	alerter *alert.Service

	// prod is the live production gate. Flipped on config reload unless
	// CRONPOLL_ENV pins it.
	prod    atomic.Bool
	envPins bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lastApplied is the config currently in effect, used to diff reloads.
	// Only touched by the reload goroutine after Start.
	lastApplied *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorage(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
		}
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
	}
	a.envPins = strings.TrimSpace(os.Getenv("CRONPOLL_ENV")) != ""
	a.prod.Store(productionGate(cfg))

	runCfg, err := mapRunner(cfg)
	if err != nil {
		return nil, err
	}
	runCfg.Gate = func() bool { return a.prod.Load() }
	a.run = runner.New(runCfg, log.With(logx.String("comp", "runner")), bus)

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), bus, a.run, nil)

	if cfg.Alerts != nil {
		al, err := alert.New(mapAlerts(cfg.Alerts), bus, log.With(logx.String("comp", "alert")))
		if err != nil {
			return nil, err
		}
		a.alerter = al
	}

	cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return c.Validate() })
	a.lastApplied = cfg
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	if !a.prod.Load() {
		a.log.Warn("not in production; due jobs will be journaled as suppressed, not executed")
	}

	a.run.Start(runCtx)
	a.registerJobs(cfg)
	a.registerMaintenance(cfg)
	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	} else {
		a.log.Warn("scheduler disabled; no jobs will fire")
	}
	a.alerter.Start()

	if a.store != nil {
		a.logJournalTail(runCtx)
		a.startJournal(runCtx)
	}
	a.startReload(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watch exited", logx.Err(err))
		}
	}()

	a.log.Info("started", logx.Int("jobs", len(cfg.Jobs)), logx.Bool("production", a.prod.Load()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop(ctx)
	a.run.Stop(ctx)
	a.alerter.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown deadline reached; background loops abandoned")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// registerJobs upserts every enabled job from cfg and removes jobs that
// disappeared. A job whose schedule or command fails to parse is skipped,
// logged, and does not affect its siblings.
func (a *App) registerJobs(cfg *config.Config) {
	want := map[string]bool{}
	for _, jc := range cfg.Jobs {
		if !jc.IsEnabled() {
			continue
		}
		want[jc.Name] = true

		body, err := job.Command(jc.Command, a.log.With(logx.String("job", jc.Name)))
		if err != nil {
			a.log.Error("job command rejected", logx.String("job", jc.Name), logx.Err(err))
			delete(want, jc.Name)
			continue
		}
		timeout, err := config.ParseDurationField("timeout", jc.Timeout)
		if err != nil {
			a.log.Error("job timeout rejected", logx.String("job", jc.Name), logx.Err(err))
			delete(want, jc.Name)
			continue
		}
		opt := scheduler.JobOptions{AllowOverlap: jc.AllowOverlap}
		if _, err := a.sched.AddJob(jc.Name, jc.Schedule, timeout, opt, body); err != nil {
			// Already logged with the schedule by AddJob.
			delete(want, jc.Name)
		}
	}

	for _, info := range a.sched.Snapshot().Jobs {
		if info.Name == pruneJobName {
			continue
		}
		if !want[info.Name] {
			a.sched.Remove(info.Name)
		}
	}
}

// registerMaintenance installs the nightly journal prune job when retention
// is configured.
func (a *App) registerMaintenance(cfg *config.Config) {
	if a.store == nil || cfg.Storage == nil {
		return
	}
	keep, err := config.ParseDurationField("storage.retention", cfg.Storage.Retention)
	if err != nil || keep <= 0 {
		a.sched.Remove(pruneJobName)
		return
	}
	store := a.store
	_, err = a.sched.AddJob(pruneJobName, "0 3 * * *", time.Minute, scheduler.JobOptions{},
		func(ctx context.Context) error {
			return store.Prune(ctx, keep)
		})
	if err != nil {
		a.log.Error("maintenance job registration failed", logx.Err(err))
	}
}

// logJournalTail surfaces the most recent journaled outcomes at startup so
// an operator can see across restarts whether runs have been healthy.
func (a *App) logJournalTail(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	recs, err := a.store.RecentRuns(rctx, "", 20)
	if err != nil {
		a.log.Warn("journal read failed", logx.Err(err))
		return
	}
	if len(recs) == 0 {
		return
	}
	ok, failed, suppressed := summarizeRuns(recs)
	a.log.Info("journal tail",
		logx.Int("runs", len(recs)), logx.Int("ok", ok),
		logx.Int("failed", failed), logx.Int("suppressed", suppressed),
		logx.Time("newest", recs[0].At))
}

func summarizeRuns(recs []storage.RunRecord) (ok, failed, suppressed int) {
	for _, r := range recs {
		switch {
		case r.Suppressed:
			suppressed++
		case r.OK:
			ok++
		default:
			failed++
		}
	}
	return ok, failed, suppressed
}

// startJournal copies run outcomes from the bus into the store.
func (a *App) startJournal(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				rec, ok := journalRecord(e)
				if !ok {
					continue
				}
				wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := a.store.AppendRun(wctx, rec); err != nil {
					a.log.Warn("journal append failed", logx.String("job", rec.Job), logx.Err(err))
				}
				cancel()
			}
		}
	}()
}

func journalRecord(e eventbus.Event) (storage.RunRecord, bool) {
	re, ok := e.Data.(runner.RunEvent)
	if !ok {
		return storage.RunRecord{}, false
	}
	rec := storage.RunRecord{
		At:         re.Started,
		Job:        re.Name,
		DurationMS: re.Duration.Milliseconds(),
		Attempts:   re.Attempts,
		Error:      re.Error,
	}
	if rec.At.IsZero() {
		rec.At = e.Time
	}
	switch e.Topic {
	case eventbus.TopicRunFinished:
		rec.OK = true
	case eventbus.TopicRunFailed:
	case eventbus.TopicRunSuppressed:
		rec.Suppressed = true
	default:
		return storage.RunRecord{}, false
	}
	return rec, true
}

// startReload applies committed config changes to the running services.
func (a *App) startReload(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the newest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(ctx, cfg)
			}
		}
	}()
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg))

	if !a.envPins {
		prev := a.prod.Load()
		a.prod.Store(cfg.Production)
		if prev != cfg.Production {
			a.log.Info("production gate changed", logx.Bool("production", cfg.Production))
		}
	}

	if runCfg, err := mapRunner(cfg); err != nil {
		a.log.Warn("invalid runner config; keeping previous", logx.Err(err))
	} else {
		runCfg.Gate = func() bool { return a.prod.Load() }
		a.run.Apply(runCfg)
	}

	prevEnabled := a.sched.Enabled()
	if schedCfg, err := mapScheduler(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(schedCfg)
		switch {
		case prevEnabled && !schedCfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		case !prevEnabled && schedCfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	a.registerJobs(cfg)
	a.registerMaintenance(cfg)

	// Storage and alert transports hold connections; swapping them live is
	// not worth the complexity.
	if storageChanged(a.lastApplied, cfg) {
		a.log.Warn("storage config changed; restart required to take effect")
	}
	a.lastApplied = cfg

	a.log.Info("config reloaded", logx.Int("jobs", len(cfg.Jobs)))
}

func storageChanged(old, new *config.Config) bool {
	if old == nil || new == nil {
		return false
	}
	o, n := old.Storage, new.Storage
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	return o.Driver != n.Driver || o.Path != n.Path
}

// productionGate resolves the effective gate: CRONPOLL_ENV wins over the
// config flag when set.
func productionGate(cfg *config.Config) bool {
	if env := strings.TrimSpace(os.Getenv("CRONPOLL_ENV")); env != "" {
		return env == "production"
	}
	return cfg.Production
}

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapRunner(cfg *config.Config) (runner.Config, error) {
	defTimeout, err := config.ParseDurationField("runner.default_timeout", cfg.Runner.DefaultTimeout)
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Workers:        cfg.Runner.Workers,
		QueueSize:      cfg.Runner.QueueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    cfg.Runner.HistorySize,
		RetryMax:       cfg.Runner.RetryMax,
	}, nil
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		PollInterval: poll,
		Timezone:     cfg.Scheduler.Timezone,
	}, nil
}

func mapStorage(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func mapAlerts(ac *config.AlertsConfig) alert.Config {
	return alert.Config{
		Enabled:    ac.Enabled,
		Token:      ac.Token,
		ChatID:     ac.ChatID,
		RatePerSec: float64(ac.RatePerSec),
	}
}
