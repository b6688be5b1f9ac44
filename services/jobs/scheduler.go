package jobs

import (
	"context"
	"sync"
	"time"

	"law_flow_notify/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job names, used for the guard, logs and metrics
const (
	JobInactivityScan = "inactivity_scan"
	JobWeeklyDigest   = "weekly_digest"
)

// JobGuard allows at most one run per job name at a time inside the process
type JobGuard struct {
	mu      sync.Mutex
	running map[string]bool
}

func NewJobGuard() *JobGuard {
	return &JobGuard{running: make(map[string]bool)}
}

// TryRun runs fn unless a job with the same name is already running.
// It reports whether fn ran.
func (g *JobGuard) TryRun(name string, fn func()) bool {
	g.mu.Lock()
	if g.running[name] {
		g.mu.Unlock()
		return false
	}
	g.running[name] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.running, name)
		g.mu.Unlock()
	}()
	fn()
	return true
}

// Running reports whether name is currently running
func (g *JobGuard) Running(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[name]
}

// Scheduler runs the periodic jobs on cron schedules. Cron triggered runs
// and manual runs share the same guard.
type Scheduler struct {
	cron    *cron.Cron
	guard   *JobGuard
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewScheduler(loc *time.Location, guard *JobGuard, m *metrics.Metrics, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{cron: c, guard: guard, metrics: m, log: log}
}

// Add schedules job under name with a standard five field cron spec
func (s *Scheduler) Add(name, spec string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Info().Str("job", name).Msg("scheduled job triggered")
		s.Run(context.Background(), name, job)
	})
	return err
}

// Run executes job now unless it is already running. It reports whether
// the job ran.
func (s *Scheduler) Run(ctx context.Context, name string, job func(ctx context.Context) error) bool {
	ran := s.guard.TryRun(name, func() {
		start := time.Now()
		err := job(ctx)
		log := s.log.With().Str("job", name).Dur("duration", time.Since(start)).Logger()
		if err != nil {
			log.Error().Err(err).Msg("job failed")
			s.countRun(name, "error")
			return
		}
		log.Info().Msg("job completed")
		s.countRun(name, "success")
	})
	if !ran {
		s.log.Warn().Str("job", name).Msg("job already running, skipped")
		s.countRun(name, "skipped")
	}
	return ran
}

func (s *Scheduler) countRun(name, outcome string) {
	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(name, outcome).Inc()
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("entries", len(s.cron.Entries())).Msg("job scheduler started")
}

// Stop stops the cron loop and waits for running jobs, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
