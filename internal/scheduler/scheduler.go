// Package scheduler runs dailymail stages on cron schedules when the
// pipeline is deployed as a single long-running process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skehlet/dailymail/infrastructure/logger"
)

// ErrUnknownJob is returned by Trigger for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is one scheduled stage.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Entry describes a registered job.
type Entry struct {
	Name    string
	Spec    string
	NextRun time.Time
}

// Scheduler wraps a cron instance. Each job is wrapped in
// SkipIfStillRunning so a slow run never overlaps its next tick, and jobs
// never run concurrently with each other.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	loc    *time.Location
	log    logger.Logger
	runMu  sync.Mutex

	mu      sync.RWMutex
	ctx     context.Context
	jobs    map[string]Job
	entries map[string]cron.EntryID
}

// New creates a Scheduler evaluating specs in loc (UTC when nil).
func New(loc *time.Location, log logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		parser:  parser,
		loc:     loc,
		log:     log,
		ctx:     context.Background(),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job. An empty spec disables the job.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		s.log.Info("job disabled", logger.String("job", job.Name))
		return nil
	}
	sched, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", job.Name, job.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already scheduled", job.Name)
	}

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: s.log})).
		Then(cron.FuncJob(func() { s.execute(job) }))

	id := s.cron.Schedule(sched, wrapped)
	s.jobs[job.Name] = job
	s.entries[job.Name] = id

	s.log.Info("job scheduled",
		logger.String("job", job.Name),
		logger.String("schedule", job.Spec),
		logger.Time("next_run", sched.Next(time.Now().In(s.loc))),
	)
	return nil
}

// Entries lists registered jobs with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.jobs))
	for name, job := range s.jobs {
		out = append(out, Entry{Name: name, Spec: job.Spec, NextRun: s.nextRun(job.Spec)})
	}
	return out
}

// Trigger runs a registered job immediately on the calling goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownJob)
	}
	return s.runJob(ctx, job)
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.Entries())))

	<-ctx.Done()

	s.log.Info("scheduler stopping, waiting for running jobs")
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) execute(job Job) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	_ = s.runJob(ctx, job)
}

func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	s.log.Info("job started", logger.String("job", job.Name))

	err := job.Run(ctx)
	if err != nil {
		s.log.Error("job failed",
			logger.String("job", job.Name),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return err
	}

	s.log.Info("job finished",
		logger.String("job", job.Name),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Scheduler) nextRun(spec string) time.Time {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now().In(s.loc))
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
