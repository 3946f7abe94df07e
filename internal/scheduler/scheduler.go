// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Recorder receives job run outcomes. pkg/metrics implements it.
type Recorder interface {
	RecordJob(name string, d time.Duration, err error)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	log      zerolog.Logger
	recorder Recorder

	mu   sync.Mutex
	jobs map[string]registration
}

type registration struct {
	id       cron.EntryID
	job      Job
	schedule string
}

// JobStatus describes a registered job
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	NextRun  *time.Time `json:"next_run"`
}

// New creates a new scheduler. Schedules are evaluated in loc (UTC when nil).
// A job still running when its next tick fires is skipped for that tick.
func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	l := log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: l}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:  l,
		jobs: make(map[string]registration),
	}
}

// SetRecorder attaches a metrics recorder
func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "0 5 9 * * *"        - 09:05 every day
//   - "@every 30s"         - Every 30 seconds
//
// Job names must be unique.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s is already registered", job.Name())
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	s.jobs[job.Name()] = registration{id: id, job: job, schedule: schedule}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(job)
}

// RunByName executes the registered job name immediately
func (s *Scheduler) RunByName(name string) error {
	s.mu.Lock()
	reg, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return domain.NotFound("job", name)
	}
	return s.RunNow(reg.job)
}

// Jobs lists the registered jobs sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	regs := make([]registration, 0, len(s.jobs))
	for _, reg := range s.jobs {
		regs = append(regs, reg)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(regs))
	for _, reg := range regs {
		st := JobStatus{Name: reg.job.Name(), Schedule: reg.schedule}
		if entry := s.cron.Entry(reg.id); entry.Valid() && !entry.Next.IsZero() {
			next := entry.Next
			st.NextRun = &next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NextRun returns when a registered job fires next. ok is false for an
// unknown job or before Start.
func (s *Scheduler) NextRun(name string) (next time.Time, ok bool) {
	s.mu.Lock()
	reg, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return time.Time{}, false
	}
	entry := s.cron.Entry(reg.id)
	if !entry.Valid() || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

func (s *Scheduler) run(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	start := time.Now()

	err := job.Run()
	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordJob(job.Name(), elapsed, err)
	}

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("duration", elapsed).
			Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", job.Name()).Dur("duration", elapsed).Msg("Job completed")
	return nil
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
