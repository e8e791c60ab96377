// Package scheduler runs linkpost's periodic jobs.
// Uses robfig/cron for cron expression parsing and execution.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages recurring jobs using cron expressions.
type Scheduler struct {
	// jobs stores registered jobs indexed by ID.
	jobs map[string]*Job

	// cron is the real cron scheduler from robfig/cron.
	cron *cron.Cron

	// cronIDs maps job IDs to their cron entry IDs for removal.
	cronIDs map[string]cron.EntryID

	// runningJobs tracks which jobs are currently executing to prevent
	// duplicate runs when a cron fires while the previous run is still active.
	runningJobs map[string]bool

	// jobTimeout is the maximum time a single job execution can take.
	jobTimeout time.Duration

	logger *slog.Logger
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Job represents a recurring task.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id"`

	// Schedule is the cron expression or shorthand.
	// Supports: standard 5-field cron, @hourly, @every 10s, etc.
	Schedule string `json:"schedule"`

	// Type is "cron" (expression) or "every" (bare interval such as "10s").
	Type string `json:"type"`

	// Enabled indicates if the job is active.
	Enabled bool `json:"enabled"`

	// Run is called every time the job fires.
	Run Handler `json:"-"`

	CreatedAt       time.Time     `json:"created_at"`
	LastRunAt       *time.Time    `json:"last_run_at,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	RunCount        int           `json:"run_count"`
	LastRunDuration time.Duration `json:"last_run_duration,omitempty"`
}

// Handler executes a job.
type Handler func(ctx context.Context, job *Job) error

// New creates a new Scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:        make(map[string]*Job),
		cronIDs:     make(map[string]cron.EntryID),
		runningJobs: make(map[string]bool),
		jobTimeout:  time.Minute,
		logger:      logger.With("component", "scheduler"),
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
	}
}

// SetJobTimeout bounds a single execution.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobTimeout = d
}

// Add registers a new job. Enabled jobs are scheduled right away; they
// start firing once the scheduler is started.
func (s *Scheduler) Add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already exists", job.ID)
	}
	if job.Schedule == "" {
		return fmt.Errorf("job schedule is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no handler", job.ID)
	}

	job.CreatedAt = time.Now()
	if job.Type == "" {
		job.Type = "cron"
	}

	if job.Enabled {
		if err := s.scheduleCronJob(job); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
		}
	}
	s.jobs[job.ID] = job

	s.logger.Info("job added", "id", job.ID, "schedule", job.Schedule, "type", job.Type)
	return nil
}

// Remove deletes a job by ID.
func (s *Scheduler) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return fmt.Errorf("job %q not found", jobID)
	}
	if entryID, ok := s.cronIDs[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, jobID)
	}
	delete(s.jobs, jobID)

	s.logger.Info("job removed", "id", jobID)
	return nil
}

// Get returns a job by ID.
func (s *Scheduler) Get(jobID string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

// NextRun returns when the job fires next. It is only known once the
// scheduler is running.
func (s *Scheduler) NextRun(jobID string) (time.Time, bool) {
	s.mu.RLock()
	entryID, ok := s.cronIDs[jobID]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(entryID).Next
	return next, !next.IsZero()
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	jobCount := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", jobCount, "cron_entries", len(s.cron.Entries()))
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(jobID string) error {
	job, ok := s.Get(jobID)
	if !ok {
		return fmt.Errorf("job %q not found", jobID)
	}
	s.executeJob(job)
	return nil
}

// ---------- Internal ----------

// scheduleCronJob registers a job with the cron scheduler. Caller holds mu.
func (s *Scheduler) scheduleCronJob(job *Job) error {
	schedule := job.Schedule
	if job.Type == "every" && schedule[0] != '@' {
		schedule = "@every " + schedule
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(job)
	})
	if err != nil {
		return err
	}
	s.cronIDs[job.ID] = entryID
	return nil
}

// executeJob runs a job with safety guards:
// - Per-job flag prevents duplicate concurrent runs
// - Panic recovery isolates errors so one bad job doesn't crash others
// - Timeout prevents stalls
func (s *Scheduler) executeJob(job *Job) {
	s.mu.Lock()
	if s.runningJobs[job.ID] {
		s.mu.Unlock()
		s.logger.Debug("skipping job (already running)", "id", job.ID)
		return
	}
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	if base.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.runningJobs[job.ID] = true
	now := time.Now()
	job.LastRunAt = &now
	job.RunCount++
	timeout := s.jobTimeout
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.runningJobs, job.ID)
		s.mu.Unlock()
		s.wg.Done()

		if r := recover(); r != nil {
			s.mu.Lock()
			job.LastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
			s.logger.Error("scheduled job panicked", "id", job.ID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	runStart := time.Now()
	err := job.Run(ctx, job)
	runDuration := time.Since(runStart)

	s.mu.Lock()
	job.LastRunDuration = runDuration
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed", "id", job.ID, "error", err, "duration", runDuration)
	} else {
		s.logger.Debug("scheduled job completed", "id", job.ID, "duration", runDuration)
	}
}
