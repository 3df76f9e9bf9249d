package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// jobEntry is a registered scheduled job with run metadata
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
}

// Scheduler runs the recurring maintenance jobs on cron schedules:
// queue depth monitoring, trigger-list polling, review expiry, file
// cleanup and the master sync. A job never overlaps itself; a run that
// would overlap is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

// NewScheduler creates a scheduler with seconds-resolution cron expressions
func NewScheduler(logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob adds a named job on a 6-field cron schedule.
// Registration must happen before Start.
func (s *Scheduler) RegisterJob(name, schedule string, handler func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	entry := &jobEntry{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}
	cronID, err := s.cron.AddFunc(schedule, func() { s.run(entry) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %q: %w", schedule, name, err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job", name).
		Str("schedule", schedule).
		Msg("Scheduled job registered")
	return nil
}

// Start begins executing schedules
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for running jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// run executes one job, skipping if the previous run is still going
func (s *Scheduler) run(entry *jobEntry) {
	s.mu.Lock()
	if entry.isRunning {
		s.mu.Unlock()
		s.logger.Warn().Str("job", entry.name).Msg("Previous run still in progress, skipping")
		return
	}
	entry.isRunning = true
	s.mu.Unlock()

	startTime := time.Now()
	err := entry.handler()

	s.mu.Lock()
	entry.isRunning = false
	now := time.Now().UTC()
	entry.lastRun = &now
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job", entry.name).
			Dur("duration", time.Since(startTime)).
			Msg("Scheduled job failed")
		return
	}
	s.logger.Debug().
		Str("job", entry.name).
		Dur("duration", time.Since(startTime)).
		Msg("Scheduled job completed")
}
