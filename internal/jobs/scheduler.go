// Package jobs runs periodic maintenance tasks such as property cache
// refreshes and rate limit cleanup.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task is one run of a scheduled job.
type Task func(ctx context.Context) error

// Scheduler manages scheduled execution of tasks via cron
type Scheduler struct {
	cron       *cron.Cron
	timeout    time.Duration
	jobEntries map[string]cron.EntryID // job name -> cron entry ID
	jobsMu     sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewScheduler creates a scheduler. Each run gets its own context bounded
// by timeout.
func NewScheduler(timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if timeout <= 0 {
		timeout = time.Minute
	}

	// Accept both 5-field expressions ("*/5 * * * *") and 6-field ones with
	// seconds, plus descriptors like "@every 10m".
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout:    timeout,
		jobEntries: make(map[string]cron.EntryID),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	log.Info().Int("scheduled_jobs", len(s.Scheduled())).Msg("Starting job scheduler")
	s.cron.Start()
}

// Stop gracefully shuts down the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping job scheduler")
	s.cancel()

	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("All scheduled jobs completed")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Scheduler shutdown timeout - some jobs may not have completed")
	}
}

// Schedule adds or replaces the job called name.
func (s *Scheduler) Schedule(name, expression string, task Task) error {
	if expression == "" {
		return fmt.Errorf("job %s: empty schedule", name)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if existingID, exists := s.jobEntries[name]; exists {
		s.cron.Remove(existingID)
		delete(s.jobEntries, name)
		log.Debug().Str("job", name).Msg("Removed existing cron schedule")
	}

	entryID, err := s.cron.AddFunc(expression, func() {
		s.run(name, task)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("job", name).
			Str("schedule", expression).
			Msg("Failed to add cron schedule")
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.jobEntries[name] = entryID
	log.Info().
		Str("job", name).
		Str("schedule", expression).
		Uint("entry_id", uint(entryID)).
		Msg("Job scheduled successfully")

	return nil
}

// Unschedule removes a job's cron schedule
func (s *Scheduler) Unschedule(name string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if entryID, exists := s.jobEntries[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobEntries, name)
		log.Info().Str("job", name).Msg("Job unscheduled")
	}
}

// Scheduled returns the names of the scheduled jobs, sorted.
func (s *Scheduler) Scheduled() []string {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	names := make([]string, 0, len(s.jobEntries))
	for name := range s.jobEntries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns when the named job runs next. The zero time means the
// job is unknown or the scheduler is not started.
func (s *Scheduler) NextRun(name string) time.Time {
	s.jobsMu.RLock()
	id, ok := s.jobEntries[name]
	s.jobsMu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) run(name string, task Task) {
	if s.ctx.Err() != nil {
		return
	}

	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := task(ctx)
	logger := log.With().Str("job", name).Str("run_id", runID).Dur("duration", time.Since(start)).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("Scheduled job failed")
		return
	}
	logger.Debug().Msg("Scheduled job completed")
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
