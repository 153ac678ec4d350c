// Package scheduler runs registered jobs on cron schedules. Jobs run
// exactly once at a time: an overlapping tick is skipped, never queued,
// and there are no automatic retries because order placement is not
// idempotent.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/autoinvest/pkg/logger"
)

// Scheduler manages scheduled jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
	mu     sync.Mutex
	jobs   map[string]*jobState
}

type jobState struct {
	job     Job
	running bool
	last    *JobResult
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: log,
		jobs:   make(map[string]*jobState),
	}
}

// AddJob registers a job under its schedule.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	state := &jobState{job: job}
	if _, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(state)
	}); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = state

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob fires a job immediately, outside its schedule.
func (s *Scheduler) RunJob(name string) error {
	s.mu.Lock()
	state, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	go s.runJob(state)
	return nil
}

// LastResult returns the most recent execution record for a job.
func (s *Scheduler) LastResult(name string) (*JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return state.last, nil
}

func (s *Scheduler) runJob(state *jobState) {
	name := state.job.Name()

	s.mu.Lock()
	if state.running {
		s.mu.Unlock()
		// The previous run is still going; a cycle must never overlap
		// the next one.
		s.logger.WithField("job", name).Warn("Previous run still active, skipping tick")
		return
	}
	state.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.WithField("job", name).Debug("Job started")

	err := state.job.Run(context.Background())
	duration := time.Since(start)

	result := &JobResult{
		JobName:   name,
		StartTime: start,
		Duration:  duration,
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	state.running = false
	state.last = result
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"job":      name,
			"duration": duration,
		}).Error("Job failed")
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"duration": duration,
	}).Debug("Job completed")
}
