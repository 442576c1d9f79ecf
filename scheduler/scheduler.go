// Package scheduler provides scheduled job management for the backend.
// It handles:
// - Registration of persisted cron jobs, keyed by their record id
// - Periodic beat tasks (heartbeat, database resync, run log cleanup)
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/MOE349/tenmil-backend-sub001/metrics"
	"github.com/MOE349/tenmil-backend-sub001/models"
)

// ErrJobNotRegistered is returned when no job carries the given key
var ErrJobNotRegistered = errors.New("scheduler: job not registered")

// ErrRunDatePassed is returned when a one-off trigger lies in the past
var ErrRunDatePassed = errors.New("scheduler: run date already passed")

// Scheduler wraps gocron; every job is tagged with its key
type Scheduler struct {
	cron   *gocron.Scheduler
	logger *slog.Logger
	mu     sync.Mutex
	// triggers of the jobs added through AddJob, by key
	jobs map[string]models.Trigger
}

// NewScheduler creates a new scheduler running in loc
func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   gocron.NewScheduler(loc),
		logger: logger,
		jobs:   make(map[string]models.Trigger),
	}
}

// AddJob registers fn under key, replacing any job already using the key.
// A job still registered with an equal trigger is left alone so its next run
// is kept.
func (s *Scheduler) AddJob(key string, trigger models.Trigger, fn func()) error {
	if err := trigger.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.jobs[key]; ok && current.Equal(trigger) && s.HasJob(key) {
		return nil
	}
	_ = s.cron.RemoveByTag(key)
	delete(s.jobs, key)

	var err error
	switch trigger.Type {
	case models.TriggerInterval:
		d, _ := trigger.Interval()
		_, err = s.cron.Every(d).WaitForSchedule().Tag(key).Do(fn)
	case models.TriggerCron:
		expr, _ := trigger.CronExpression()
		_, err = s.cron.Cron(expr).Tag(key).Do(fn)
	case models.TriggerDate:
		runAt, _ := trigger.RunDate()
		if !runAt.After(time.Now()) {
			return fmt.Errorf("%w: %s", ErrRunDatePassed, runAt.Format(time.RFC3339))
		}
		_, err = s.cron.Every(1).Day().StartAt(runAt).LimitRunsTo(1).Tag(key).Do(fn)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", key, err)
	}
	s.jobs[key] = trigger

	metrics.SetScheduledJobs(s.cron.Len())
	s.logger.Debug("job scheduled", "job_key", key, "trigger_type", trigger.Type)
	return nil
}

// AddTask registers a beat task that runs every interval
func (s *Scheduler) AddTask(name string, every time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.cron.RemoveByTag(name)
	if _, err := s.cron.Every(every).SingletonMode().Tag(name).Do(fn); err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", name, err)
	}
	metrics.SetScheduledJobs(s.cron.Len())
	return nil
}

// AddCronTask registers a beat task on a cron expression
func (s *Scheduler) AddCronTask(name, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.cron.RemoveByTag(name)
	if _, err := s.cron.Cron(expr).SingletonMode().Tag(name).Do(fn); err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", name, err)
	}
	metrics.SetScheduledJobs(s.cron.Len())
	return nil
}

// RemoveJob removes the job registered under key
func (s *Scheduler) RemoveJob(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, key)
	if err := s.cron.RemoveByTag(key); err != nil {
		return fmt.Errorf("%w: %s", ErrJobNotRegistered, key)
	}
	metrics.SetScheduledJobs(s.cron.Len())
	return nil
}

// JobKeys lists the keys of the registered record jobs, beat tasks excluded
func (s *Scheduler) JobKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.jobs))
	for key := range s.jobs {
		if s.HasJob(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// HasJob reports whether a job is registered under key
func (s *Scheduler) HasJob(key string) bool {
	jobs, err := s.cron.FindJobsByTag(key)
	return err == nil && len(jobs) > 0
}

// NextRun returns the next run time of the job registered under key
func (s *Scheduler) NextRun(key string) (time.Time, bool) {
	jobs, err := s.cron.FindJobsByTag(key)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

// JobInfo describes one registered job
type JobInfo struct {
	Key      string    `json:"key"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run"`
	RunCount int       `json:"run_count"`
}

// Jobs lists the registered jobs
func (s *Scheduler) Jobs() []JobInfo {
	jobs := s.cron.Jobs()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{
			NextRun:  j.NextRun(),
			LastRun:  j.LastRun(),
			RunCount: j.RunCount(),
		}
		if tags := j.Tags(); len(tags) > 0 {
			info.Key = tags[0]
		}
		out = append(out, info)
	}
	return out
}

// Len returns the number of registered jobs
func (s *Scheduler) Len() int {
	return s.cron.Len()
}

// Start starts running jobs in the background
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info("scheduler started", "jobs", s.cron.Len())
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler has been started
func (s *Scheduler) IsRunning() bool {
	return s.cron.IsRunning()
}
