// Package cronjobs ties a parent business entity to its persisted cron job
// record and keeps the scheduler in step with it.
//
// A Controller is built per parent instance. Delete removes the record and,
// best effort, the scheduler job keyed by it; Run drives the bound
// RecurringJob through its MainProcess hook.
package cronjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MOE349/tenmil-backend-sub001/metrics"
	"github.com/MOE349/tenmil-backend-sub001/models"
)

// Parent is the business entity that owns a schedule
type Parent interface {
	GetID() uint
}

// Scheduler removes registered jobs by key. RemoveJob may fail for any reason.
type Scheduler interface {
	RemoveJob(key string) error
}

// Registrar is a Scheduler that can also register jobs
type Registrar interface {
	Scheduler
	AddJob(key string, trigger models.Trigger, fn func()) error
}

// KeyLister is a Scheduler that can list the record keys it holds
type KeyLister interface {
	JobKeys() []string
}

// RecurringJob is the body of a scheduled job.
// MainProcess runs the whole sequence for one trigger and usually calls Execute.
type RecurringJob interface {
	Execute(ctx context.Context) error
	MainProcess(ctx context.Context) error
}

// Locker guards a job against concurrent runs
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RunLogger records run outcomes
type RunLogger interface {
	Record(ctx context.Context, entry *models.CronJobRunLog) error
}

// Publisher receives lifecycle events
type Publisher interface {
	Publish(evt Event)
}

// Event types published by the controller
const (
	EventCreated = "cronjob.created"
	EventDeleted = "cronjob.deleted"
	EventRun     = "cronjob.run"
	EventPaused  = "cronjob.paused"
	EventResumed = "cronjob.resumed"
)

// Event describes a lifecycle change of one cron job
type Event struct {
	Type     string    `json:"type"`
	Key      string    `json:"key"`
	ParentID uint      `json:"parent_id"`
	Status   string    `json:"status,omitempty"`
	At       time.Time `json:"at"`
}

// RemovalResult is the outcome of a best-effort scheduler removal
type RemovalResult struct {
	Key     string
	Removed bool
	Err     error
}

type options struct {
	job       RecurringJob
	logger    *slog.Logger
	locker    Locker
	runLog    RunLogger
	publisher Publisher
	lockTTL   time.Duration
}

// Option configures a Controller
type Option func(*options)

// WithJob binds the job body run by Run
func WithJob(job RecurringJob) Option {
	return func(o *options) { o.job = job }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLocker sets the run lock
func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

// WithRunLog sets where run outcomes are recorded
func WithRunLog(r RunLogger) Option {
	return func(o *options) { o.runLog = r }
}

// WithPublisher sets the lifecycle event sink
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithLockTTL sets how long a run lock is held at most
func WithLockTTL(d time.Duration) Option {
	return func(o *options) { o.lockTTL = d }
}

// Controller manages the cron job record of one parent instance
type Controller[R Record] struct {
	parent    Parent
	store     Store[R]
	scheduler Scheduler
	opts      options
}

// NewController creates a controller for parent. The record type is fixed by
// store; scheduler may be nil.
func NewController[R Record](parent Parent, store Store[R], scheduler Scheduler, opts ...Option) *Controller[R] {
	o := options{lockTTL: 10 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Controller[R]{
		parent:    parent,
		store:     store,
		scheduler: scheduler,
		opts:      o,
	}
}

// Get returns the parent's record
func (c *Controller[R]) Get(ctx context.Context) (R, error) {
	return c.store.Get(ctx, c.parent.GetID())
}

// Delete removes the parent's cron job. The scheduler job is removed first on a
// best-effort basis; the record is deleted whatever the scheduler reports.
func (c *Controller[R]) Delete(ctx context.Context) error {
	rec, err := c.store.Get(ctx, c.parent.GetID())
	if err != nil {
		metrics.ObserveDelete(metrics.ResultNotFound)
		return err
	}

	key := Key(rec)
	c.removeFromScheduler(key)

	if err := c.store.Delete(ctx, rec); err != nil {
		metrics.ObserveDelete(metrics.ResultError)
		return fmt.Errorf("failed to delete cron job %s: %w", key, err)
	}

	metrics.ObserveDelete(metrics.ResultOK)
	c.opts.logger.Info("cron job deleted", "job_key", key, "parent_id", c.parent.GetID())
	c.publish(EventDeleted, key, "")
	return nil
}

// removeFromScheduler never fails; the outcome is only logged and counted
func (c *Controller[R]) removeFromScheduler(key string) RemovalResult {
	res := tryRemove(c.scheduler, key)
	if res.Removed {
		metrics.ObserveSchedulerRemoval(metrics.ResultOK)
		return res
	}

	metrics.ObserveSchedulerRemoval(metrics.ResultError)
	c.opts.logger.Debug("scheduler removal skipped",
		"job_key", key,
		"error", res.Err)
	return res
}

func tryRemove(s Scheduler, key string) (res RemovalResult) {
	res.Key = key
	if s == nil {
		res.Err = ErrNoScheduler
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res.Removed = false
			res.Err = fmt.Errorf("scheduler panic: %v", r)
		}
	}()
	if err := s.RemoveJob(key); err != nil {
		res.Err = err
		return res
	}
	res.Removed = true
	return res
}

// Prune removes every scheduler job whose key is not in keep and returns the
// removed keys. Schedulers that cannot list their jobs are left untouched.
func Prune(s Scheduler, keep map[string]bool) []string {
	lister, ok := s.(KeyLister)
	if !ok {
		return nil
	}
	var removed []string
	for _, key := range lister.JobKeys() {
		if keep[key] {
			continue
		}
		if res := tryRemove(s, key); res.Removed {
			removed = append(removed, key)
		}
	}
	return removed
}

// Create persists an active record for the parent and registers it with the
// scheduler when the scheduler can register jobs
func (c *Controller[R]) Create(ctx context.Context, trigger models.Trigger) (R, error) {
	if err := trigger.Validate(); err != nil {
		var zero R
		return zero, err
	}

	rec, err := c.store.Create(ctx, c.parent.GetID(), trigger)
	if err != nil {
		var zero R
		return zero, err
	}

	key := Key(rec)
	if err := c.register(rec); err != nil {
		c.opts.logger.Warn("cron job created but not registered",
			"job_key", key,
			"error", err)
	}

	c.opts.logger.Info("cron job created",
		"job_key", key,
		"trigger_type", trigger.Type)
	c.publish(EventCreated, key, "")
	return rec, nil
}

// Register adds the parent's active record to the scheduler
func (c *Controller[R]) Register(ctx context.Context) error {
	rec, err := c.store.Get(ctx, c.parent.GetID())
	if err != nil {
		return err
	}
	if !rec.Base().IsActive {
		return nil
	}
	return c.register(rec)
}

func (c *Controller[R]) register(rec R) error {
	reg, ok := c.scheduler.(Registrar)
	if !ok || reg == nil {
		return ErrNoScheduler
	}
	key := Key(rec)
	return reg.AddJob(key, rec.Base().Trigger(), func() {
		stale, err := c.run(context.Background())
		if stale {
			// deleted or paused by another process
			c.opts.logger.Info("removing scheduled job without an active record", "job_key", key)
			c.removeFromScheduler(key)
			return
		}
		if err != nil && !errors.Is(err, ErrLocked) {
			c.opts.logger.Error("scheduled cron job run failed",
				"job_key", key,
				"error", err)
		}
	})
}

// SetActive pauses or resumes the parent's cron job
func (c *Controller[R]) SetActive(ctx context.Context, active bool) (R, error) {
	rec, err := c.store.Get(ctx, c.parent.GetID())
	if err != nil {
		var zero R
		return zero, err
	}

	base := rec.Base()
	key := Key(rec)
	if base.IsActive == active {
		return rec, nil
	}

	base.IsActive = active
	if err := c.store.Save(ctx, rec); err != nil {
		var zero R
		return zero, fmt.Errorf("failed to update cron job %s: %w", key, err)
	}

	if active {
		if err := c.register(rec); err != nil {
			c.opts.logger.Warn("cron job resumed but not registered",
				"job_key", key,
				"error", err)
		}
		c.publish(EventResumed, key, "")
	} else {
		c.removeFromScheduler(key)
		c.publish(EventPaused, key, "")
	}
	return rec, nil
}

// Run executes the bound job once through its MainProcess hook
func (c *Controller[R]) Run(ctx context.Context) error {
	_, err := c.run(ctx)
	return err
}

// run reports stale when the record is gone or inactive
func (c *Controller[R]) run(ctx context.Context) (stale bool, err error) {
	if c.opts.job == nil {
		return false, ErrNoJob
	}

	rec, err := c.store.Get(ctx, c.parent.GetID())
	if err != nil {
		return errors.Is(err, ErrNotFound), err
	}
	key := Key(rec)

	if c.opts.locker != nil {
		ok, err := c.opts.locker.Acquire(ctx, key, c.opts.lockTTL)
		if err != nil {
			return false, fmt.Errorf("failed to lock cron job %s: %w", key, err)
		}
		if !ok {
			c.finishRun(ctx, key, models.RunStatusSkipped, ErrLocked, time.Now())
			return false, ErrLocked
		}
		defer func() {
			if err := c.opts.locker.Release(context.Background(), key); err != nil {
				c.opts.logger.Warn("failed to release cron job lock",
					"job_key", key,
					"error", err)
			}
		}()
	}

	started := time.Now()
	if !rec.Base().IsActive {
		c.finishRun(ctx, key, models.RunStatusSkipped, nil, started)
		return true, nil
	}

	runErr := c.opts.job.MainProcess(ctx)
	switch {
	case errors.Is(runErr, ErrFinished):
		c.finishRun(ctx, key, models.RunStatusFinished, nil, started)
		if err := c.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, nil
	case runErr != nil:
		c.finishRun(ctx, key, models.RunStatusFailed, runErr, started)
		return false, fmt.Errorf("cron job %s failed: %w", key, runErr)
	}

	if rec.Base().TriggerType == models.TriggerDate {
		rec.Base().IsActive = false
		if err := c.store.Save(ctx, rec); err != nil {
			c.opts.logger.Warn("failed to deactivate one-off cron job",
				"job_key", key,
				"error", err)
		}
	}

	c.finishRun(ctx, key, models.RunStatusOK, nil, started)
	return false, nil
}

func (c *Controller[R]) finishRun(ctx context.Context, key, status string, runErr error, started time.Time) {
	entry := &models.CronJobRunLog{
		RunID:      uuid.NewString(),
		JobKey:     key,
		Status:     status,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	metrics.ObserveRun(status, entry.Duration())
	if runErr != nil {
		entry.Error = runErr.Error()
	}

	if c.opts.runLog != nil {
		if err := c.opts.runLog.Record(ctx, entry); err != nil {
			c.opts.logger.Warn("failed to record cron job run",
				"job_key", key,
				"error", err)
		}
	}

	c.opts.logger.Info("cron job run finished",
		"job_key", key,
		"status", status,
		"duration", entry.Duration())
	c.publish(EventRun, key, status)
}

func (c *Controller[R]) publish(eventType, key, status string) {
	if c.opts.publisher == nil {
		return
	}
	c.opts.publisher.Publish(Event{
		Type:     eventType,
		Key:      key,
		ParentID: c.parent.GetID(),
		Status:   status,
		At:       time.Now(),
	})
}
