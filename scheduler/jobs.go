package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Task is a periodic beat task
type Task func(ctx context.Context) error

// Syncer re-registers persisted cron jobs with the scheduler
type Syncer interface {
	SyncSchedules(ctx context.Context) (int, error)
}

// RunLogPruner deletes run log entries older than a cutoff
type RunLogPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Built-in beat task names
const (
	TaskHeartbeat      = "heartbeat"
	TaskSyncCronJobs   = "sync_cron_jobs"
	TaskCleanupRunLogs = "cleanup_run_logs"
)

// Beat registers named tasks with the scheduler according to a beat schedule
type Beat struct {
	sched   *Scheduler
	tasks   map[string]Task
	logger  *slog.Logger
	timeout time.Duration
}

// NewBeat creates a beat with the built-in tasks wired to the given collaborators
func NewBeat(sched *Scheduler, syncers []Syncer, pruner RunLogPruner, retention time.Duration, logger *slog.Logger) *Beat {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Beat{
		sched:   sched,
		tasks:   make(map[string]Task),
		logger:  logger,
		timeout: 5 * time.Minute,
	}

	b.Register(TaskHeartbeat, func(ctx context.Context) error {
		b.logger.Info("beat heartbeat", "scheduled_jobs", sched.Len())
		return nil
	})

	b.Register(TaskSyncCronJobs, func(ctx context.Context) error {
		total := 0
		for _, s := range syncers {
			n, err := s.SyncSchedules(ctx)
			if err != nil {
				return err
			}
			total += n
		}
		b.logger.Info("cron jobs synced", "registered", total)
		return nil
	})

	b.Register(TaskCleanupRunLogs, func(ctx context.Context) error {
		if pruner == nil || retention <= 0 {
			return nil
		}
		n, err := pruner.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		b.logger.Info("run logs cleaned up", "deleted", n)
		return nil
	})

	return b
}

// Register adds or replaces a named task
func (b *Beat) Register(name string, task Task) {
	b.tasks[name] = task
}

// TaskNames lists the registered task names
func (b *Beat) TaskNames() []string {
	names := make([]string, 0, len(b.tasks))
	for name := range b.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunTask runs a named task once
func (b *Beat) RunTask(ctx context.Context, name string) error {
	task, ok := b.tasks[name]
	if !ok {
		return fmt.Errorf("unknown beat task %q", name)
	}
	return task(ctx)
}

// Apply schedules every entry of the beat schedule
func (b *Beat) Apply(schedule BeatSchedule) error {
	for _, entry := range schedule.Entries {
		task, ok := b.tasks[entry.Task]
		if !ok {
			return fmt.Errorf("beat entry %q: unknown task %q", entry.Name, entry.Task)
		}

		fn := b.wrap(entry.Name, task)
		var err error
		if entry.Cron != "" {
			err = b.sched.AddCronTask(entry.Name, entry.Cron, fn)
		} else {
			err = b.sched.AddTask(entry.Name, entry.Every.Duration, fn)
		}
		if err != nil {
			return err
		}

		b.logger.Info("beat entry scheduled",
			"name", entry.Name,
			"task", entry.Task,
			"every", entry.Every.Duration,
			"cron", entry.Cron)
	}
	return nil
}

func (b *Beat) wrap(name string, task Task) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		start := time.Now()
		if err := task(ctx); err != nil {
			b.logger.Error("beat task failed",
				"name", name,
				"error", err)
			return
		}
		b.logger.Debug("beat task completed",
			"name", name,
			"duration", time.Since(start))
	}
}
