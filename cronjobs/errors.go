package cronjobs

import "errors"

var (
	// ErrNotFound is returned when no cron job record exists for a parent.
	ErrNotFound = errors.New("cronjobs: cron job not found")

	// ErrAlreadyScheduled is returned by Create when the parent already has a record.
	ErrAlreadyScheduled = errors.New("cronjobs: cron job already exists")

	// ErrNoScheduler marks a removal attempted without a scheduler bound.
	ErrNoScheduler = errors.New("cronjobs: no scheduler bound")

	// ErrNoJob is returned by Run when no RecurringJob is bound.
	ErrNoJob = errors.New("cronjobs: no recurring job bound")

	// ErrFinished is returned by a job body when its schedule is complete.
	// The controller deletes the record when it sees it.
	ErrFinished = errors.New("cronjobs: recurring job finished")

	// ErrLocked is returned by Run when another run of the same job holds the lock.
	ErrLocked = errors.New("cronjobs: run already in progress")
)
