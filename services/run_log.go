package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/models"
)

// RunLogStore records cron job runs and serves them back
type RunLogStore interface {
	Record(ctx context.Context, entry *models.CronJobRunLog) error
	List(ctx context.Context, jobKey string, limit int) ([]models.CronJobRunLog, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// DefaultRunLogLimit caps List when no limit is given
const DefaultRunLogLimit = 50

// GormRunLog stores run logs in the cron_job_run_logs table
type GormRunLog struct {
	db *gorm.DB
}

// NewGormRunLog creates a new GormRunLog
func NewGormRunLog(db *gorm.DB) *GormRunLog {
	return &GormRunLog{db: db}
}

// Record inserts one run log entry
func (r *GormRunLog) Record(ctx context.Context, entry *models.CronJobRunLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record run %s: %w", entry.RunID, err)
	}
	return nil
}

// List returns the latest runs of a job, newest first
func (r *GormRunLog) List(ctx context.Context, jobKey string, limit int) ([]models.CronJobRunLog, error) {
	if limit <= 0 {
		limit = DefaultRunLogLimit
	}
	var logs []models.CronJobRunLog
	err := r.db.WithContext(ctx).
		Where("job_key = ?", jobKey).
		Order("finished_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Prune deletes entries that finished before the cutoff
func (r *GormRunLog) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("finished_at < ?", before).Delete(&models.CronJobRunLog{})
	return res.RowsAffected, res.Error
}
