package models

import "time"

// Run statuses recorded for every cron job run
const (
	RunStatusOK       = "ok"
	RunStatusFailed   = "failed"
	RunStatusSkipped  = "skipped"
	RunStatusFinished = "finished"
)

// CronJobRunLog records the outcome of one cron job run
type CronJobRunLog struct {
	ID         uint      `gorm:"primaryKey" json:"id" bson:"-"`
	RunID      string    `gorm:"size:36;uniqueIndex" json:"run_id" bson:"_id"`
	JobKey     string    `gorm:"size:255;index" json:"job_key" bson:"job_key"`
	Status     string    `gorm:"size:30;index" json:"status" bson:"status"`
	Error      string    `gorm:"type:text" json:"error,omitempty" bson:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" bson:"started_at"`
	FinishedAt time.Time `gorm:"index" json:"finished_at" bson:"finished_at"`
}

// Duration returns how long the run took
func (l *CronJobRunLog) Duration() time.Duration {
	return l.FinishedAt.Sub(l.StartedAt)
}
