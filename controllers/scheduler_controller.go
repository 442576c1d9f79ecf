package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MOE349/tenmil-backend-sub001/scheduler"
)

// JobLister lists registered scheduler jobs
type JobLister interface {
	Jobs() []scheduler.JobInfo
	IsRunning() bool
}

// SchedulerController exposes scheduler state and the event feed
type SchedulerController struct {
	jobs   JobLister
	events http.Handler
}

// NewSchedulerController creates a new scheduler controller
func NewSchedulerController(jobs JobLister, events http.Handler) *SchedulerController {
	return &SchedulerController{jobs: jobs, events: events}
}

// ListJobs returns the jobs currently registered with the scheduler
// GET /api/v1/scheduler/jobs
func (sc *SchedulerController) ListJobs(c *gin.Context) {
	jobs := sc.jobs.Jobs()
	c.JSON(http.StatusOK, gin.H{
		"running": sc.jobs.IsRunning(),
		"count":   len(jobs),
		"data":    jobs,
	})
}

// Events upgrades to a websocket streaming cron job lifecycle events
// GET /ws/events?token=...
func (sc *SchedulerController) Events(c *gin.Context) {
	sc.events.ServeHTTP(c.Writer, c.Request)
}
