package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MOE349/tenmil-backend-sub001/cronjobs"
	"github.com/MOE349/tenmil-backend-sub001/models"
	"github.com/MOE349/tenmil-backend-sub001/services"
)

// SavingPlanService is what the saving plan handlers need from the service layer
type SavingPlanService interface {
	CreatePlan(ctx context.Context, in services.CreateSavingPlanInput) (*models.SavingPlan, error)
	GetPlan(ctx context.Context, id uint) (*models.SavingPlan, error)
	ListPlans(ctx context.Context) ([]models.SavingPlan, error)
	DeletePlan(ctx context.Context, id uint) error
	GetSchedule(ctx context.Context, id uint) (*models.SavingPlanCronJob, error)
	Schedule(ctx context.Context, id uint, trigger models.Trigger) (*models.SavingPlanCronJob, error)
	Unschedule(ctx context.Context, id uint) error
	SetScheduleActive(ctx context.Context, id uint, active bool) (*models.SavingPlanCronJob, error)
	RunNow(ctx context.Context, id uint) error
	Runs(ctx context.Context, id uint, limit int) ([]models.CronJobRunLog, error)
	NextRun(rec *models.SavingPlanCronJob) (time.Time, bool)
}

// maxRunsLimit caps the limit query of ListRuns
const maxRunsLimit = 100

// SavingPlanController handles saving plan and schedule requests
type SavingPlanController struct {
	svc SavingPlanService
}

// NewSavingPlanController creates a new saving plan controller
func NewSavingPlanController(svc SavingPlanService) *SavingPlanController {
	return &SavingPlanController{svc: svc}
}

// ScheduleResponse is a cron job as returned by the API
type ScheduleResponse struct {
	Key         string             `json:"key"`
	PlanID      uint               `json:"plan_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	TriggerArgs models.TriggerArgs `json:"trigger_args"`
	IsActive    bool               `json:"is_active"`
	NextRun     *time.Time         `json:"next_run,omitempty"`
}

func (pc *SavingPlanController) scheduleResponse(rec *models.SavingPlanCronJob) ScheduleResponse {
	resp := ScheduleResponse{
		Key:         cronjobs.Key(rec),
		PlanID:      rec.ID,
		TriggerType: rec.TriggerType,
		TriggerArgs: rec.TriggerArgs,
		IsActive:    rec.IsActive,
	}
	if next, ok := pc.svc.NextRun(rec); ok {
		resp.NextRun = &next
	}
	return resp
}

// ListPlans returns all saving plans
// GET /api/v1/saving-plans
func (pc *SavingPlanController) ListPlans(c *gin.Context) {
	plans, err := pc.svc.ListPlans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch saving plans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

// CreatePlan creates a saving plan, optionally with a schedule
// POST /api/v1/saving-plans
func (pc *SavingPlanController) CreatePlan(c *gin.Context) {
	var in services.CreateSavingPlanInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := pc.svc.CreatePlan(c.Request.Context(), in)
	if err != nil && plan == nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"data": plan}
	if err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// GetPlan returns one saving plan
// GET /api/v1/saving-plans/:id
func (pc *SavingPlanController) GetPlan(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	plan, err := pc.svc.GetPlan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plan})
}

// DeletePlan deletes a saving plan and its schedule
// DELETE /api/v1/saving-plans/:id
func (pc *SavingPlanController) DeletePlan(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := pc.svc.DeletePlan(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Saving plan deleted"})
}

// GetSchedule returns the plan's cron job
// GET /api/v1/saving-plans/:id/schedule
func (pc *SavingPlanController) GetSchedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := pc.svc.GetSchedule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pc.scheduleResponse(rec)})
}

// CreateSchedule schedules the plan
// POST /api/v1/saving-plans/:id/schedule
func (pc *SavingPlanController) CreateSchedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var trigger models.Trigger
	if err := c.ShouldBindJSON(&trigger); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := pc.svc.Schedule(c.Request.Context(), id, trigger)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": pc.scheduleResponse(rec)})
}

// DeleteSchedule removes the plan's cron job
// DELETE /api/v1/saving-plans/:id/schedule
func (pc *SavingPlanController) DeleteSchedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := pc.svc.Unschedule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}

// UpdateScheduleRequest pauses or resumes a schedule
type UpdateScheduleRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// UpdateSchedule pauses or resumes the plan's cron job
// PATCH /api/v1/saving-plans/:id/schedule
func (pc *SavingPlanController) UpdateSchedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := pc.svc.SetScheduleActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pc.scheduleResponse(rec)})
}

// RunPlan runs the plan's job once
// POST /api/v1/saving-plans/:id/run
func (pc *SavingPlanController) RunPlan(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := pc.svc.RunNow(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Run completed"})
}

// ListRuns returns the latest runs of the plan's cron job
// GET /api/v1/saving-plans/:id/runs?limit=20
func (pc *SavingPlanController) ListRuns(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := pc.svc.Runs(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondError maps domain errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPlanNotFound), errors.Is(err, cronjobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cronjobs.ErrAlreadyScheduled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cronjobs.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is already running"})
	case errors.Is(err, models.ErrInvalidTrigger), errors.Is(err, services.ErrInvalidPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
