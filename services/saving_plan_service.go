package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/cronjobs"
	"github.com/MOE349/tenmil-backend-sub001/models"
)

// ErrInvalidPlan is returned for plans with non-positive amounts or no name
var ErrInvalidPlan = errors.New("invalid saving plan")

// SavingPlanStore is the cron job store used for saving plans
type SavingPlanStore = cronjobs.Store[*models.SavingPlanCronJob]

// CreateSavingPlanInput describes a new saving plan and its optional schedule
type CreateSavingPlanInput struct {
	Name              string          `json:"name" binding:"required"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	TargetAmount      decimal.Decimal `json:"target_amount"`
	Trigger           *models.Trigger `json:"trigger,omitempty"`
}

// SavingPlanService manages saving plans and their cron jobs
type SavingPlanService struct {
	db        *gorm.DB
	store     SavingPlanStore
	scheduler cronjobs.Scheduler
	locker    cronjobs.Locker
	runLog    RunLogStore
	publisher cronjobs.Publisher
	lockTTL   time.Duration
	logger    *slog.Logger
}

// SavingPlanServiceConfig holds the collaborators of SavingPlanService.
// Only DB is required.
type SavingPlanServiceConfig struct {
	DB        *gorm.DB
	Store     SavingPlanStore
	Scheduler cronjobs.Scheduler
	Locker    cronjobs.Locker
	RunLog    RunLogStore
	Publisher cronjobs.Publisher
	LockTTL   time.Duration
	Logger    *slog.Logger
}

// NewSavingPlanService creates a new SavingPlanService
func NewSavingPlanService(cfg SavingPlanServiceConfig) *SavingPlanService {
	if cfg.Store == nil {
		cfg.Store = cronjobs.NewGormStore[models.SavingPlanCronJob](cfg.DB)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SavingPlanService{
		db:        cfg.DB,
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		locker:    cfg.Locker,
		runLog:    cfg.RunLog,
		publisher: cfg.Publisher,
		lockTTL:   cfg.LockTTL,
		logger:    cfg.Logger,
	}
}

// Controller binds a plan to its cron job controller
func (s *SavingPlanService) Controller(plan *models.SavingPlan) *cronjobs.Controller[*models.SavingPlanCronJob] {
	opts := []cronjobs.Option{
		cronjobs.WithJob(NewSavingPlanJob(s.db, plan.ID, s.logger)),
		cronjobs.WithLogger(s.logger),
	}
	if s.locker != nil {
		opts = append(opts, cronjobs.WithLocker(s.locker))
	}
	if s.runLog != nil {
		opts = append(opts, cronjobs.WithRunLog(s.runLog))
	}
	if s.publisher != nil {
		opts = append(opts, cronjobs.WithPublisher(s.publisher))
	}
	if s.lockTTL > 0 {
		opts = append(opts, cronjobs.WithLockTTL(s.lockTTL))
	}
	return cronjobs.NewController(plan, s.store, s.scheduler, opts...)
}

// CreatePlan creates an active plan and schedules it when a trigger is given
func (s *SavingPlanService) CreatePlan(ctx context.Context, in CreateSavingPlanInput) (*models.SavingPlan, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if !in.InstallmentAmount.IsPositive() || !in.TargetAmount.IsPositive() {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrInvalidPlan)
	}
	if in.Trigger != nil {
		if err := in.Trigger.Validate(); err != nil {
			return nil, err
		}
	}

	plan := &models.SavingPlan{
		Name:              in.Name,
		InstallmentAmount: in.InstallmentAmount,
		TargetAmount:      in.TargetAmount,
		SavedAmount:       decimal.Zero,
		IsActive:          true,
	}
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create saving plan: %w", err)
	}

	if in.Trigger != nil {
		if _, err := s.Controller(plan).Create(ctx, *in.Trigger); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// GetPlan loads a plan by id
func (s *SavingPlanService) GetPlan(ctx context.Context, id uint) (*models.SavingPlan, error) {
	return loadPlan(s.db.WithContext(ctx), id)
}

// ListPlans returns every plan, newest first
func (s *SavingPlanService) ListPlans(ctx context.Context) ([]models.SavingPlan, error) {
	var plans []models.SavingPlan
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// DeletePlan removes the plan's schedule, its contributions and the plan
func (s *SavingPlanService) DeletePlan(ctx context.Context, id uint) error {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return err
	}

	if err := s.Controller(plan).Delete(ctx); err != nil && !errors.Is(err, cronjobs.ErrNotFound) {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("saving_plan_id = ?", plan.ID).Delete(&models.SavingContribution{}).Error; err != nil {
			return err
		}
		return tx.Delete(plan).Error
	})
}

// GetSchedule returns the plan's cron job
func (s *SavingPlanService) GetSchedule(ctx context.Context, id uint) (*models.SavingPlanCronJob, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Controller(plan).Get(ctx)
}

// Schedule creates the plan's cron job
func (s *SavingPlanService) Schedule(ctx context.Context, id uint, trigger models.Trigger) (*models.SavingPlanCronJob, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Controller(plan).Create(ctx, trigger)
}

// Unschedule deletes the plan's cron job
func (s *SavingPlanService) Unschedule(ctx context.Context, id uint) error {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return err
	}
	return s.Controller(plan).Delete(ctx)
}

// SetScheduleActive pauses or resumes the plan's cron job
func (s *SavingPlanService) SetScheduleActive(ctx context.Context, id uint, active bool) (*models.SavingPlanCronJob, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Controller(plan).SetActive(ctx, active)
}

// RunNow runs the plan's job once outside its schedule
func (s *SavingPlanService) RunNow(ctx context.Context, id uint) error {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return err
	}
	return s.Controller(plan).Run(ctx)
}

// Runs returns the latest recorded runs of the plan's cron job
func (s *SavingPlanService) Runs(ctx context.Context, id uint, limit int) ([]models.CronJobRunLog, error) {
	if s.runLog == nil {
		return []models.CronJobRunLog{}, nil
	}
	if _, err := s.GetPlan(ctx, id); err != nil {
		return nil, err
	}
	key := models.JobKey(id)
	return s.runLog.List(ctx, key, limit)
}

// NextRun returns when the plan's job fires next, as the scheduler sees it
// when it holds the job and computed from the trigger otherwise
func (s *SavingPlanService) NextRun(rec *models.SavingPlanCronJob) (time.Time, bool) {
	if !rec.IsActive {
		return time.Time{}, false
	}
	if sched, ok := s.scheduler.(interface {
		NextRun(key string) (time.Time, bool)
	}); ok {
		if next, ok := sched.NextRun(cronjobs.Key(rec)); ok && !next.IsZero() {
			return next, true
		}
	}
	return rec.Trigger().NextRun(time.Now())
}

// SyncSchedules registers every active saving plan cron job with the scheduler
// and removes scheduler jobs whose record was deleted or paused elsewhere
func (s *SavingPlanService) SyncSchedules(ctx context.Context) (int, error) {
	records, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active cron jobs: %w", err)
	}

	active := make(map[string]bool, len(records))
	registered := 0
	for _, rec := range records {
		plan, err := s.GetPlan(ctx, rec.ID)
		if err != nil {
			s.logger.Warn("cron job without saving plan",
				"job_key", cronjobs.Key(rec),
				"error", err)
			continue
		}
		if err := s.Controller(plan).Register(ctx); err != nil {
			s.logger.Warn("failed to register cron job",
				"job_key", cronjobs.Key(rec),
				"error", err)
			continue
		}
		active[cronjobs.Key(rec)] = true
		registered++
	}

	for _, key := range cronjobs.Prune(s.scheduler, active) {
		s.logger.Info("removed scheduled job without an active record", "job_key", key)
	}
	return registered, nil
}
