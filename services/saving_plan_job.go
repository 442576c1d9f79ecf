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

// ErrPlanNotFound is returned when a saving plan does not exist
var ErrPlanNotFound = errors.New("saving plan not found")

// SavingPlanJob books the scheduled installments of one saving plan
type SavingPlanJob struct {
	db     *gorm.DB
	planID uint
	logger *slog.Logger
}

// NewSavingPlanJob creates the job body for the given plan
func NewSavingPlanJob(db *gorm.DB, planID uint, logger *slog.Logger) *SavingPlanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SavingPlanJob{db: db, planID: planID, logger: logger}
}

// Execute books one installment, capped at what is left of the target
func (j *SavingPlanJob) Execute(ctx context.Context) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := loadPlan(tx, j.planID)
		if err != nil {
			return err
		}

		amount := decimal.Min(plan.InstallmentAmount, plan.Remaining())
		if !amount.IsPositive() {
			return nil
		}

		plan.SavedAmount = plan.SavedAmount.Add(amount)
		plan.InstallmentsMade++
		if plan.SavedAmount.GreaterThanOrEqual(plan.TargetAmount) {
			now := time.Now()
			plan.CompletedAt = &now
		}

		if err := tx.Save(plan).Error; err != nil {
			return fmt.Errorf("failed to update saving plan %d: %w", plan.ID, err)
		}
		contribution := &models.SavingContribution{
			SavingPlanID: plan.ID,
			Amount:       amount,
		}
		if err := tx.Create(contribution).Error; err != nil {
			return fmt.Errorf("failed to record contribution for plan %d: %w", plan.ID, err)
		}

		j.logger.Info("installment booked",
			"plan_id", plan.ID,
			"amount", amount.StringFixed(2),
			"saved", plan.SavedAmount.StringFixed(2))
		return nil
	})
}

// MainProcess books an installment unless the plan is closed, and reports
// cronjobs.ErrFinished once nothing is left to save
func (j *SavingPlanJob) MainProcess(ctx context.Context) error {
	plan, err := loadPlan(j.db.WithContext(ctx), j.planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return cronjobs.ErrFinished
		}
		return err
	}
	if !plan.IsActive || plan.IsCompleted() {
		return cronjobs.ErrFinished
	}

	if err := j.Execute(ctx); err != nil {
		return err
	}

	plan, err = loadPlan(j.db.WithContext(ctx), j.planID)
	if err != nil {
		return err
	}
	if plan.IsCompleted() {
		j.logger.Info("saving plan completed", "plan_id", plan.ID)
		return cronjobs.ErrFinished
	}
	return nil
}

func loadPlan(db *gorm.DB, id uint) (*models.SavingPlan, error) {
	var plan models.SavingPlan
	if err := db.First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPlanNotFound, id)
		}
		return nil, fmt.Errorf("failed to load saving plan %d: %w", id, err)
	}
	return &plan, nil
}
