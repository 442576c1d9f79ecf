package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingPlan is a recurring savings goal funded by scheduled installments
type SavingPlan struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	InstallmentAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"installment_amount"`
	TargetAmount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"target_amount"`
	SavedAmount       decimal.Decimal `gorm:"type:decimal(15,2)" json:"saved_amount"`
	InstallmentsMade  int             `json:"installments_made"`
	IsActive          bool            `gorm:"not null" json:"is_active"`
	CompletedAt       *time.Time      `json:"completed_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// GetID returns the plan id; the plan's cron job record shares it
func (p *SavingPlan) GetID() uint { return p.ID }

// Remaining returns how much is still missing to reach the target
func (p *SavingPlan) Remaining() decimal.Decimal {
	rest := p.TargetAmount.Sub(p.SavedAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// IsCompleted reports whether the target has been reached
func (p *SavingPlan) IsCompleted() bool {
	return p.CompletedAt != nil || p.SavedAmount.GreaterThanOrEqual(p.TargetAmount)
}

// SavingPlanCronJob schedules the installments of one saving plan
type SavingPlanCronJob struct {
	CronJob
}

// TableName names the saving plan cron job table
func (SavingPlanCronJob) TableName() string { return "saving_plan_cron_jobs" }

// SavingContribution is one installment booked by the saving plan job
type SavingContribution struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	SavingPlanID uint            `gorm:"index;not null" json:"saving_plan_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	CreatedAt    time.Time       `json:"created_at"`
}
