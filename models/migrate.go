package models

import "gorm.io/gorm"

// MigrateCronJobModels runs database migrations for cron job records and their run log
func MigrateCronJobModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&SavingPlanCronJob{},
		&CronJobRunLog{},
	)
}

// MigrateSavingPlanModels runs database migrations for saving plans
func MigrateSavingPlanModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&SavingPlan{},
		&SavingContribution{},
	)
}

// MigrateAdminModels runs database migrations for admin-related models
func MigrateAdminModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&AdminUser{},
	)
}

// MigrateAll runs every migration in dependency order
func MigrateAll(db *gorm.DB) error {
	if err := MigrateSavingPlanModels(db); err != nil {
		return err
	}
	if err := MigrateCronJobModels(db); err != nil {
		return err
	}
	return MigrateAdminModels(db)
}
