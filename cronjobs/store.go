package cronjobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/models"
)

// Record is a concrete cron job record type. Implementations are pointers to
// structs embedding models.CronJob.
type Record interface {
	Base() *models.CronJob
	TableName() string
}

// Key returns the scheduler key of a record, its identifier
func Key(rec Record) string {
	return models.JobKey(rec.Base().ID)
}

// Store is the model storage layer for one record type
type Store[R Record] interface {
	// Get looks a record up by primary key; a miss matches ErrNotFound.
	Get(ctx context.Context, id uint) (R, error)
	Create(ctx context.Context, id uint, trigger models.Trigger) (R, error)
	Save(ctx context.Context, rec R) error
	Delete(ctx context.Context, rec R) error
	ListActive(ctx context.Context) ([]R, error)
}

// GormStore stores records of type T in the table T names
type GormStore[T any, P interface {
	*T
	Record
}] struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed store for record type T
func NewGormStore[T any, P interface {
	*T
	Record
}](db *gorm.DB) *GormStore[T, P] {
	return &GormStore[T, P]{db: db}
}

// Get loads the record with the given id
func (s *GormStore[T, P]) Get(ctx context.Context, id uint) (P, error) {
	var rec T
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %d", ErrNotFound, P(&rec).TableName(), id)
		}
		return nil, fmt.Errorf("failed to load cron job %d: %w", id, err)
	}
	return P(&rec), nil
}

// Create inserts an active record with the given id and trigger
func (s *GormStore[T, P]) Create(ctx context.Context, id uint, trigger models.Trigger) (P, error) {
	var existing int64
	rec := P(new(T))
	if err := s.db.WithContext(ctx).Model(rec).Where("id = ?", id).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check cron job %d: %w", id, err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s %d", ErrAlreadyScheduled, rec.TableName(), id)
	}

	base := rec.Base()
	base.ID = id
	base.TriggerType = trigger.Type
	base.TriggerArgs = trigger.Args
	base.IsActive = true

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %s %d", ErrAlreadyScheduled, rec.TableName(), id)
		}
		return nil, fmt.Errorf("failed to create cron job %d: %w", id, err)
	}
	return rec, nil
}

// isDuplicateKey reports a primary key clash from a concurrent Create
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Save persists changes to an existing record
func (s *GormStore[T, P]) Save(ctx context.Context, rec P) error {
	return s.db.WithContext(ctx).Save(rec).Error
}

// Delete removes the record
func (s *GormStore[T, P]) Delete(ctx context.Context, rec P) error {
	return s.db.WithContext(ctx).Delete(rec).Error
}

// ListActive returns all active records
func (s *GormStore[T, P]) ListActive(ctx context.Context) ([]P, error) {
	var rows []T
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]P, len(rows))
	for i := range rows {
		out[i] = P(&rows[i])
	}
	return out, nil
}
