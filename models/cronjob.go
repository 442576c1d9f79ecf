package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	cronparser "github.com/robfig/cron/v3"
)

// TriggerType selects how a cron job record is scheduled
type TriggerType string

const (
	TriggerInterval TriggerType = "interval"
	TriggerCron     TriggerType = "cron"
	TriggerDate     TriggerType = "date"
)

// TriggerArgs holds the trigger parameters, stored as a JSON object
type TriggerArgs map[string]interface{}

// Trigger is a trigger type together with its arguments
type Trigger struct {
	Type TriggerType `json:"trigger_type" binding:"required"`
	Args TriggerArgs `json:"trigger_args"`
}

var ErrInvalidTrigger = errors.New("invalid trigger")

// MinInterval is the shortest interval trigger accepted
const MinInterval = time.Second

// cronFieldOrder is the field order of a standard 5-field cron expression
var cronFieldOrder = []string{"minute", "hour", "day", "month", "day_of_week"}

var standardParser = cronparser.NewParser(
	cronparser.Minute | cronparser.Hour | cronparser.Dom | cronparser.Month | cronparser.Dow | cronparser.Descriptor,
)

// CronJob is the persisted part shared by every cron job record.
// Concrete records embed it and name their own table.
type CronJob struct {
	ID          uint        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TriggerType TriggerType `gorm:"size:255;not null" json:"trigger_type"`
	TriggerArgs TriggerArgs `gorm:"type:text;serializer:json" json:"trigger_args"`
	IsActive    bool        `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Base returns the shared cron job fields
func (c *CronJob) Base() *CronJob { return c }

// Trigger returns the stored trigger
func (c *CronJob) Trigger() Trigger {
	return Trigger{Type: c.TriggerType, Args: c.TriggerArgs}
}

// JobKey is the scheduler key of the record with the given id
func JobKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Validate checks the trigger arguments for the trigger type
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerInterval:
		_, err := t.Interval()
		return err
	case TriggerCron:
		_, err := t.CronExpression()
		return err
	case TriggerDate:
		_, err := t.RunDate()
		return err
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, t.Type)
	}
}

// Interval sums the weeks/days/hours/minutes/seconds arguments
func (t Trigger) Interval() (time.Duration, error) {
	if t.Type != TriggerInterval {
		return 0, fmt.Errorf("%w: not an interval trigger", ErrInvalidTrigger)
	}

	units := []struct {
		name string
		unit time.Duration
	}{
		{"weeks", 7 * 24 * time.Hour},
		{"days", 24 * time.Hour},
		{"hours", time.Hour},
		{"minutes", time.Minute},
		{"seconds", time.Second},
	}

	var total float64
	for _, u := range units {
		raw, ok := t.Args[u.name]
		if !ok {
			continue
		}
		n, err := toFloat(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidTrigger, u.name, err)
		}
		if math.IsNaN(n) || n < 0 {
			return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidTrigger, u.name)
		}
		total += n * float64(u.unit)
	}

	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: interval overflows %v", ErrInvalidTrigger, time.Duration(math.MaxInt64))
	}
	if d := time.Duration(total); d < MinInterval {
		return 0, fmt.Errorf("%w: interval must be at least %v, got %v", ErrInvalidTrigger, MinInterval, d)
	}
	return time.Duration(total), nil
}

// CronExpression returns the 5-field expression, prefixed with CRON_TZ when a
// timezone argument is present
func (t Trigger) CronExpression() (string, error) {
	if t.Type != TriggerCron {
		return "", fmt.Errorf("%w: not a cron trigger", ErrInvalidTrigger)
	}

	expr, _ := t.Args["expression"].(string)
	if expr == "" {
		fields := make([]string, 0, len(cronFieldOrder))
		for _, name := range cronFieldOrder {
			value := "*"
			if raw, ok := t.Args[name]; ok {
				value = strings.TrimSpace(fmt.Sprint(raw))
			}
			fields = append(fields, value)
		}
		expr = strings.Join(fields, " ")
	}

	if tz, _ := t.Args["timezone"].(string); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return "", fmt.Errorf("%w: timezone %q: %v", ErrInvalidTrigger, tz, err)
		}
		expr = "CRON_TZ=" + tz + " " + expr
	}

	if _, err := standardParser.Parse(expr); err != nil {
		return "", fmt.Errorf("%w: cron expression %q: %v", ErrInvalidTrigger, expr, err)
	}
	return expr, nil
}

// RunDate parses the run_date argument of a date trigger
func (t Trigger) RunDate() (time.Time, error) {
	if t.Type != TriggerDate {
		return time.Time{}, fmt.Errorf("%w: not a date trigger", ErrInvalidTrigger)
	}
	raw, _ := t.Args["run_date"].(string)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: run_date is required", ErrInvalidTrigger)
	}
	runAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: run_date: %v", ErrInvalidTrigger, err)
	}
	return runAt, nil
}

// Equal reports whether both triggers fire on the same schedule
func (t Trigger) Equal(o Trigger) bool {
	if t.Type != o.Type {
		return false
	}
	switch t.Type {
	case TriggerInterval:
		a, errA := t.Interval()
		b, errB := o.Interval()
		return errA == nil && errB == nil && a == b
	case TriggerCron:
		a, errA := t.CronExpression()
		b, errB := o.CronExpression()
		return errA == nil && errB == nil && a == b
	case TriggerDate:
		a, errA := t.RunDate()
		b, errB := o.RunDate()
		return errA == nil && errB == nil && a.Equal(b)
	}
	return false
}

// NextRun computes the next fire time after from, or false when the trigger
// will not fire again
func (t Trigger) NextRun(from time.Time) (time.Time, bool) {
	switch t.Type {
	case TriggerInterval:
		d, err := t.Interval()
		if err != nil {
			return time.Time{}, false
		}
		return from.Add(d), true
	case TriggerCron:
		expr, err := t.CronExpression()
		if err != nil {
			return time.Time{}, false
		}
		sched, err := standardParser.Parse(expr)
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(from), true
	case TriggerDate:
		runAt, err := t.RunDate()
		if err != nil || !runAt.After(from) {
			return time.Time{}, false
		}
		return runAt, true
	}
	return time.Time{}, false
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		return f, nil
	case nil:
		return 0, nil
	}
	return math.NaN(), fmt.Errorf("unsupported number %T", v)
}
