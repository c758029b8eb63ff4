package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidCronExpr = errors.New("invalid cron expression")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrInvalidTimezone = errors.New("unknown timezone")
	ErrUnknownMode     = errors.New("unknown schedule mode")
)

type ScheduleMode string

const (
	ScheduleImmediate ScheduleMode = "immediate"
	ScheduleCron      ScheduleMode = "cron"
	ScheduleInterval  ScheduleMode = "interval"
)

// ScheduleConfig drives the ticker. NextRunAt nil means the schedule will
// never fire again (immediate mode, disabled, or exhausted past EndAt).
type ScheduleConfig struct {
	Mode            ScheduleMode `json:"mode"`
	Cron            string       `json:"cron,omitempty"`
	IntervalSeconds int          `json:"interval_seconds,omitempty"`
	StartAt         *time.Time   `json:"start_at,omitempty"`
	EndAt           *time.Time   `json:"end_at,omitempty"`
	NextRunAt       *time.Time   `json:"next_run_at,omitempty"`
	Timezone        string       `json:"timezone,omitempty"` // IANA name, default UTC
	Enabled         bool         `json:"enabled"`
}
