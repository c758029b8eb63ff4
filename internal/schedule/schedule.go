// Package schedule computes fire times for job schedules. Functions are
// pure: they take a config and a clock reading and return the updated
// config, so the ticker and the API validate with the same code.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hydrajobs/hydra/internal/domain"
)

// Location resolves the schedule timezone, UTC when unset.
func Location(s domain.ScheduleConfig) (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, s.Timezone)
	}
	return loc, nil
}

// Validate checks that the schedule can produce fire times without
// consulting a clock.
func Validate(s domain.ScheduleConfig) error {
	if _, err := Location(s); err != nil {
		return err
	}
	switch s.Mode {
	case domain.ScheduleImmediate:
		return nil
	case domain.ScheduleCron:
		if s.Cron == "" {
			return fmt.Errorf("%w: empty expression", domain.ErrInvalidCronExpr)
		}
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return fmt.Errorf("%w: %q: %v", domain.ErrInvalidCronExpr, s.Cron, err)
		}
		return nil
	case domain.ScheduleInterval:
		if s.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: got %d", domain.ErrInvalidInterval, s.IntervalSeconds)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownMode, s.Mode)
	}
}

// Initialize computes the first fire time. Disabled and immediate
// schedules never fire through the ticker; a first fire past EndAt leaves
// NextRunAt nil (the schedule is born exhausted).
func Initialize(s domain.ScheduleConfig, now time.Time) (domain.ScheduleConfig, error) {
	if err := Validate(s); err != nil {
		return s, err
	}
	s.NextRunAt = nil
	if !s.Enabled || s.Mode == domain.ScheduleImmediate {
		return s, nil
	}

	loc, err := Location(s)
	if err != nil {
		return s, err
	}
	base := now.In(loc)
	if s.StartAt != nil && s.StartAt.After(base) {
		base = s.StartAt.In(loc)
	}

	var next time.Time
	switch s.Mode {
	case domain.ScheduleCron:
		sched, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return s, fmt.Errorf("%w: %q: %v", domain.ErrInvalidCronExpr, s.Cron, err)
		}
		next = sched.Next(base)
	case domain.ScheduleInterval:
		// Interval schedules fire immediately once eligible.
		next = base
	}

	if s.EndAt != nil && next.After(*s.EndAt) {
		return s, nil
	}
	s.NextRunAt = &next
	return s, nil
}

// Advance moves the schedule one fire forward. Base is the previous
// NextRunAt so missed fires replay one by one; a candidate past EndAt
// exhausts the schedule and disables it.
func Advance(s domain.ScheduleConfig, now time.Time) (domain.ScheduleConfig, error) {
	loc, err := Location(s)
	if err != nil {
		return s, err
	}

	base := now.In(loc)
	if s.NextRunAt != nil {
		base = s.NextRunAt.In(loc)
	}

	var next time.Time
	switch s.Mode {
	case domain.ScheduleCron:
		sched, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return s, fmt.Errorf("%w: %q: %v", domain.ErrInvalidCronExpr, s.Cron, err)
		}
		next = sched.Next(base)
	case domain.ScheduleInterval:
		if s.IntervalSeconds <= 0 {
			return s, fmt.Errorf("%w: got %d", domain.ErrInvalidInterval, s.IntervalSeconds)
		}
		next = base.Add(time.Duration(s.IntervalSeconds) * time.Second)
	case domain.ScheduleImmediate:
		s.NextRunAt = nil
		return s, nil
	default:
		return s, fmt.Errorf("%w: %q", domain.ErrUnknownMode, s.Mode)
	}

	if s.EndAt != nil && next.After(*s.EndAt) {
		s.NextRunAt = nil
		s.Enabled = false
		return s, nil
	}
	s.NextRunAt = &next
	return s, nil
}
