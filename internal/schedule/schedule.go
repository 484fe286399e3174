// Package schedule computes the next fire instant for a job's schedule.
// Three schedule kinds are supported, matching the cron job's tagged
// union: a one-shot absolute instant ("at"), a fixed interval ("every"),
// and a timezone-aware cron expression ("cron") evaluated with
// github.com/adhocore/gronx, which auto-detects 5- vs 6-field
// expressions.
package schedule

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
)

const (
	KindAt    = "at"
	KindEvery = "every"
	KindCron  = "cron"
)

// Schedule is the tagged-union schedule descriptor. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Schedule struct {
	Kind    string `json:"kind"`
	AtMS    *int64 `json:"atMs,omitempty"`
	EveryMS *int64 `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// Validate checks that a schedule is well-formed for its declared kind.
func Validate(s Schedule) error {
	switch s.Kind {
	case KindAt:
		if s.AtMS == nil {
			return fmt.Errorf("%w: at schedule requires atMs", cronerr.ErrInvalidSchedule)
		}
	case KindEvery:
		if s.EveryMS == nil || *s.EveryMS <= 0 {
			return fmt.Errorf("%w: every schedule requires a positive everyMs", cronerr.ErrInvalidSchedule)
		}
	case KindCron:
		if s.Expr == "" {
			return fmt.Errorf("%w: cron schedule requires expr", cronerr.ErrInvalidSchedule)
		}
		if _, err := resolveLocation(s.TZ); err != nil {
			return fmt.Errorf("%w: %v", cronerr.ErrInvalidSchedule, err)
		}
		gx := gronx.New()
		if !gx.IsValid(s.Expr) {
			return fmt.Errorf("%w: invalid cron expression %q", cronerr.ErrInvalidSchedule, s.Expr)
		}
	default:
		return fmt.Errorf("%w: unknown schedule kind %q", cronerr.ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// NextRunAtMS returns the next fire instant strictly after the relevant
// reference point, or nil if the schedule has no further fires (an "at"
// schedule that has already run, or one that can never be satisfied).
//
// lastRunAtMS is nil if the job has never run.
func NextRunAtMS(s Schedule, lastRunAtMS *int64, nowMS int64) (*int64, error) {
	switch s.Kind {
	case KindAt:
		return nextAt(s, lastRunAtMS, nowMS)
	case KindEvery:
		return nextEvery(s, lastRunAtMS, nowMS)
	case KindCron:
		return nextCron(s, lastRunAtMS, nowMS)
	default:
		return nil, fmt.Errorf("%w: unknown schedule kind %q", cronerr.ErrInvalidSchedule, s.Kind)
	}
}

func nextAt(s Schedule, lastRunAtMS *int64, nowMS int64) (*int64, error) {
	if s.AtMS == nil {
		return nil, fmt.Errorf("%w: at schedule requires atMs", cronerr.ErrInvalidSchedule)
	}
	if lastRunAtMS != nil {
		// Already run once; a one-shot never fires again.
		return nil, nil
	}
	if *s.AtMS > nowMS {
		v := *s.AtMS
		return &v, nil
	}
	return nil, nil
}

// nextEvery implements the exact forward-progress formula: never run ->
// now+every; otherwise lastRun+every unless that's already in the past,
// in which case we skip forward by whole periods from the last run to the
// first one after now, never bursting through missed fires.
func nextEvery(s Schedule, lastRunAtMS *int64, nowMS int64) (*int64, error) {
	if s.EveryMS == nil || *s.EveryMS <= 0 {
		return nil, fmt.Errorf("%w: every schedule requires a positive everyMs", cronerr.ErrInvalidSchedule)
	}
	every := *s.EveryMS

	if lastRunAtMS == nil {
		next := nowMS + every
		return &next, nil
	}

	candidate := *lastRunAtMS + every
	if candidate > nowMS {
		return &candidate, nil
	}

	elapsed := nowMS - *lastRunAtMS
	next := nowMS + (every - elapsed%every)
	return &next, nil
}

func nextCron(s Schedule, lastRunAtMS *int64, nowMS int64) (*int64, error) {
	if s.Expr == "" {
		return nil, fmt.Errorf("%w: cron schedule requires expr", cronerr.ErrInvalidSchedule)
	}
	loc, err := resolveLocation(s.TZ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cronerr.ErrInvalidSchedule, err)
	}

	base := nowMS
	if lastRunAtMS != nil && *lastRunAtMS > base {
		base = *lastRunAtMS
	}
	baseTime := time.UnixMilli(base).In(loc)

	next, err := gronx.NextTickAfter(s.Expr, baseTime, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cronerr.ErrInvalidSchedule, err)
	}
	ms := next.UnixMilli()
	return &ms, nil
}

func resolveLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}
