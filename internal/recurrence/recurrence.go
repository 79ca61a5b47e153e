// Package recurrence expands recurrence rules into concrete calendar
// dates. Expansion is pure: no I/O, deterministic, restartable from any
// point in the series.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"remindd/internal/model"
)

var (
	ErrBadInterval     = errors.New("recurrence: interval must be >= 1")
	ErrBadFrequency    = errors.New("recurrence: unknown frequency")
	ErrEmptyWeekdays   = errors.New("recurrence: weekly rule requires a weekday set")
	ErrBadWeekday      = errors.New("recurrence: invalid weekday")
	ErrBadMonthDay     = errors.New("recurrence: day of month must be in 1..31")
	ErrConflictingEnd  = errors.New("recurrence: end policy date and count are mutually exclusive")
	ErrConstraintScope = errors.New("recurrence: constraint not valid for this frequency")
)

// Validate rejects malformed rules synchronously, before anything is
// persisted. Expansion assumes a validated rule.
func Validate(r *model.RecurrenceRule) error {
	if r == nil {
		return errors.New("recurrence: nil rule")
	}
	if r.Interval < 1 {
		return ErrBadInterval
	}

	switch r.Frequency {
	case model.FreqDaily, model.FreqWeekly, model.FreqMonthly, model.FreqYearly, model.FreqCustom:
	default:
		return fmt.Errorf("%w: %q", ErrBadFrequency, r.Frequency)
	}

	if len(r.ByWeekday) > 0 && r.Frequency != model.FreqWeekly {
		return fmt.Errorf("%w: by_weekday on %s rule", ErrConstraintScope, r.Frequency)
	}
	if r.ByMonthDay != 0 && r.Frequency != model.FreqMonthly {
		return fmt.Errorf("%w: by_month_day on %s rule", ErrConstraintScope, r.Frequency)
	}

	switch r.Frequency {
	case model.FreqWeekly:
		if len(r.ByWeekday) == 0 {
			return ErrEmptyWeekdays
		}
		seen := map[time.Weekday]bool{}
		for _, w := range r.ByWeekday {
			if w < time.Sunday || w > time.Saturday {
				return fmt.Errorf("%w: %d", ErrBadWeekday, w)
			}
			if seen[w] {
				return fmt.Errorf("%w: duplicate %s", ErrBadWeekday, w)
			}
			seen[w] = true
		}
	case model.FreqMonthly:
		if r.ByMonthDay < 0 || r.ByMonthDay > 31 {
			return ErrBadMonthDay
		}
	}

	switch r.End.Kind {
	case model.EndNever, "":
		// A zero-value policy reads as an open-ended series.
		if r.End.Date != nil || r.End.Count != 0 {
			return ErrConflictingEnd
		}
	case model.EndOnDate:
		if r.End.Date == nil || r.End.Count != 0 {
			return ErrConflictingEnd
		}
	case model.EndAfterCount:
		if r.End.Date != nil || r.End.Count < 1 {
			return ErrConflictingEnd
		}
	default:
		return fmt.Errorf("recurrence: unknown end policy %q", r.End.Kind)
	}

	return nil
}

// DateOf truncates an instant to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateIn truncates an instant to its calendar date in loc, expressed as
// UTC midnight (the engine's canonical date encoding).
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	// First of next month, minus one day.
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}

// weekStart returns the Monday of d's calendar week.
func weekStart(d time.Time) time.Time {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7 // Sunday closes the week
	}
	return d.AddDate(0, 0, -(wd - 1))
}
