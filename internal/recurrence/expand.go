package recurrence

import (
	"time"

	"remindd/internal/model"
)

// maxSteps bounds a single expansion so a pathological range can never
// spin the caller. 1..maxSteps candidate dates is far beyond any
// materialization window the engine asks for.
const maxSteps = 2000

// Expand returns the rule's candidate dates within [from, to], ordered
// ascending and deduplicated. Anchor is the series start date (UTC
// midnight); candidates before the anchor or past an on_date end policy
// never appear. after_count policies are enforced by the caller, which
// tracks ever-generated occurrences separately from any one range.
func Expand(r *model.RecurrenceRule, anchor, from, to time.Time) []time.Time {
	anchor = DateOf(anchor)
	from = DateOf(from)
	to = DateOf(to)

	if from.Before(anchor) {
		from = anchor
	}
	if end := endDate(r); end != nil && to.After(*end) {
		to = *end
	}
	if to.Before(from) {
		return nil
	}

	var out []time.Time
	cur, ok := first(r, anchor)
	for steps := 0; ok && steps < maxSteps; steps++ {
		if cur.After(to) {
			break
		}
		if !cur.Before(from) {
			out = append(out, cur)
		}
		cur, ok = next(r, anchor, cur)
	}
	return out
}

// Next returns the first candidate date strictly after the given date.
// It is the single-step backfill primitive: consuming one occurrence
// advances the materialized frontier by exactly one call to Next.
// ok is false when the rule's on_date end policy is exhausted.
func Next(r *model.RecurrenceRule, anchor, after time.Time) (time.Time, bool) {
	anchor = DateOf(anchor)
	after = DateOf(after)

	cur, ok := first(r, anchor)
	for steps := 0; ok && steps < maxSteps; steps++ {
		if cur.After(after) {
			if end := endDate(r); end != nil && cur.After(*end) {
				return time.Time{}, false
			}
			return cur, true
		}
		cur, ok = next(r, anchor, cur)
	}
	return time.Time{}, false
}

func endDate(r *model.RecurrenceRule) *time.Time {
	if r.End.Kind != model.EndOnDate || r.End.Date == nil {
		return nil
	}
	d := DateOf(*r.End.Date)
	return &d
}

// first returns the earliest candidate on or after the anchor.
func first(r *model.RecurrenceRule, anchor time.Time) (time.Time, bool) {
	switch r.Frequency {
	case model.FreqWeekly:
		// The anchor's own week counts as week zero, so a rule created on
		// a Monday with {Mon,Wed,Fri} starts that same calendar week.
		for d := anchor; ; d = d.AddDate(0, 0, 1) {
			if r.HasWeekday(d.Weekday()) && inSelectedWeek(r, anchor, d) {
				return d, true
			}
			if d.Sub(anchor) > time.Duration(r.Interval+1)*7*24*time.Hour {
				return time.Time{}, false
			}
		}
	case model.FreqMonthly:
		day := r.ByMonthDay
		if day == 0 {
			day = anchor.Day()
		}
		c := monthlyDate(anchor.Year(), anchor.Month(), day)
		if c.Before(anchor) {
			// Step from the first of the month so normalization can't
			// overshoot (Jan 31 + 1 month is not March).
			n := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, r.Interval, 0)
			c = monthlyDate(n.Year(), n.Month(), day)
		}
		return c, true
	default:
		return anchor, true
	}
}

// next returns the candidate following cur.
func next(r *model.RecurrenceRule, anchor, cur time.Time) (time.Time, bool) {
	switch r.Frequency {
	case model.FreqDaily, model.FreqCustom:
		// Custom frequency steps in days with an arbitrary interval.
		return cur.AddDate(0, 0, r.Interval), true

	case model.FreqWeekly:
		for d := cur.AddDate(0, 0, 1); ; d = d.AddDate(0, 0, 1) {
			if r.HasWeekday(d.Weekday()) && inSelectedWeek(r, anchor, d) {
				return d, true
			}
			// Interval weeks plus one full week is the longest possible gap.
			if d.Sub(cur) > time.Duration(r.Interval+1)*7*24*time.Hour {
				return time.Time{}, false
			}
		}

	case model.FreqMonthly:
		day := r.ByMonthDay
		if day == 0 {
			day = anchor.Day()
		}
		// Step whole months from cur's month so clamping (e.g. day 31 in
		// February) never skips a month.
		y, m, _ := cur.Date()
		n := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, r.Interval, 0)
		return monthlyDate(n.Year(), n.Month(), day), true

	case model.FreqYearly:
		y := cur.Year() + r.Interval
		d := anchor.Day()
		if mx := daysInMonth(y, anchor.Month()); d > mx {
			d = mx // Feb 29 anchors clamp in non-leap years
		}
		return time.Date(y, anchor.Month(), d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// inSelectedWeek reports whether d falls in a week selected by the rule's
// interval, counting calendar weeks (Monday start) from the anchor's week.
func inSelectedWeek(r *model.RecurrenceRule, anchor, d time.Time) bool {
	if r.Interval <= 1 {
		return true
	}
	weeks := int(weekStart(d).Sub(weekStart(anchor)).Hours() / (24 * 7))
	return weeks%r.Interval == 0
}

// monthlyDate builds year/month at day, clamped to the month's last day.
func monthlyDate(year int, month time.Month, day int) time.Time {
	if mx := daysInMonth(year, month); day > mx {
		day = mx
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
