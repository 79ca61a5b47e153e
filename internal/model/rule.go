package model

import "time"

type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
	FreqCustom  Frequency = "custom"
)

type EndPolicyKind string

const (
	EndNever      EndPolicyKind = "never"
	EndOnDate     EndPolicyKind = "on_date"
	EndAfterCount EndPolicyKind = "after_count"
)

// EndPolicy terminates a series. Date and Count are mutually exclusive;
// whichever matches Kind is the one that applies.
type EndPolicy struct {
	Kind  EndPolicyKind `json:"kind"`
	Date  *time.Time    `json:"date,omitempty"`
	Count int           `json:"count,omitempty"`
}

// RecurrenceRule describes a repeating schedule. A non-recurring task
// carries no rule at all.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`

	// Interval repeats every N units of Frequency. Zero is invalid; callers
	// should default it to 1 before validation.
	Interval int `json:"interval"`

	// ByWeekday selects weekdays within each interval week (weekly only).
	ByWeekday []time.Weekday `json:"by_weekday,omitempty"`

	// ByMonthDay anchors monthly rules to a day of month (monthly only).
	// Days past the end of a short month clamp to its last day.
	ByMonthDay int `json:"by_month_day,omitempty"`

	End EndPolicy `json:"end"`
}

func (r *RecurrenceRule) HasWeekday(d time.Weekday) bool {
	for _, w := range r.ByWeekday {
		if w == d {
			return true
		}
	}
	return false
}
