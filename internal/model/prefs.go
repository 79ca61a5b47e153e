package model

import "time"

// SchedulingPrefs holds per-owner timezone and notification policy.
// DailyDigestTime ("HH:MM", owner-local) is required iff DailyDigestEnabled.
type SchedulingPrefs struct {
	OwnerID string

	// Timezone is an IANA name, e.g. "Europe/Berlin".
	Timezone string

	// DefaultReminderOffsetMinutes applies when a reminder is created
	// without an explicit offset. Nil means no default.
	DefaultReminderOffsetMinutes *int

	PushEnabled        bool
	DailyDigestEnabled bool
	DailyDigestTime    string

	// LastDigestDate is the owner-local date ("2006-01-02") of the most
	// recently sent digest, so the sweep sends at most one per day.
	LastDigestDate string

	UpdatedAt time.Time
}

// DefaultPrefs is what owners get before they save anything.
func DefaultPrefs(ownerID string) SchedulingPrefs {
	return SchedulingPrefs{
		OwnerID:  ownerID,
		Timezone: "UTC",
	}
}

func (p *SchedulingPrefs) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}
