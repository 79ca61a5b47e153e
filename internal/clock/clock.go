// Package clock abstracts wall-clock time so the periodic jobs can be
// driven deterministically in tests instead of sleeping.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always reports the same instant. Tests advance it explicitly.
type Fixed struct {
	t time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time { return f.t }

func (f *Fixed) Set(t time.Time) { f.t = t }

func (f *Fixed) Advance(d time.Duration) { f.t = f.t.Add(d) }
