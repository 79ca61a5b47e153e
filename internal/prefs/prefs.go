// Package prefs resolves per-owner scheduling preferences: timezone,
// default reminder offset, and notification policy.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindd/internal/model"
	"remindd/internal/storage"
	"remindd/pkg/logx"
)

var (
	ErrBadTimezone   = errors.New("prefs: unknown timezone")
	ErrBadDigestTime = errors.New("prefs: digest time required when digest is enabled")
	ErrBadOffset     = errors.New("prefs: default reminder offset must be negative")
)

// Reader is the storage surface this service needs.
type Reader interface {
	GetPrefs(ctx context.Context, ownerID string) (*model.SchedulingPrefs, error)
	UpsertPrefs(ctx context.Context, p *model.SchedulingPrefs) error
	ListDigestOwners(ctx context.Context) ([]*model.SchedulingPrefs, error)
	SetLastDigestDate(ctx context.Context, ownerID, localDate string) error
}

type Service struct {
	store Reader
	log   logx.Logger

	// locMu guards a small cache of loaded IANA locations; loading hits
	// the tzdata on every call otherwise.
	locMu sync.Mutex
	locs  map[string]*time.Location
}

func New(store Reader, log logx.Logger) *Service {
	return &Service{store: store, log: log, locs: map[string]*time.Location{}}
}

// Get returns the owner's stored preferences, or defaults (UTC, no push,
// no digest) for owners who never saved any.
func (s *Service) Get(ctx context.Context, ownerID string) (*model.SchedulingPrefs, error) {
	p, err := s.store.GetPrefs(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		def := model.DefaultPrefs(ownerID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update validates and persists preferences.
func (s *Service) Update(ctx context.Context, p *model.SchedulingPrefs) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := s.store.UpsertPrefs(ctx, p); err != nil {
		return err
	}
	s.log.Debug("preferences updated",
		logx.String("owner", p.OwnerID),
		logx.String("tz", p.Timezone),
		logx.Bool("push", p.PushEnabled),
		logx.Bool("digest", p.DailyDigestEnabled))
	return nil
}

// Validate checks the timezone, the digest-time invariant, and the
// default offset sign.
func Validate(p *model.SchedulingPrefs) error {
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: %q", ErrBadTimezone, p.Timezone)
		}
	}
	if p.DailyDigestEnabled {
		if _, _, err := ParseHHMM(p.DailyDigestTime); err != nil {
			return fmt.Errorf("%w: %v", ErrBadDigestTime, err)
		}
	}
	if p.DefaultReminderOffsetMinutes != nil && *p.DefaultReminderOffsetMinutes >= 0 {
		return ErrBadOffset
	}
	return nil
}

// ListDigestOwners returns every owner with the daily digest enabled.
func (s *Service) ListDigestOwners(ctx context.Context) ([]*model.SchedulingPrefs, error) {
	return s.store.ListDigestOwners(ctx)
}

// SetLastDigestDate records the owner-local date of the last digest.
func (s *Service) SetLastDigestDate(ctx context.Context, ownerID, localDate string) error {
	return s.store.SetLastDigestDate(ctx, ownerID, localDate)
}

// Location returns the owner's time.Location, falling back to UTC when
// nothing is stored or the stored name no longer loads.
func (s *Service) Location(ctx context.Context, ownerID string) (*time.Location, error) {
	p, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(p.Timezone)
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}

	s.locMu.Lock()
	loc, ok := s.locs[name]
	s.locMu.Unlock()
	if ok {
		return loc, nil
	}

	loc, err = time.LoadLocation(name)
	if err != nil {
		s.log.Warn("stored timezone no longer loads; using UTC",
			logx.String("owner", ownerID), logx.String("tz", name), logx.Err(err))
		return time.UTC, nil
	}
	s.locMu.Lock()
	s.locs[name] = loc
	s.locMu.Unlock()
	return loc, nil
}

// ParseHHMM parses a local "HH:MM" time of day.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
