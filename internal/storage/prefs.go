package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"remindd/internal/model"
)

type prefsRow struct {
	OwnerID              string `db:"owner_id"`
	Timezone             string `db:"timezone"`
	DefaultOffsetMinutes *int   `db:"default_offset_minutes"`
	PushEnabled          bool   `db:"push_enabled"`
	DigestEnabled        bool   `db:"digest_enabled"`
	DigestTime           string `db:"digest_time"`
	LastDigestDate       string `db:"last_digest_date"`
	UpdatedAt            int64  `db:"updated_at"`
}

func (r prefsRow) toModel() *model.SchedulingPrefs {
	return &model.SchedulingPrefs{
		OwnerID:                      r.OwnerID,
		Timezone:                     r.Timezone,
		DefaultReminderOffsetMinutes: r.DefaultOffsetMinutes,
		PushEnabled:                  r.PushEnabled,
		DailyDigestEnabled:           r.DigestEnabled,
		DailyDigestTime:              r.DigestTime,
		LastDigestDate:               r.LastDigestDate,
		UpdatedAt:                    fromMilli(r.UpdatedAt),
	}
}

// GetPrefs returns ErrNotFound for owners who never saved preferences;
// the prefs service substitutes defaults.
func (s *Store) GetPrefs(ctx context.Context, ownerID string) (*model.SchedulingPrefs, error) {
	var r prefsRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM scheduling_prefs WHERE owner_id = ?`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prefs: %w", err)
	}
	return r.toModel(), nil
}

func (s *Store) UpsertPrefs(ctx context.Context, p *model.SchedulingPrefs) error {
	p.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduling_prefs (owner_id, timezone, default_offset_minutes,
			push_enabled, digest_enabled, digest_time, last_digest_date, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (owner_id) DO UPDATE SET
			timezone = excluded.timezone,
			default_offset_minutes = excluded.default_offset_minutes,
			push_enabled = excluded.push_enabled,
			digest_enabled = excluded.digest_enabled,
			digest_time = excluded.digest_time,
			updated_at = excluded.updated_at`,
		p.OwnerID, p.Timezone, p.DefaultReminderOffsetMinutes,
		p.PushEnabled, p.DailyDigestEnabled, p.DailyDigestTime, p.LastDigestDate, milli(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert prefs: %w", err)
	}
	return nil
}

// SetLastDigestDate records the owner-local date of the last digest so
// the sweep sends at most one per day.
func (s *Store) SetLastDigestDate(ctx context.Context, ownerID, localDate string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduling_prefs SET last_digest_date = ? WHERE owner_id = ?`, localDate, ownerID)
	if err != nil {
		return fmt.Errorf("set last digest date: %w", err)
	}
	return nil
}

// ListDigestOwners returns every prefs row with the daily digest enabled.
func (s *Store) ListDigestOwners(ctx context.Context) ([]*model.SchedulingPrefs, error) {
	var rows []prefsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM scheduling_prefs WHERE digest_enabled = 1 ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list digest owners: %w", err)
	}
	out := make([]*model.SchedulingPrefs, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
