/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package quota keeps monthly per-track play goals and runs the once-a-day
// reactivation sweep.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/huginn_fleet/internal/models"
	"github.com/friendsincode/huginn_fleet/internal/settings"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Resetter evaluates the daily-reset gate and executes the sweep.
type Resetter struct {
	db        *gorm.DB
	loc       *time.Location
	resetHour int
	logger    zerolog.Logger

	now func() time.Time // test hook
}

// NewResetter creates the daily reset subsystem. resetHour is the local hour
// after which the reset may fire.
func NewResetter(db *gorm.DB, loc *time.Location, resetHour int, logger zerolog.Logger) *Resetter {
	if loc == nil {
		loc = time.UTC
	}
	return &Resetter{
		db:        db,
		loc:       loc,
		resetHour: resetHour,
		logger:    logger.With().Str("component", "daily_reset").Logger(),
		now:       time.Now,
	}
}

// Due reports whether the reset should fire given the settings snapshot: the
// auto-reset flag is on, the local clock has passed the threshold hour, and
// the persisted marker shows no reset has run today.
func (r *Resetter) Due(snap settings.Snapshot) bool {
	if !snap.AutoResetEnabled {
		return false
	}
	now := r.now().In(r.loc)
	if now.Hour() < r.resetHour {
		return false
	}
	return snap.LastResetDate != now.Format(dateLayout)
}

// Run executes the daily sweep as one transaction:
//   - first reset of a new month rolls every quota's accumulated count to the
//     new month label and zeroes item monthly counters
//   - today's play counters are zeroed everywhere
//   - items of every under-quota track are reopened (progress zeroed, pending)
//   - the last-reset-date marker is advanced, making a second invocation on
//     the same date a no-op at the gate
func (r *Resetter) Run(ctx context.Context, snap settings.Snapshot) error {
	now := r.now().In(r.loc)
	today := now.Format(dateLayout)
	month := now.Format(monthLayout)

	rollover := isMonthRollover(snap.LastResetDate, month)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rollover {
			if err := tx.Model(&models.TrackQuota{}).
				Where("month <> ?", month).
				Updates(map[string]any{"monthly_plays": 0, "month": month}).Error; err != nil {
				return fmt.Errorf("roll quota month: %w", err)
			}
			if err := tx.Model(&models.QueueItem{}).
				Where("1 = 1").
				Update("monthly_plays", 0).Error; err != nil {
				return fmt.Errorf("zero item monthly counters: %w", err)
			}
		}

		if err := tx.Model(&models.QueueItem{}).
			Where("1 = 1").
			Update("today_plays", 0).Error; err != nil {
			return fmt.Errorf("zero today counters: %w", err)
		}

		var underQuota []models.TrackQuota
		if err := tx.Where("monthly_plays < monthly_goal").Find(&underQuota).Error; err != nil {
			return fmt.Errorf("load under-quota tracks: %w", err)
		}

		for _, q := range underQuota {
			if err := tx.Model(&models.QueueItem{}).
				Where("track_id = ?", q.TrackID).
				Updates(map[string]any{
					"current_plays": 0,
					"status":        models.StatusPending,
				}).Error; err != nil {
				return fmt.Errorf("reopen items for track %s: %w", q.TrackID, err)
			}
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{"value": today}),
		}).Create(&models.Setting{Key: models.SettingLastResetDate, Value: today}).Error; err != nil {
			return fmt.Errorf("persist reset marker: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("date", today).
		Bool("month_rollover", rollover).
		Msg("daily reset completed")
	return nil
}

// isMonthRollover is true when the previous reset ran in a different month.
// A blank marker means the sweep has never run; that is not a rollover.
func isMonthRollover(lastResetDate, currentMonth string) bool {
	if len(lastResetDate) < len(monthLayout) {
		return false
	}
	return lastResetDate[:len(monthLayout)] != currentMonth
}

// Upsert creates or refreshes the quota record for a track.
func Upsert(ctx context.Context, db *gorm.DB, q *models.TrackQuota) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":         q.Name,
			"monthly_goal": q.MonthlyGoal,
			"daily_plays":  q.DailyPlays,
			"month":        q.Month,
		}),
	}).Create(q).Error
	if err != nil {
		return fmt.Errorf("upsert quota for track %s: %w", q.TrackID, err)
	}
	return nil
}

// List returns every quota record.
func List(ctx context.Context, db *gorm.DB) ([]models.TrackQuota, error) {
	var quotas []models.TrackQuota
	if err := db.WithContext(ctx).Order("track_id").Find(&quotas).Error; err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	return quotas, nil
}
