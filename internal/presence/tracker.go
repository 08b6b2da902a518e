/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package presence tracks device liveness from heartbeats.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/huginn_fleet/internal/models"
)

// DefaultWindow is the recency threshold within which a device counts as online.
const DefaultWindow = 300 * time.Second

// Tracker maintains per-device last-seen timestamps.
type Tracker struct {
	db     *gorm.DB
	window time.Duration
	logger zerolog.Logger
}

// New creates a presence tracker. A non-positive window falls back to the default.
func New(db *gorm.DB, window time.Duration, logger zerolog.Logger) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		db:     db,
		window: window,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// RecordHeartbeat upserts the device's last-seen timestamp. Heartbeats are
// fire-and-forget: a store failure is logged and swallowed so device clients
// never see an error.
func (t *Tracker) RecordHeartbeat(ctx context.Context, deviceID string) {
	if deviceID == "" {
		deviceID = "unknown"
	}

	now := time.Now().UTC()
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]any{"last_seen": now}),
	}).Create(&models.Device{DeviceID: deviceID, LastSeen: now}).Error
	if err != nil {
		t.logger.Warn().Err(err).Str("device", deviceID).Msg("heartbeat upsert failed")
	}
}

// OnlineCount returns how many devices heartbeated within the freshness
// window. Returns 0 on an empty table; callers treat 0 as "fleet paused".
func (t *Tracker) OnlineCount(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-t.window)

	var count int64
	err := t.db.WithContext(ctx).Model(&models.Device{}).
		Where("last_seen > ?", cutoff).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Window exposes the configured freshness window.
func (t *Tracker) Window() time.Duration {
	return t.window
}
