/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// QueueStatus tracks an item's place in the playback lifecycle.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusPlaying QueueStatus = "playing"
	StatusDone    QueueStatus = "done"
)

// QueueItem is one scheduled playback unit. Items are served in ascending
// Position order; Position is a dedicated sequence column so reordering never
// touches the primary key.
type QueueItem struct {
	ID               uint `gorm:"primaryKey"`
	Position         int  `gorm:"index"`
	Link             string
	Name             string
	DesiredPlays     int
	CurrentPlays     int
	MonthlyPlays     int
	TodayPlays       int
	DurationMin      float64     `gorm:"default:3.0"`
	Status           QueueStatus `gorm:"type:varchar(16);index"`
	TrackID          string      `gorm:"index"` // set only for items created by a validation job
	SourcePlaylistID string
	LastPlayedDate   string `gorm:"type:varchar(10)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Remaining returns how many plays the item still needs.
func (q *QueueItem) Remaining() int {
	if q.CurrentPlays >= q.DesiredPlays {
		return 0
	}
	return q.DesiredPlays - q.CurrentPlays
}

// CycleSeconds is the engine sleep for one play cycle of this item: the
// track length plus a fixed settle margin.
func (q *QueueItem) CycleSeconds() float64 {
	return q.DurationMin*60 + 10
}

// TrackQuota is the monthly play goal for one distinct track, shared by every
// queue item carrying the same track id. Month holds the label the
// accumulated count applies to (YYYY-MM); the counter is zeroed when the
// daily reset first runs in a new month.
type TrackQuota struct {
	ID           uint   `gorm:"primaryKey"`
	TrackID      string `gorm:"uniqueIndex"`
	Name         string
	MonthlyGoal  int
	MonthlyPlays int
	Month        string `gorm:"type:varchar(7)"`
	DailyPlays   int    // estimated plays/day: matching playlists x per-playlist target
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DailyPlay is the append-only (track, date) play history used for reporting.
type DailyPlay struct {
	ID      uint   `gorm:"primaryKey"`
	TrackID string `gorm:"uniqueIndex:idx_daily_track_date"`
	Date    string `gorm:"type:varchar(10);uniqueIndex:idx_daily_track_date"`
	Plays   int
}

// Device records the last heartbeat per device. Rows are never deleted;
// liveness is derived from LastSeen recency.
type Device struct {
	ID        uint   `gorm:"primaryKey"`
	DeviceID  string `gorm:"uniqueIndex"`
	LastSeen  time.Time
	CreatedAt time.Time
}

// Playlist is a registered catalog playlist scanned by validation jobs.
type Playlist struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	CatalogRef string `gorm:"uniqueIndex"` // catalog-side playlist id or URL
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Setting is one key/value configuration row.
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex"`
	Value     string
	UpdatedAt time.Time
}

// Setting keys consumed by the engine.
const (
	SettingAutoReset     = "auto_reset_enabled"
	SettingLastResetDate = "last_reset_date"
)
