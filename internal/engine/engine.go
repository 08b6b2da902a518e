/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine runs the perpetual playback scheduling loop: pick the
// active queue item, distribute play credit across the online fleet, persist
// progress, sleep out the cycle, repeat. Exactly one engine loop may be
// active across all deployed processes; leadership is coordinated in
// leader_aware.go.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/models"
	"github.com/friendsincode/huginn_fleet/internal/presence"
	"github.com/friendsincode/huginn_fleet/internal/queue"
	"github.com/friendsincode/huginn_fleet/internal/quota"
	"github.com/friendsincode/huginn_fleet/internal/settings"
	"github.com/friendsincode/huginn_fleet/internal/telemetry"
)

// publisher is the slice of the event bus the engine needs.
type publisher interface {
	Publish(events.EventType, events.Payload)
}

// Options tunes the engine's backoff behavior.
type Options struct {
	EmptyBackoff   time.Duration // queue empty or fleet offline
	ErrorBackoff   time.Duration // after a failed iteration
	DoneClearDelay time.Duration // after marking an item done
	Location       *time.Location
}

func (o *Options) applyDefaults() {
	if o.EmptyBackoff <= 0 {
		o.EmptyBackoff = 30 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 15 * time.Second
	}
	if o.DoneClearDelay <= 0 {
		o.DoneClearDelay = time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
}

// Engine is the automation loop.
type Engine struct {
	db       *gorm.DB
	queue    *queue.Store
	tracker  *presence.Tracker
	settings *settings.Store
	resetter *quota.Resetter
	bus      publisher
	logger   zerolog.Logger
	opts     Options

	now func() time.Time // test hook
}

// New constructs the engine.
func New(db *gorm.DB, q *queue.Store, tracker *presence.Tracker, sstore *settings.Store, resetter *quota.Resetter, bus publisher, opts Options, logger zerolog.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		db:       db,
		queue:    q,
		tracker:  tracker,
		settings: sstore,
		resetter: resetter,
		bus:      bus,
		logger:   logger.With().Str("component", "engine").Logger(),
		opts:     opts,
		now:      time.Now,
	}
}

// Run executes the loop until the context is cancelled. A failed iteration
// is logged and followed by a bounded backoff; the loop itself never exits
// on a fault.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("automation engine started")

	for {
		delay, err := e.iterate(ctx)
		if err != nil {
			telemetry.EngineErrorsTotal.Inc()
			e.logger.Error().Err(err).Msg("engine iteration failed")
			delay = e.opts.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			e.logger.Info().Msg("automation engine stopped")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// iterate performs one cycle and returns how long to sleep before the next.
func (e *Engine) iterate(ctx context.Context) (time.Duration, error) {
	snap, err := e.settings.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load settings snapshot: %w", err)
	}

	online, err := e.tracker.OnlineCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count online devices: %w", err)
	}
	telemetry.DevicesOnline.Set(float64(online))

	// An empty fleet means "system paused", not an error. Devices polling
	// the projection see an empty link until someone heartbeats again.
	if online == 0 {
		telemetry.EnginePausedCyclesTotal.Inc()
		e.bus.Publish(events.EventEnginePaused, events.Payload{})
		return e.opts.EmptyBackoff, nil
	}

	if e.resetter.Due(snap) {
		if err := e.resetter.Run(ctx, snap); err != nil {
			return 0, fmt.Errorf("daily reset: %w", err)
		}
		telemetry.DailyResetsTotal.Inc()
		e.bus.Publish(events.EventDailyReset, events.Payload{"date": e.now().In(e.opts.Location).Format("2006-01-02")})
	}

	active, err := e.queue.NextActive(ctx)
	if err != nil {
		return 0, err
	}
	if active == nil {
		return e.opts.EmptyBackoff, nil
	}

	if active.Status == models.StatusPending {
		if err := e.queue.MarkPlaying(ctx, active.ID); err != nil {
			return 0, err
		}
	}

	if active.CurrentPlays >= active.DesiredPlays {
		// Target reached: close the item out quickly so the next one starts
		// without waiting a full cycle.
		if err := e.queue.MarkDone(ctx, active.ID); err != nil {
			return 0, err
		}
		e.logger.Info().
			Uint("item", active.ID).
			Str("name", active.Name).
			Msg("queue item completed")
		e.bus.Publish(events.EventQueueUpdated, events.Payload{"item_id": active.ID})
		return e.opts.DoneClearDelay, nil
	}

	credit := active.Remaining()
	if online < credit {
		credit = online
	}

	if err := e.applyCredit(ctx, active, credit); err != nil {
		return 0, fmt.Errorf("apply credit: %w", err)
	}

	telemetry.EngineCyclesTotal.Inc()
	telemetry.EngineCreditTotal.Add(float64(credit))

	e.logger.Info().
		Uint("item", active.ID).
		Str("name", active.Name).
		Int("online", online).
		Int("credit", credit).
		Int("progress", active.CurrentPlays+credit).
		Int("target", active.DesiredPlays).
		Msg("cycle dispatched")

	e.publishNowPlaying(ctx, online)

	return time.Duration(active.CycleSeconds() * float64(time.Second)), nil
}

// applyCredit advances the item's counters together with its daily history
// and monthly quota in one transaction, so progress can never run ahead of
// the quota bookkeeping.
func (e *Engine) applyCredit(ctx context.Context, item *models.QueueItem, credit int) error {
	today := e.now().In(e.opts.Location).Format("2006-01-02")

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.QueueItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"current_plays":    gorm.Expr("current_plays + ?", credit),
				"monthly_plays":    gorm.Expr("monthly_plays + ?", credit),
				"today_plays":      gorm.Expr("today_plays + ?", credit),
				"status":           models.StatusPlaying,
				"last_played_date": today,
			}).Error
		if err != nil {
			return fmt.Errorf("advance item %d: %w", item.ID, err)
		}

		if item.TrackID == "" {
			return nil
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "track_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{"plays": gorm.Expr("plays + ?", credit)}),
		}).Create(&models.DailyPlay{TrackID: item.TrackID, Date: today, Plays: credit}).Error
		if err != nil {
			return fmt.Errorf("record daily play: %w", err)
		}

		err = tx.Model(&models.TrackQuota{}).
			Where("track_id = ?", item.TrackID).
			Update("monthly_plays", gorm.Expr("monthly_plays + ?", credit)).Error
		if err != nil {
			return fmt.Errorf("advance quota: %w", err)
		}
		return nil
	})
}

// publishNowPlaying pushes the freshly projected state onto the bus for
// WebSocket subscribers. Poll reads always recompute; this is push-only.
func (e *Engine) publishNowPlaying(ctx context.Context, online int) {
	current, err := Project(ctx, e.queue, online)
	if err != nil {
		e.logger.Warn().Err(err).Msg("now playing projection failed")
		return
	}
	e.bus.Publish(events.EventNowPlaying, events.Payload{
		"link":         current.Link,
		"duration_min": current.DurationMin,
		"name":         current.Name,
		"change_token": current.ChangeToken,
	})
}
