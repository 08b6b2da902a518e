package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/models"
	"github.com/friendsincode/huginn_fleet/internal/presence"
	"github.com/friendsincode/huginn_fleet/internal/queue"
	"github.com/friendsincode/huginn_fleet/internal/quota"
	"github.com/friendsincode/huginn_fleet/internal/settings"
)

type testRig struct {
	db      *gorm.DB
	engine  *Engine
	queue   *queue.Store
	tracker *presence.Tracker
	bus     *events.Bus
}

func newTestRig(t *testing.T, resetHour int) *testRig {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.QueueItem{}, &models.TrackQuota{}, &models.DailyPlay{},
		&models.Device{}, &models.Setting{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	logger := zerolog.Nop()
	q := queue.New(db, logger)
	tracker := presence.New(db, time.Minute, logger)
	sstore := settings.New(db)
	resetter := quota.NewResetter(db, time.UTC, resetHour, logger)
	bus := events.NewBus()

	eng := New(db, q, tracker, sstore, resetter, bus, Options{
		EmptyBackoff:   30 * time.Second,
		ErrorBackoff:   15 * time.Second,
		DoneClearDelay: time.Second,
		Location:       time.UTC,
	}, logger)

	// Keep the reset gate quiet unless a test opts in.
	if err := sstore.Set(context.Background(), models.SettingAutoReset, "false"); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	return &testRig{db: db, engine: eng, queue: q, tracker: tracker, bus: bus}
}

func (r *testRig) heartbeat(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		r.tracker.RecordHeartbeat(context.Background(), id)
	}
}

func (r *testRig) addItem(t *testing.T, item models.QueueItem) *models.QueueItem {
	t.Helper()
	if err := r.queue.Add(context.Background(), &item); err != nil {
		t.Fatalf("add item: %v", err)
	}
	return &item
}

func TestIterateAppliesCreditAndSleepsFullCycle(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	ctx := context.Background()
	rig.heartbeat(t, "d1", "d2", "d3", "d4")

	item := rig.addItem(t, models.QueueItem{
		Link: "spotify:track:x", Name: "song", DesiredPlays: 100, DurationMin: 3.0, TrackID: "trk-1",
	})
	if err := rig.db.Create(&models.TrackQuota{TrackID: "trk-1", MonthlyGoal: 1000, Month: "2026-08"}).Error; err != nil {
		t.Fatal(err)
	}

	delay, err := rig.engine.iterate(ctx)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}

	// duration 3.0 min -> cycle of exactly 190 seconds
	if delay != 190*time.Second {
		t.Fatalf("expected 190s cycle, got %v", delay)
	}

	var got models.QueueItem
	if err := rig.db.First(&got, item.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.CurrentPlays != 4 || got.MonthlyPlays != 4 || got.TodayPlays != 4 {
		t.Fatalf("expected credit of 4 on all counters, got current=%d monthly=%d today=%d",
			got.CurrentPlays, got.MonthlyPlays, got.TodayPlays)
	}
	if got.Status != models.StatusPlaying {
		t.Fatalf("expected playing, got %s", got.Status)
	}

	var quotaRow models.TrackQuota
	if err := rig.db.Where("track_id = ?", "trk-1").First(&quotaRow).Error; err != nil {
		t.Fatal(err)
	}
	if quotaRow.MonthlyPlays != 4 {
		t.Fatalf("quota must advance with the item, got %d", quotaRow.MonthlyPlays)
	}

	var daily models.DailyPlay
	if err := rig.db.Where("track_id = ?", "trk-1").First(&daily).Error; err != nil {
		t.Fatal(err)
	}
	if daily.Plays != 4 {
		t.Fatalf("daily history must record the credit, got %d", daily.Plays)
	}
}

func TestIterateCreditCappedByRemainingTarget(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	ctx := context.Background()
	rig.heartbeat(t, "d1", "d2", "d3", "d4", "d5")

	item := rig.addItem(t, models.QueueItem{
		Link: "l", Name: "nearly done", DesiredPlays: 10, DurationMin: 2.0,
	})
	if err := rig.db.Model(&models.QueueItem{}).Where("id = ?", item.ID).
		Updates(map[string]any{"current_plays": 8, "status": models.StatusPlaying}).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := rig.engine.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	var got models.QueueItem
	if err := rig.db.First(&got, item.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.CurrentPlays != 10 {
		t.Fatalf("credit must cap at the target: got %d", got.CurrentPlays)
	}
}

func TestIterateEmptyFleetBacksOff(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	rig.addItem(t, models.QueueItem{Link: "l", Name: "waiting", DesiredPlays: 5, DurationMin: 3})

	delay, err := rig.engine.iterate(context.Background())
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if delay != 30*time.Second {
		t.Fatalf("expected 30s pause backoff, got %v", delay)
	}

	// Queue must be untouched while paused.
	var got models.QueueItem
	if err := rig.db.First(&got).Error; err != nil {
		t.Fatal(err)
	}
	if got.CurrentPlays != 0 || got.Status != models.StatusPending {
		t.Fatalf("paused engine must not advance items: %+v", got)
	}
}

func TestIterateEmptyQueueBacksOff(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	rig.heartbeat(t, "d1")

	delay, err := rig.engine.iterate(context.Background())
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if delay != 30*time.Second {
		t.Fatalf("expected 30s empty-queue backoff, got %v", delay)
	}
}

func TestIterateCompletesItemQuickly(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	ctx := context.Background()
	rig.heartbeat(t, "d1")

	item := rig.addItem(t, models.QueueItem{Link: "l", Name: "full", DesiredPlays: 5, DurationMin: 3})
	if err := rig.db.Model(&models.QueueItem{}).Where("id = ?", item.ID).
		Updates(map[string]any{"current_plays": 5, "status": models.StatusPlaying}).Error; err != nil {
		t.Fatal(err)
	}

	delay, err := rig.engine.iterate(ctx)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if delay != time.Second {
		t.Fatalf("done items must clear after a short sleep, got %v", delay)
	}

	var got models.QueueItem
	if err := rig.db.First(&got, item.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusDone {
		t.Fatalf("expected done, got %s", got.Status)
	}
}

func TestIteratePicksUpPendingItem(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	ctx := context.Background()
	rig.heartbeat(t, "d1")

	item := rig.addItem(t, models.QueueItem{Link: "l", Name: "new", DesiredPlays: 5, DurationMin: 1})

	if _, err := rig.engine.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	var got models.QueueItem
	if err := rig.db.First(&got, item.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPlaying {
		t.Fatalf("pending item must transition to playing, got %s", got.Status)
	}
}

func TestIterateRunsDailyResetWhenDue(t *testing.T) {
	t.Parallel()

	// Threshold hour 0 means the gate is always past-threshold.
	rig := newTestRig(t, 0)
	ctx := context.Background()
	rig.heartbeat(t, "d1")

	sstore := settings.New(rig.db)
	if err := sstore.Set(ctx, models.SettingAutoReset, "true"); err != nil {
		t.Fatal(err)
	}
	if err := sstore.Set(ctx, models.SettingLastResetDate, "2020-01-01"); err != nil {
		t.Fatal(err)
	}

	item := rig.addItem(t, models.QueueItem{Link: "l", Name: "song", DesiredPlays: 5, DurationMin: 1})
	if err := rig.db.Model(&models.QueueItem{}).Where("id = ?", item.ID).
		Update("today_plays", 7).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := rig.engine.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	// The sweep zeroes the stale counter before the cycle credits its one
	// play, so the count reflects only today's work.
	var got models.QueueItem
	if err := rig.db.First(&got, item.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.TodayPlays != 1 {
		t.Fatalf("today counter must restart from the sweep, got %d", got.TodayPlays)
	}

	marker, err := sstore.Get(ctx, models.SettingLastResetDate)
	if err != nil {
		t.Fatal(err)
	}
	if marker == "2020-01-01" {
		t.Fatal("reset marker must advance")
	}
}

func TestIterateEmitsNowPlayingEvent(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 23)
	ctx := context.Background()
	rig.heartbeat(t, "d1")

	sub := rig.bus.Subscribe(events.EventNowPlaying)
	rig.addItem(t, models.QueueItem{Link: "spotify:track:y", Name: "pushed", DesiredPlays: 5, DurationMin: 1})

	if _, err := rig.engine.iterate(ctx); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	select {
	case payload := <-sub:
		if payload["link"] != "spotify:track:y" {
			t.Fatalf("unexpected now playing payload: %+v", payload)
		}
	default:
		t.Fatal("expected a now playing event")
	}
}
