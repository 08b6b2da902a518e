/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/huginn_fleet/internal/catalog"
	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/models"
)

// fakeCatalog answers from fixed data: one known track and a membership
// map of playlist ref to track ids.
type fakeCatalog struct {
	track       *catalog.Track
	memberships map[string][]string
	pageSize    int
}

func (f *fakeCatalog) ResolveTrack(_ context.Context, ref string) (*catalog.Track, error) {
	if f.track == nil || catalog.ParseRef(ref) != f.track.ID {
		return nil, catalog.ErrNotFound
	}
	return f.track, nil
}

func (f *fakeCatalog) PlaylistName(_ context.Context, ref string) (string, error) {
	if _, ok := f.memberships[ref]; !ok {
		return "", catalog.ErrNotFound
	}
	return "playlist " + ref, nil
}

func (f *fakeCatalog) PlaylistTracks(_ context.Context, ref string, offset, limit int) (*catalog.Page, error) {
	ids, ok := f.memberships[ref]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	if f.pageSize > 0 && limit > f.pageSize {
		limit = f.pageSize
	}
	end := offset + limit
	if offset > len(ids) {
		offset = len(ids)
	}
	if end > len(ids) {
		end = len(ids)
	}
	return &catalog.Page{TrackIDs: ids[offset:end], Total: len(ids)}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.QueueItem{}, &models.TrackQuota{}, &models.Playlist{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedPlaylist(t *testing.T, db *gorm.DB, ref, name string) models.Playlist {
	t.Helper()
	p := models.Playlist{ID: uuid.New().String(), CatalogRef: ref, Name: name}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed playlist: %v", err)
	}
	return p
}

func newService(db *gorm.DB, cat catalog.Client) *Service {
	return New(db, cat, events.NewBus(), time.UTC, 100, zerolog.Nop())
}

// waitDone polls until the job leaves the queued/processing states.
func waitDone(t *testing.T, svc *Service, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Get(id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == StatusCompleted || job.Status == StatusError {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func TestSubmitValidatesInput(t *testing.T) {
	t.Parallel()
	svc := newService(newTestDB(t), &fakeCatalog{})

	cases := []SubmitRequest{
		{TrackRef: "", DailyTarget: 10, MonthlyGoal: 100},
		{TrackRef: "abc", DailyTarget: 0, MonthlyGoal: 100},
		{TrackRef: "abc", DailyTarget: 10, MonthlyGoal: -1},
	}
	for _, req := range cases {
		if _, err := svc.Submit(req); err == nil {
			t.Errorf("Submit(%+v) accepted invalid request", req)
		}
	}
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()
	svc := newService(newTestDB(t), &fakeCatalog{})

	if _, err := svc.Get(uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidationSplitsTargetAcrossMatches(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	track := &catalog.Track{ID: "trk1", Name: "Night Drive", DurationMs: 183000}
	cat := &fakeCatalog{
		track: track,
		memberships: map[string][]string{
			"pl1": {"x", "trk1"},
			"pl2": {"trk1"},
			"pl3": {"y", "z"},
			"pl4": {"trk1", "q"},
			"pl5": {"trk1"},
		},
	}
	for ref, name := range map[string]string{
		"pl1": "Focus", "pl2": "Drive", "pl3": "Sleep", "pl4": "Gym", "pl5": "Party",
	} {
		seedPlaylist(t, db, ref, name)
	}
	svc := newService(db, cat)

	id, err := svc.Submit(SubmitRequest{TrackRef: "trk1", DailyTarget: 100, MonthlyGoal: 3000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitDone(t, svc, id)

	if job.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", job.Status, job.Message)
	}
	if job.Result.PerPlaylistTarget != 25 {
		t.Errorf("per-playlist target = %d, want 25", job.Result.PerPlaylistTarget)
	}
	if len(job.Result.ItemIDs) != 4 {
		t.Fatalf("created %d items, want 4", len(job.Result.ItemIDs))
	}

	var items []models.QueueItem
	if err := db.Order("position").Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("queue holds %d items, want 4", len(items))
	}
	for i, item := range items {
		if item.DesiredPlays != 25 {
			t.Errorf("item %d desired plays = %d, want 25", i, item.DesiredPlays)
		}
		if item.TrackID != "trk1" {
			t.Errorf("item %d track id = %q", i, item.TrackID)
		}
		if item.Status != models.StatusPending {
			t.Errorf("item %d status = %s", i, item.Status)
		}
		if item.SourcePlaylistID == "" {
			t.Errorf("item %d has no source playlist", i)
		}
	}

	var quota models.TrackQuota
	if err := db.Where("track_id = ?", "trk1").First(&quota).Error; err != nil {
		t.Fatalf("load quota: %v", err)
	}
	if quota.MonthlyGoal != 3000 {
		t.Errorf("monthly goal = %d, want 3000", quota.MonthlyGoal)
	}
	if quota.DailyPlays != 100 {
		t.Errorf("daily plays = %d, want 100", quota.DailyPlays)
	}
	if quota.Month != time.Now().UTC().Format("2006-01") {
		t.Errorf("month label = %q", quota.Month)
	}
}

func TestValidationMinimumTargetPerPlaylist(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	track := &catalog.Track{ID: "trk2", Name: "Low Target", DurationMs: 120000}
	cat := &fakeCatalog{
		track: track,
		memberships: map[string][]string{
			"a": {"trk2"}, "b": {"trk2"}, "c": {"trk2"},
		},
	}
	seedPlaylist(t, db, "a", "A")
	seedPlaylist(t, db, "b", "B")
	seedPlaylist(t, db, "c", "C")
	svc := newService(db, cat)

	id, err := svc.Submit(SubmitRequest{TrackRef: "trk2", DailyTarget: 2, MonthlyGoal: 10})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitDone(t, svc, id)

	if job.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", job.Status, job.Message)
	}
	// 2/3 rounds down to zero; the floor is one play per playlist.
	if job.Result.PerPlaylistTarget != 1 {
		t.Errorf("per-playlist target = %d, want 1", job.Result.PerPlaylistTarget)
	}
}

func TestValidationNoMatchesLeavesQueueUntouched(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	track := &catalog.Track{ID: "trk3", Name: "Nowhere", DurationMs: 150000}
	cat := &fakeCatalog{
		track: track,
		memberships: map[string][]string{
			"p1": {"other"},
			"p2": {},
		},
	}
	seedPlaylist(t, db, "p1", "One")
	seedPlaylist(t, db, "p2", "Two")
	svc := newService(db, cat)

	id, err := svc.Submit(SubmitRequest{TrackRef: "trk3", DailyTarget: 50, MonthlyGoal: 500})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitDone(t, svc, id)

	if job.Status != StatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.Message == "" {
		t.Error("error job carries no message")
	}

	var count int64
	if err := db.Model(&models.QueueItem{}).Count(&count).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 0 {
		t.Errorf("queue holds %d items after failed validation, want 0", count)
	}
	if err := db.Model(&models.TrackQuota{}).Count(&count).Error; err != nil {
		t.Fatalf("count quotas: %v", err)
	}
	if count != 0 {
		t.Errorf("quota table holds %d rows after failed validation, want 0", count)
	}
}

func TestValidationUnresolvableTrack(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	seedPlaylist(t, db, "p1", "One")
	svc := newService(db, &fakeCatalog{})

	id, err := svc.Submit(SubmitRequest{TrackRef: "missing", DailyTarget: 10, MonthlyGoal: 100})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitDone(t, svc, id)

	if job.Status != StatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
}

func TestValidationManualDurationOverride(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	track := &catalog.Track{ID: "trk4", Name: "Override", DurationMs: 183000}
	cat := &fakeCatalog{
		track:       track,
		memberships: map[string][]string{"p": {"trk4"}},
	}
	seedPlaylist(t, db, "p", "P")
	svc := newService(db, cat)

	id, err := svc.Submit(SubmitRequest{TrackRef: "trk4", DailyTarget: 5, MonthlyGoal: 50, ManualDuration: 4.5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitDone(t, svc, id)
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", job.Status, job.Message)
	}

	var item models.QueueItem
	if err := db.First(&item).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.DurationMin != 4.5 {
		t.Errorf("duration = %v, want manual 4.5", item.DurationMin)
	}
}

func TestValidationPagesThroughLargePlaylist(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ids := make([]string, 0, 250)
	for i := 0; i < 249; i++ {
		ids = append(ids, uuid.New().String())
	}
	ids = append(ids, "trk5") // last entry, third page
	track := &catalog.Track{ID: "trk5", Name: "Deep Cut", DurationMs: 200000}
	cat := &fakeCatalog{
		track:       track,
		memberships: map[string][]string{"big": ids},
		pageSize:    100,
	}
	seedPlaylist(t, db, "big", "Big")
	svc := newService(db, cat)

	id, err := svc.Submit(SubmitRequest{TrackRef: "trk5", DailyTarget: 8, MonthlyGoal: 80})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	job := waitDone(t, svc, id)
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed via paging", job.Status, job.Message)
	}
}

func TestJobCompletionPublishesEvent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	track := &catalog.Track{ID: "trk6", Name: "Signal", DurationMs: 160000}
	cat := &fakeCatalog{
		track:       track,
		memberships: map[string][]string{"p": {"trk6"}},
	}
	seedPlaylist(t, db, "p", "P")

	bus := events.NewBus()
	sub := bus.Subscribe(events.EventJobCompleted)
	svc := New(db, cat, bus, time.UTC, 100, zerolog.Nop())

	id, err := svc.Submit(SubmitRequest{TrackRef: "trk6", DailyTarget: 3, MonthlyGoal: 30})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, svc, id)

	select {
	case payload := <-sub:
		if payload["job_id"] != id {
			t.Errorf("event job_id = %v, want %s", payload["job_id"], id)
		}
	case <-time.After(time.Second):
		t.Fatal("no job_completed event published")
	}
}
