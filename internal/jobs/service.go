/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package jobs runs asynchronous validation jobs: resolve a track, find it
// across the registered playlists, and materialize queue items for every
// match. Jobs live in process memory only; a restart forgets them, and a
// poll for a forgotten id reports not-found.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/catalog"
	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/models"
	"github.com/friendsincode/huginn_fleet/internal/quota"
	"github.com/friendsincode/huginn_fleet/internal/telemetry"
)

// ErrNotFound is returned when polling an unknown job id.
var ErrNotFound = errors.New("jobs: job not found")

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Result is the outcome of a completed job.
type Result struct {
	TrackID           string   `json:"track_id"`
	TrackName         string   `json:"track_name"`
	MatchedPlaylists  []string `json:"matched_playlists"`
	PerPlaylistTarget int      `json:"per_playlist_target"`
	ItemIDs           []uint   `json:"item_ids"`
}

// Job is one validation job record.
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitRequest carries the operator's validation parameters.
type SubmitRequest struct {
	TrackRef       string
	DailyTarget    int
	MonthlyGoal    int
	ManualDuration float64 // minutes; 0 means use the catalog's duration
}

type publisher interface {
	Publish(events.EventType, events.Payload)
}

// Service owns the in-memory job table and the per-job workers.
type Service struct {
	db        *gorm.DB
	catalog   catalog.Client
	bus       publisher
	loc       *time.Location
	pageLimit int
	logger    zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates the job service.
func New(db *gorm.DB, cat catalog.Client, bus publisher, loc *time.Location, pageLimit int, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &Service{
		db:        db,
		catalog:   cat,
		bus:       bus,
		loc:       loc,
		pageLimit: pageLimit,
		logger:    logger.With().Str("component", "jobs").Logger(),
		jobs:      make(map[string]*Job),
	}
}

// Submit validates the request, registers a queued job, and starts its
// worker. The returned id is immediately pollable.
func (s *Service) Submit(req SubmitRequest) (string, error) {
	if req.TrackRef == "" {
		return "", fmt.Errorf("track reference is required")
	}
	if req.DailyTarget <= 0 {
		return "", fmt.Errorf("daily target must be positive")
	}
	if req.MonthlyGoal <= 0 {
		return "", fmt.Errorf("monthly goal must be positive")
	}

	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.process(job.ID, req)

	return job.ID, nil
}

// Get returns a copy of the job record.
func (s *Service) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// process performs the lookup and materialization for one job. It owns the
// job record exclusively; nothing else mutates a job after submission.
func (s *Service) process(jobID string, req SubmitRequest) {
	// Workers outlive the submitting request.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s.setStatus(jobID, StatusProcessing, "", nil)

	result, err := s.validate(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("job", jobID).Str("track", req.TrackRef).Msg("validation job failed")
		telemetry.ValidationJobsTotal.WithLabelValues(string(StatusError)).Inc()
		s.setStatus(jobID, StatusError, err.Error(), nil)
		return
	}

	telemetry.ValidationJobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	s.setStatus(jobID, StatusCompleted, "", result)
	s.bus.Publish(events.EventJobCompleted, events.Payload{
		"job_id":   jobID,
		"track_id": result.TrackID,
		"items":    len(result.ItemIDs),
	})
}

func (s *Service) validate(ctx context.Context, req SubmitRequest) (*Result, error) {
	track, err := s.catalog.ResolveTrack(ctx, req.TrackRef)
	if err != nil {
		return nil, fmt.Errorf("resolve track %q: %w", req.TrackRef, err)
	}

	duration := track.DurationMin()
	if req.ManualDuration > 0 {
		duration = req.ManualDuration
	}

	var playlists []models.Playlist
	if err := s.db.WithContext(ctx).Order("name").Find(&playlists).Error; err != nil {
		return nil, fmt.Errorf("load registered playlists: %w", err)
	}
	if len(playlists) == 0 {
		return nil, fmt.Errorf("no playlists registered")
	}

	var matched []models.Playlist
	for _, playlist := range playlists {
		found, err := s.playlistContains(ctx, playlist.CatalogRef, track.ID)
		if err != nil {
			return nil, fmt.Errorf("scan playlist %q: %w", playlist.Name, err)
		}
		if found {
			matched = append(matched, playlist)
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("track %q not found in any of the %d registered playlists", track.Name, len(playlists))
	}

	perPlaylist := req.DailyTarget / len(matched)
	if perPlaylist < 1 {
		perPlaylist = 1
	}

	result := &Result{
		TrackID:           track.ID,
		TrackName:         track.Name,
		PerPlaylistTarget: perPlaylist,
	}

	// One transaction: all items plus the quota record, or nothing.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos struct{ Max int }
		if err := tx.Model(&models.QueueItem{}).
			Select("COALESCE(MAX(position), 0) AS max").
			Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("read max position: %w", err)
		}

		for i, playlist := range matched {
			item := models.QueueItem{
				Position:         maxPos.Max + 1 + i,
				Link:             "https://open.spotify.com/track/" + track.ID,
				Name:             fmt.Sprintf("%s (%s)", track.Name, playlist.Name),
				DesiredPlays:     perPlaylist,
				DurationMin:      duration,
				Status:           models.StatusPending,
				TrackID:          track.ID,
				SourcePlaylistID: playlist.ID,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("create queue item for playlist %q: %w", playlist.Name, err)
			}
			result.ItemIDs = append(result.ItemIDs, item.ID)
			result.MatchedPlaylists = append(result.MatchedPlaylists, playlist.Name)
		}

		return quota.Upsert(ctx, tx, &models.TrackQuota{
			TrackID:     track.ID,
			Name:        track.Name,
			MonthlyGoal: req.MonthlyGoal,
			Month:       time.Now().In(s.loc).Format("2006-01"),
			DailyPlays:  len(matched) * perPlaylist,
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// playlistContains pages through a playlist's membership until the track is
// seen or the listing is exhausted. The first hit suffices.
func (s *Service) playlistContains(ctx context.Context, playlistRef, trackID string) (bool, error) {
	offset := 0
	for {
		page, err := s.catalog.PlaylistTracks(ctx, playlistRef, offset, s.pageLimit)
		if err != nil {
			return false, err
		}
		for _, id := range page.TrackIDs {
			if id == trackID {
				return true, nil
			}
		}

		offset += s.pageLimit
		if len(page.TrackIDs) == 0 || offset >= page.Total {
			return false, nil
		}
	}
}

// setStatus mutates the job record under the lock.
func (s *Service) setStatus(jobID string, status Status, message string, result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.Message = message
	job.Result = result
	job.UpdatedAt = time.Now().UTC()
}
