/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: the device-facing playback
// endpoints, the operator queue/settings/playlist management, validation
// jobs, and the now-playing websocket feed.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/catalog"
	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/jobs"
	"github.com/friendsincode/huginn_fleet/internal/logbuffer"
	"github.com/friendsincode/huginn_fleet/internal/presence"
	"github.com/friendsincode/huginn_fleet/internal/queue"
	"github.com/friendsincode/huginn_fleet/internal/settings"
	"github.com/friendsincode/huginn_fleet/internal/version"
)

// EventBus is the pubsub slice the API needs. Both the in-process bus and
// the NATS-backed fan-out satisfy it.
type EventBus interface {
	Publish(events.EventType, events.Payload)
	Subscribe(events.EventType) events.Subscriber
	Unsubscribe(events.EventType, events.Subscriber)
}

// API exposes HTTP handlers.
type API struct {
	db            *gorm.DB
	queue         *queue.Store
	tracker       *presence.Tracker
	settings      *settings.Store
	jobs          *jobs.Service
	catalog       catalog.Client
	bus           EventBus
	logBuffer     *logbuffer.Buffer
	updateChecker *version.Checker
	logger        zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, queueStore *queue.Store, tracker *presence.Tracker, settingsStore *settings.Store, jobsSvc *jobs.Service, cat catalog.Client, bus EventBus, logBuf *logbuffer.Buffer, updateChecker *version.Checker, logger zerolog.Logger) *API {
	return &API{
		db:            db,
		queue:         queueStore,
		tracker:       tracker,
		settings:      settingsStore,
		jobs:          jobsSvc,
		catalog:       cat,
		bus:           bus,
		logBuffer:     logBuf,
		updateChecker: updateChecker,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all handlers on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Device-facing: polled every cycle by the fleet.
		r.Get("/current-link", a.handleCurrentLink)
		r.Post("/heartbeat", a.handleHeartbeat)
		r.Get("/devices/count", a.handleDeviceCount)

		r.Get("/status", a.handleStatus)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", a.handleQueueList)
			r.Post("/", a.handleQueueAdd)
			r.Delete("/{id}", a.handleQueueDelete)
			r.Post("/{id}/promote", a.handleQueuePromote)
			r.Post("/reset", a.handleQueueReset)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", a.handleSettingsList)
			r.Put("/{key}", a.handleSettingsSet)
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Get("/", a.handlePlaylistsList)
			r.Post("/", a.handlePlaylistsAdd)
			r.Delete("/{id}", a.handlePlaylistsDelete)
		})

		r.Get("/quotas", a.handleQuotasList)

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", a.handleLogs)
			r.Get("/components", a.handleLogComponents)
			r.Get("/stats", a.handleLogStats)
		})

		r.Get("/version", a.handleVersion)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/validate", a.handleJobSubmit)
			r.Get("/{id}", a.handleJobGet)
		})

		r.Get("/ws/now-playing", a.handleNowPlayingWS)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
