/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/friendsincode/huginn_fleet/internal/engine"
	"github.com/friendsincode/huginn_fleet/internal/queue"
)

// handleCurrentLink serves the device poll. A device identifies itself via
// the device_id query parameter; the poll doubles as its heartbeat, so a
// dedicated heartbeat call between polls is optional.
func (a *API) handleCurrentLink(w http.ResponseWriter, r *http.Request) {
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		a.tracker.RecordHeartbeat(r.Context(), deviceID)
	}

	online, err := a.tracker.OnlineCount(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("device count failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	current, err := engine.Project(r.Context(), a.queue, online)
	if err != nil {
		a.logger.Error().Err(err).Msg("now-playing projection failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, current)
}

func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	a.tracker.RecordHeartbeat(r.Context(), req.DeviceID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleDeviceCount(w http.ResponseWriter, r *http.Request) {
	online, err := a.tracker.OnlineCount(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("device count failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"online":         online,
		"window_seconds": int(a.tracker.Window().Seconds()),
	})
}

// handleStatus reports the operator dashboard view: the full queue, fleet
// size, and the completion estimates at the current parallelism.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	items, err := a.queue.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("queue list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	online, err := a.tracker.OnlineCount(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("device count failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue":             items,
		"devices_online":    online,
		"remaining_seconds": queue.RemainingSeconds(items, online),
		"planned_seconds":   queue.PlannedSeconds(items, online),
	})
}
