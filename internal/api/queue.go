/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/models"
)

func (a *API) handleQueueList(w http.ResponseWriter, r *http.Request) {
	items, err := a.queue.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("queue list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Link         string  `json:"link"`
		Name         string  `json:"name"`
		DesiredPlays int     `json:"desired_plays"`
		DurationMin  float64 `json:"duration_min"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	item := models.QueueItem{
		Link:         req.Link,
		Name:         req.Name,
		DesiredPlays: req.DesiredPlays,
		DurationMin:  req.DurationMin,
	}
	if item.DurationMin <= 0 {
		item.DurationMin = 3.0
	}

	if err := a.queue.Add(r.Context(), &item); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.bus.Publish(events.EventQueueUpdated, events.Payload{"action": "add", "id": item.ID})
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := a.queue.Delete(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Uint("id", id).Msg("queue delete failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.bus.Publish(events.EventQueueUpdated, events.Payload{"action": "delete", "id": id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleQueuePromote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := a.queue.PromoteToFront(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Uint("id", id).Msg("queue promote failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.bus.Publish(events.EventQueueUpdated, events.Payload{"action": "promote", "id": id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "promoted"})
}

func (a *API) handleQueueReset(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.ResetAll(r.Context()); err != nil {
		a.logger.Error().Err(err).Msg("queue reset failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.bus.Publish(events.EventQueueUpdated, events.Payload{"action": "reset"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return uint(id), true
}
