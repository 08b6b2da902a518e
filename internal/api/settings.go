/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/huginn_fleet/internal/models"
)

// Only known keys are writable; everything else is rejected so typos never
// create dead settings rows.
var writableSettings = map[string]bool{
	models.SettingAutoReset:     true,
	models.SettingLastResetDate: true,
}

func (a *API) handleSettingsList(w http.ResponseWriter, r *http.Request) {
	all, err := a.settings.All(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("settings list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (a *API) handleSettingsSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !writableSettings[key] {
		writeError(w, http.StatusBadRequest, "unknown_setting")
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if key == models.SettingAutoReset && req.Value != "true" && req.Value != "false" {
		writeError(w, http.StatusBadRequest, "invalid_value")
		return
	}

	if err := a.settings.Set(r.Context(), key, req.Value); err != nil {
		a.logger.Error().Err(err).Str("key", key).Msg("setting write failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
