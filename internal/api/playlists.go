/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/catalog"
	"github.com/friendsincode/huginn_fleet/internal/models"
)

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	var playlists []models.Playlist
	if err := a.db.WithContext(r.Context()).Order("name").Find(&playlists).Error; err != nil {
		a.logger.Error().Err(err).Msg("playlist list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// handlePlaylistsAdd registers a playlist for validation scans. The display
// name is resolved from the catalog; a reference the catalog does not know
// is rejected up front rather than failing every later job.
func (a *API) handlePlaylistsAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Ref == "" {
		writeError(w, http.StatusBadRequest, "ref_required")
		return
	}

	ref := catalog.ParseRef(req.Ref)
	name, err := a.catalog.PlaylistName(r.Context(), ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "playlist_not_found")
			return
		}
		a.logger.Error().Err(err).Str("ref", ref).Msg("playlist lookup failed")
		writeError(w, http.StatusBadGateway, "catalog_unavailable")
		return
	}

	playlist := models.Playlist{
		ID:         uuid.New().String(),
		CatalogRef: ref,
		Name:       name,
	}
	if err := a.db.WithContext(r.Context()).Create(&playlist).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeError(w, http.StatusConflict, "already_registered")
			return
		}
		a.logger.Error().Err(err).Str("ref", ref).Msg("playlist create failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusCreated, playlist)
}

func (a *API) handlePlaylistsDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result := a.db.WithContext(r.Context()).Delete(&models.Playlist{}, "id = ?", id)
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Str("id", id).Msg("playlist delete failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
