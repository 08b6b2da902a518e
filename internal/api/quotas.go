/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/huginn_fleet/internal/quota"
)

func (a *API) handleQuotasList(w http.ResponseWriter, r *http.Request) {
	quotas, err := quota.List(r.Context(), a.db)
	if err != nil {
		a.logger.Error().Err(err).Msg("quota list failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, quotas)
}
