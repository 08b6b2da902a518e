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

	"github.com/friendsincode/huginn_fleet/internal/jobs"
)

func (a *API) handleJobSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackRef       string  `json:"track_ref"`
		DailyTarget    int     `json:"daily_target"`
		MonthlyGoal    int     `json:"monthly_goal"`
		ManualDuration float64 `json:"manual_duration,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	id, err := a.jobs.Submit(jobs.SubmitRequest{
		TrackRef:       req.TrackRef,
		DailyTarget:    req.DailyTarget,
		MonthlyGoal:    req.MonthlyGoal,
		ManualDuration: req.ManualDuration,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": string(jobs.StatusQueued),
	})
}

func (a *API) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, job)
}
