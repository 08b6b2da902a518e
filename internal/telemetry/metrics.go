/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	EngineCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_engine_cycles_total",
		Help: "Total engine cycles that advanced an item's progress.",
	})
	EngineErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_engine_errors_total",
		Help: "Total engine iterations that ended in an error.",
	})
	EngineCreditTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_engine_credit_total",
		Help: "Total play credit distributed across all items.",
	})
	EnginePausedCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_engine_paused_cycles_total",
		Help: "Iterations skipped because no devices were online.",
	})
	DevicesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huginn_devices_online",
		Help: "Devices seen within the presence window at the last engine iteration.",
	})
	DailyResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_daily_resets_total",
		Help: "Daily reset sweeps executed.",
	})

	// Validation job metrics
	ValidationJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_validation_jobs_total",
		Help: "Validation jobs by terminal status.",
	}, []string{"status"})

	// Leader election metrics
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "huginn_leader_election_status",
		Help: "1 when this instance holds the engine lease.",
	}, []string{"instance"})
	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_leader_election_changes_total",
		Help: "Leadership transitions observed by this instance.",
	}, []string{"instance", "transition"})

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_api_requests_total",
		Help: "HTTP requests by method, endpoint, and status.",
	}, []string{"method", "endpoint", "status"})
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "huginn_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huginn_api_active_connections",
		Help: "In-flight HTTP requests.",
	})
	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huginn_api_websocket_connections",
		Help: "Open now-playing WebSocket connections.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
