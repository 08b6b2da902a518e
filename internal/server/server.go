/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the automation engine, and
// the HTTP surface into one runnable unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/api"
	"github.com/friendsincode/huginn_fleet/internal/catalog"
	"github.com/friendsincode/huginn_fleet/internal/config"
	"github.com/friendsincode/huginn_fleet/internal/db"
	"github.com/friendsincode/huginn_fleet/internal/engine"
	"github.com/friendsincode/huginn_fleet/internal/eventbus"
	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/jobs"
	"github.com/friendsincode/huginn_fleet/internal/leadership"
	"github.com/friendsincode/huginn_fleet/internal/logbuffer"
	"github.com/friendsincode/huginn_fleet/internal/presence"
	"github.com/friendsincode/huginn_fleet/internal/queue"
	"github.com/friendsincode/huginn_fleet/internal/quota"
	"github.com/friendsincode/huginn_fleet/internal/settings"
	"github.com/friendsincode/huginn_fleet/internal/telemetry"
	"github.com/friendsincode/huginn_fleet/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db                *gorm.DB
	bus               *events.Bus
	natsBus           *eventbus.NATSBus
	logBuffer         *logbuffer.Buffer
	api               *api.API
	engine            *engine.Engine
	leaderAwareEngine *engine.LeaderAwareEngine
	updateChecker     *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("huginn-fleet-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Websocket upgrades hold their connection open past any sane request
	// deadline; everything else gets the standard timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Websocket handlers manage their own deadlines; the middleware
		// timeout covers plain requests.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 15 * time.Second,
		}
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// NATS fan-out mirrors events across instances; with no URL configured
	// the bus stays in-process only.
	natsBus, err := eventbus.New(s.cfg.NATSURL, s.bus, s.logger)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	s.natsBus = natsBus
	s.DeferClose(natsBus.Close)

	queueStore := queue.New(database, s.logger)
	tracker := presence.New(database, s.cfg.PresenceWindow, s.logger)
	settingsStore := settings.New(database)
	resetter := quota.NewResetter(database, s.cfg.Location(), s.cfg.ResetHour, s.logger)

	catalogClient, err := catalog.NewHTTPClient(s.cfg.CatalogBaseURL, s.cfg.CatalogToken)
	if err != nil {
		return fmt.Errorf("create catalog client: %w", err)
	}
	jobsSvc := jobs.New(database, catalogClient, natsBus, s.cfg.Location(), s.cfg.CatalogPageLimit, s.logger)

	s.engine = engine.New(database, queueStore, tracker, settingsStore, resetter, natsBus, engine.Options{
		EmptyBackoff:   s.cfg.EmptyBackoff,
		ErrorBackoff:   s.cfg.ErrorBackoff,
		DoneClearDelay: s.cfg.DoneClearDelay,
		Location:       s.cfg.Location(),
	}, s.logger)

	// With leader election enabled only one instance runs the engine; the
	// others keep serving reads and take over on lease expiry.
	if s.cfg.LeaderElectionEnabled {
		election, err := leadership.NewElection(leadership.ElectionConfig{
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			ElectionKey:   "huginn:leader:engine",
			InstanceID:    s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.leaderAwareEngine = engine.NewLeaderAware(s.engine, election, s.logger)
		s.DeferClose(func() error { return s.leaderAwareEngine.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Msg("leader election enabled for engine")
	}

	s.updateChecker = version.NewChecker(s.logger)

	s.api = api.New(database, queueStore, tracker, settingsStore, jobsSvc, catalogClient, natsBus, s.logBuffer, s.updateChecker, s.logger)

	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.leaderAwareEngine != nil {
			if s.leaderAwareEngine.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.leaderAwareEngine != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.leaderAwareEngine.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("leader-aware engine exited")
			}
		}()
	} else {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("engine loop exited")
			}
		}()
	}

	s.updateChecker.Start(ctx)
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

// HTTPServer exposes the configured server for the caller to run.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the optional metrics listener; nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close stops background workers and tears down dependencies in reverse
// registration order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers cleanup executed during Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
