package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn_fleet/internal/leadership"
)

// LeaderAwareEngine wraps the engine and only runs it while this instance
// holds the engine lease.
type LeaderAwareEngine struct {
	engine   *Engine
	election *leadership.Election
	logger   zerolog.Logger

	ctx           context.Context
	cancelFunc    context.CancelFunc
	engineRunning bool
}

// NewLeaderAware creates a leader-aware engine wrapper
func NewLeaderAware(engine *Engine, election *leadership.Election, logger zerolog.Logger) *LeaderAwareEngine {
	return &LeaderAwareEngine{
		engine:        engine,
		election:      election,
		logger:        logger.With().Str("component", "leader_aware_engine").Logger(),
		engineRunning: false,
	}
}

// Start begins monitoring leadership status and manages engine lifecycle
func (lae *LeaderAwareEngine) Start(ctx context.Context) error {
	lae.ctx = ctx

	lae.logger.Info().Msg("starting leader-aware engine")

	if err := lae.election.Start(ctx); err != nil {
		return err
	}

	go lae.monitorLeadership()

	return nil
}

// Stop stops the engine and releases leadership
func (lae *LeaderAwareEngine) Stop() error {
	lae.logger.Info().Msg("stopping leader-aware engine")

	if lae.engineRunning && lae.cancelFunc != nil {
		lae.cancelFunc()
		lae.engineRunning = false
	}

	return lae.election.Stop()
}

// monitorLeadership watches for leadership changes and starts/stops the engine accordingly
func (lae *LeaderAwareEngine) monitorLeadership() {
	leaderCh := lae.election.LeaderCh()

	if lae.election.IsLeader() {
		lae.startEngine()
	}

	for {
		select {
		case <-lae.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				lae.logger.Info().Msg("became leader, starting engine")
				lae.startEngine()
			} else {
				lae.logger.Warn().Msg("lost leadership, stopping engine")
				lae.stopEngine()
			}
		}
	}
}

// startEngine starts the engine loop in a goroutine
func (lae *LeaderAwareEngine) startEngine() {
	if lae.engineRunning {
		lae.logger.Warn().Msg("engine already running")
		return
	}

	ctx, cancel := context.WithCancel(lae.ctx)
	lae.cancelFunc = cancel
	lae.engineRunning = true

	go func() {
		if err := lae.engine.Run(ctx); err != nil && err != context.Canceled {
			lae.logger.Error().Err(err).Msg("engine error")
		}
		lae.engineRunning = false
	}()
}

// stopEngine stops the running engine loop
func (lae *LeaderAwareEngine) stopEngine() {
	if !lae.engineRunning {
		return
	}

	if lae.cancelFunc != nil {
		lae.cancelFunc()
		lae.cancelFunc = nil
	}

	// Wait briefly for the loop to let go of its iteration
	time.Sleep(100 * time.Millisecond)
	lae.engineRunning = false
}

// IsLeader returns whether this instance is the leader
func (lae *LeaderAwareEngine) IsLeader() bool {
	return lae.election.IsLeader()
}
