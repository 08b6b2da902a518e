/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/huginn_fleet/internal/events"
	"github.com/friendsincode/huginn_fleet/internal/telemetry"
)

type wsMessage struct {
	Type      string         `json:"type"`
	Payload   events.Payload `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// handleNowPlayingWS streams now-playing and queue changes to dashboards.
// The socket is one-way; client frames are read only to detect disconnect.
func (a *API) handleNowPlayingWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	nowPlaying := a.bus.Subscribe(events.EventNowPlaying)
	defer a.bus.Unsubscribe(events.EventNowPlaying, nowPlaying)
	queueUpdated := a.bus.Subscribe(events.EventQueueUpdated)
	defer a.bus.Unsubscribe(events.EventQueueUpdated, queueUpdated)
	paused := a.bus.Subscribe(events.EventEnginePaused)
	defer a.bus.Unsubscribe(events.EventEnginePaused, paused)

	ctx := r.Context()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-pingTicker.C:
			if err := conn.Ping(ctx); err != nil {
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}

		case payload := <-nowPlaying:
			if err := a.sendWS(ctx, conn, "now_playing", payload); err != nil {
				return
			}

		case payload := <-queueUpdated:
			if err := a.sendWS(ctx, conn, "queue_updated", payload); err != nil {
				return
			}

		case payload := <-paused:
			if err := a.sendWS(ctx, conn, "engine_paused", payload); err != nil {
				return
			}
		}
	}
}

func (a *API) sendWS(ctx context.Context, conn *ws.Conn, msgType string, payload events.Payload) error {
	data, err := json.Marshal(wsMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, ws.MessageText, data); err != nil {
		a.logger.Debug().Err(err).Msg("websocket write failed")
		return err
	}
	return nil
}
