/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus onto NATS so every
// server instance sees engine events regardless of which instance holds the
// engine lease.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn_fleet/internal/events"
)

const subjectPrefix = "huginn.events."

// NATSBus fans event payloads out over NATS while keeping local delivery on
// the in-process bus. When no NATS URL is configured the bus degrades to
// in-process delivery only.
type NATSBus struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	local  *events.Bus
	logger zerolog.Logger
	nodeID string
}

// New connects to NATS and mirrors remote events onto the local bus. An
// empty URL yields a local-only bus.
func New(natsURL string, local *events.Bus, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		local:  local,
		logger: logger.With().Str("component", "eventbus").Logger(),
		nodeID: uuid.New().String(),
	}

	if natsURL == "" {
		nb.logger.Info().Msg("no NATS URL configured, events stay in-process")
		return nb, nil
	}

	conn, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	nb.conn = conn

	sub, err := conn.Subscribe(subjectPrefix+">", nb.handleRemote)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to events: %w", err)
	}
	nb.sub = sub

	nb.logger.Info().Str("url", natsURL).Msg("connected to NATS for event fan-out")
	return nb, nil
}

// Publish delivers locally and, when connected, to every other instance.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}

	data, err := json.Marshal(natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nb.nodeID,
	})
	if err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("marshal event failed")
		return
	}
	if err := nb.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("publish event failed")
	}
}

// Subscribe registers a local subscriber; remote events arrive through the
// NATS mirror.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.sub != nil {
		if err := nb.sub.Unsubscribe(); err != nil {
			nb.logger.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
	if nb.conn != nil {
		nb.conn.Close()
	}
	return nil
}

func (nb *NATSBus) handleRemote(msg *nats.Msg) {
	parsed, err := unmarshalNATSMessage(msg.Data)
	if err != nil {
		nb.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("drop malformed event")
		return
	}
	// Locally published events were already delivered.
	if parsed.NodeID == nb.nodeID {
		return
	}
	nb.local.Publish(parsed.EventType, parsed.Payload)
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}
