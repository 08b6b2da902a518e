/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog resolves track and playlist references against the
// external music catalog. The engine itself never talks to the catalog;
// only validation jobs do.
package catalog

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when the catalog does not know the reference.
var ErrNotFound = errors.New("catalog: reference not found")

// Track is resolved track metadata.
type Track struct {
	ID         string
	Name       string
	Artists    []string
	DurationMs int
}

// DurationMin converts the catalog's milliseconds to the queue's minutes.
func (t *Track) DurationMin() float64 {
	return float64(t.DurationMs) / 60000.0
}

// Page is one slice of a playlist's membership.
type Page struct {
	TrackIDs []string
	Total    int
}

// Client is the catalog query contract the core needs.
type Client interface {
	// ResolveTrack fetches metadata for a track reference.
	ResolveTrack(ctx context.Context, ref string) (*Track, error)

	// PlaylistName resolves a playlist reference to its display name.
	PlaylistName(ctx context.Context, ref string) (string, error)

	// PlaylistTracks returns one membership page starting at offset.
	PlaylistTracks(ctx context.Context, ref string, offset, limit int) (*Page, error)
}

// ParseRef extracts the bare catalog id from a reference in any of the
// accepted shapes: a bare id, a URI (catalog:track:ID), or a share URL
// (https://.../track/ID?si=...).
func ParseRef(ref string) string {
	ref = strings.TrimSpace(ref)

	if idx := strings.LastIndex(ref, ":"); idx >= 0 && !strings.Contains(ref, "/") {
		return ref[idx+1:]
	}

	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		ref = ref[idx+1:]
	}
	if idx := strings.IndexByte(ref, '?'); idx >= 0 {
		ref = ref[:idx]
	}
	return ref
}
