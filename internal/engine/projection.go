/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/friendsincode/huginn_fleet/internal/queue"
)

// CurrentLink is the device-facing view of the active queue item. The change
// token derives from persisted progress, so repeated polls inside one cycle
// return the same token and a new cycle is detectable without trusting
// wall-clock time.
type CurrentLink struct {
	Link        string  `json:"link"`
	DurationMin float64 `json:"duration_min"`
	Name        string  `json:"name"`
	ChangeToken uint64  `json:"change_token"`
}

// Project recomputes the now-playing view from the store. It is a pure query:
// every server process derives the same answer from the same committed state.
// An empty fleet reads as "system paused" and projects an empty link.
func Project(ctx context.Context, store *queue.Store, online int) (CurrentLink, error) {
	if online == 0 {
		return CurrentLink{}, nil
	}

	item, err := store.NextActive(ctx)
	if err != nil {
		return CurrentLink{}, err
	}
	if item == nil || item.CurrentPlays >= item.DesiredPlays {
		return CurrentLink{}, nil
	}

	return CurrentLink{
		Link:        item.Link,
		DurationMin: item.DurationMin,
		Name:        item.Name,
		ChangeToken: changeToken(item.ID, item.CurrentPlays),
	}, nil
}

// changeToken hashes item identity and progress into an opaque token.
func changeToken(itemID uint, currentPlays int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%d", itemID, currentPlays)
	return h.Sum64()
}
