/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"fmt"
	"testing"
	"time"
)

func TestRingOverwritesOldest(t *testing.T) {
	t.Parallel()

	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(LogEntry{Message: fmt.Sprintf("msg-%d", i), Level: "info"})
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("len = %d, want capacity 3", len(all))
	}
	if all[0].Message != "msg-2" || all[2].Message != "msg-4" {
		t.Errorf("unexpected order: %q .. %q", all[0].Message, all[2].Message)
	}
}

func TestQueryFilters(t *testing.T) {
	t.Parallel()

	b := New(10)
	b.Add(LogEntry{Level: "info", Component: "engine", Message: "cycle complete", Timestamp: time.Now()})
	b.Add(LogEntry{Level: "warn", Component: "api", Message: "slow request", Timestamp: time.Now()})
	b.Add(LogEntry{Level: "error", Component: "engine", Message: "credit failed", Timestamp: time.Now()})

	if got := b.Query(QueryParams{Level: "warn"}); len(got) != 1 || got[0].Component != "api" {
		t.Errorf("level filter returned %+v", got)
	}
	if got := b.Query(QueryParams{Component: "engine"}); len(got) != 2 {
		t.Errorf("component filter returned %d entries, want 2", len(got))
	}
	if got := b.Query(QueryParams{Search: "CREDIT"}); len(got) != 1 {
		t.Errorf("case-insensitive search returned %d entries, want 1", len(got))
	}
	if got := b.Query(QueryParams{Descending: true}); got[0].Message != "credit failed" {
		t.Errorf("descending order starts with %q", got[0].Message)
	}
	if got := b.Query(QueryParams{Limit: 2}); len(got) != 2 {
		t.Errorf("limit returned %d entries", len(got))
	}
}

func TestWriterParsesZerologLines(t *testing.T) {
	t.Parallel()

	b := New(10)
	w := NewWriter(b, nil)

	line := `{"level":"info","component":"engine","credit":4,"message":"plays credited"}`
	if _, err := w.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	all := b.GetAll()
	if len(all) != 1 {
		t.Fatalf("buffer holds %d entries, want 1", len(all))
	}
	entry := all[0]
	if entry.Level != "info" || entry.Component != "engine" || entry.Message != "plays credited" {
		t.Errorf("parsed entry = %+v", entry)
	}
	if entry.Fields["credit"].(float64) != 4 {
		t.Errorf("extra field not captured: %+v", entry.Fields)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	b := New(10)
	b.Add(LogEntry{Level: "info"})
	b.Add(LogEntry{Level: "info"})
	b.Add(LogEntry{Level: "error"})

	stats := b.Stats()
	if stats.Count != 3 || stats.LevelCount["info"] != 2 || stats.LevelCount["error"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
