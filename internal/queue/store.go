/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue owns queue item persistence and status transitions. The
// database row, never engine memory, is the source of truth for what is
// currently playing.
package queue

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/models"
)

// Store provides CRUD and lifecycle transitions over queue items.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a queue store.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// List returns every queue item in priority order.
func (s *Store) List(ctx context.Context) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := s.db.WithContext(ctx).
		Order("position asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return items, nil
}

// Add appends a new pending item at the back of the queue.
func (s *Store) Add(ctx context.Context, item *models.QueueItem) error {
	if item.Link == "" {
		return fmt.Errorf("queue item link is required")
	}
	if item.Name == "" {
		return fmt.Errorf("queue item name is required")
	}
	if item.DesiredPlays <= 0 {
		return fmt.Errorf("queue item desired plays must be positive")
	}
	if item.DurationMin <= 0 {
		item.DurationMin = 3.0
	}
	item.Status = models.StatusPending

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos struct{ Max int }
		if err := tx.Model(&models.QueueItem{}).
			Select("COALESCE(MAX(position), 0) AS max").
			Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("read max position: %w", err)
		}
		item.Position = maxPos.Max + 1
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("create queue item: %w", err)
		}
		return nil
	})
}

// Get fetches one item by id.
func (s *Store) Get(ctx context.Context, id uint) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.QueueItem{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete queue item %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PromoteToFront moves an item ahead of everything else by assigning it a
// position one below the current minimum. Identity is never touched.
func (s *Store) PromoteToFront(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.QueueItem
		if err := tx.First(&item, id).Error; err != nil {
			return err
		}

		var minPos struct{ Min int }
		if err := tx.Model(&models.QueueItem{}).
			Select("COALESCE(MIN(position), 0) AS min").
			Scan(&minPos).Error; err != nil {
			return fmt.Errorf("read min position: %w", err)
		}

		return tx.Model(&item).Update("position", minPos.Min-1).Error
	})
}

// NextActive returns the first item in priority order whose status is playing
// or pending, or nil when the queue holds no runnable work.
func (s *Store) NextActive(ctx context.Context) (*models.QueueItem, error) {
	var item models.QueueItem
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.QueueStatus{models.StatusPlaying, models.StatusPending}).
		Order("position asc, id asc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next active item: %w", err)
	}
	return &item, nil
}

// MarkPlaying transitions a pending item to playing without touching progress.
func (s *Store) MarkPlaying(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Update("status", models.StatusPlaying)
	if result.Error != nil {
		return fmt.Errorf("mark playing %d: %w", id, result.Error)
	}
	return nil
}

// MarkDone transitions an item to done once its target is reached.
func (s *Store) MarkDone(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Update("status", models.StatusDone)
	if result.Error != nil {
		return fmt.Errorf("mark done %d: %w", id, result.Error)
	}
	return nil
}

// ResetAll reopens every item: progress zeroed, status back to pending.
func (s *Store) ResetAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("1 = 1").
		Updates(map[string]any{
			"current_plays": 0,
			"status":        models.StatusPending,
		}).Error
	if err != nil {
		return fmt.Errorf("reset all plays: %w", err)
	}
	return nil
}

// RemainingSeconds estimates how long finishing the queue's outstanding plays
// will take with the given online device count (minimum one, matching the
// credit formula's floor when estimating).
func RemainingSeconds(items []models.QueueItem, online int) float64 {
	if online < 1 {
		online = 1
	}

	var total float64
	for _, item := range items {
		if item.Status == models.StatusDone {
			continue
		}
		remaining := item.Remaining()
		if remaining == 0 {
			continue
		}
		cycles := math.Ceil(float64(remaining) / float64(online))
		total += cycles * item.CycleSeconds()
	}
	return total
}

// PlannedSeconds estimates the full runtime of all unfinished items from
// scratch, ignoring progress already made.
func PlannedSeconds(items []models.QueueItem, online int) float64 {
	if online < 1 {
		online = 1
	}

	var total float64
	for _, item := range items {
		if item.Status == models.StatusDone || item.DesiredPlays == 0 {
			continue
		}
		cycles := math.Ceil(float64(item.DesiredPlays) / float64(online))
		total += cycles * item.CycleSeconds()
	}
	return total
}
