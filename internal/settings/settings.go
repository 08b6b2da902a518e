/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings wraps the key/value configuration table. The engine never
// holds settings in a shared mutable structure; it takes a fresh Snapshot at
// the top of each iteration.
package settings

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/huginn_fleet/internal/models"
)

// Snapshot is a point-in-time read of the engine-relevant settings.
type Snapshot struct {
	AutoResetEnabled bool
	LastResetDate    string
}

// Store reads and writes configuration rows.
type Store struct {
	db *gorm.DB
}

// New creates a settings store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Snapshot loads the current engine settings in one query.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return Snapshot{}, fmt.Errorf("load settings: %w", err)
	}

	snap := Snapshot{AutoResetEnabled: true}
	for _, row := range rows {
		switch row.Key {
		case models.SettingAutoReset:
			if parsed, err := strconv.ParseBool(row.Value); err == nil {
				snap.AutoResetEnabled = parsed
			}
		case models.SettingLastResetDate:
			snap.LastResetDate = row.Value
		}
	}
	return snap, nil
}

// Get returns one setting value, or "" when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var row models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return row.Value, nil
}

// Set upserts one setting value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{"value": value}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// All returns every configuration row as a map.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
