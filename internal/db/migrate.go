/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/huginn_fleet/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.QueueItem{},
		&models.TrackQuota{},
		&models.DailyPlay{},
		&models.Device{},
		&models.Playlist{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return seedDefaults(database)
}

// seedDefaults inserts configuration rows the engine expects to exist.
func seedDefaults(database *gorm.DB) error {
	defaults := map[string]string{
		models.SettingAutoReset:     "true",
		models.SettingLastResetDate: "",
	}

	for key, value := range defaults {
		var existing models.Setting
		err := database.Where("key = ?", key).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("read setting %s: %w", key, err)
		}
		if err := database.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}
