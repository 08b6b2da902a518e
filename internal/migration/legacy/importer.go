/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package legacy imports the previous deployment's Postgres database:
// its playlist table becomes queue items, its devices table seeds the
// presence history, and its key/value config rows map onto settings.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/huginn_fleet/internal/models"
)

// Options controls import behavior.
type Options struct {
	// DryRun walks the source data and reports stats without writing.
	DryRun bool
}

// Stats summarizes one import run.
type Stats struct {
	ItemsImported    int `json:"items_imported"`
	DevicesImported  int `json:"devices_imported"`
	SettingsImported int `json:"settings_imported"`
	RowsSkipped      int `json:"rows_skipped"`
	Errors           int `json:"errors"`
}

// Importer reads a legacy database and materializes fleet records.
type Importer struct {
	db      *gorm.DB
	logger  zerolog.Logger
	options Options
	stats   Stats
}

// NewImporter creates a legacy importer.
func NewImporter(db *gorm.DB, logger zerolog.Logger, options Options) *Importer {
	return &Importer{
		db:      db,
		logger:  logger.With().Str("component", "legacy_importer").Logger(),
		options: options,
	}
}

// Import runs the full import against the legacy DSN.
func (i *Importer) Import(ctx context.Context, dsn string) (*Stats, error) {
	i.logger.Info().
		Str("dsn", maskDSN(dsn)).
		Bool("dry_run", i.options.DryRun).
		Msg("starting legacy import")

	legacyDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to legacy db: %w", err)
	}
	defer legacyDB.Close()

	if err := legacyDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping legacy db: %w", err)
	}

	if err := i.importQueue(ctx, legacyDB); err != nil {
		return nil, fmt.Errorf("import playlist table: %w", err)
	}
	if err := i.importDevices(ctx, legacyDB); err != nil {
		return nil, fmt.Errorf("import devices table: %w", err)
	}
	if err := i.importSettings(ctx, legacyDB); err != nil {
		return nil, fmt.Errorf("import config table: %w", err)
	}

	i.logger.Info().
		Interface("stats", i.stats).
		Msg("legacy import completed")

	return &i.stats, nil
}

// importQueue maps legacy playlist rows onto queue items. Legacy ordering
// was the primary key; that order becomes the explicit position sequence.
func (i *Importer) importQueue(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, link_musica, nome_musica, plays_desejados, plays_atuais,
		       plays_mensais, status, duracao_min
		FROM playlist
		ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("query playlist: %w", err)
	}
	defer rows.Close()

	position := 0
	for rows.Next() {
		var (
			legacyID                  int
			link, name, status        string
			desired, current, monthly int
			duration                  sql.NullFloat64
		)
		if err := rows.Scan(&legacyID, &link, &name, &desired, &current, &monthly, &status, &duration); err != nil {
			i.logger.Error().Err(err).Msg("scan playlist row")
			i.stats.Errors++
			continue
		}

		mapped, ok := mapLegacyStatus(status)
		if !ok {
			i.logger.Warn().Int("legacy_id", legacyID).Str("status", status).Msg("unknown status, skipping row")
			i.stats.RowsSkipped++
			continue
		}
		if link == "" || name == "" {
			i.logger.Warn().Int("legacy_id", legacyID).Msg("row missing link or name, skipping")
			i.stats.RowsSkipped++
			continue
		}

		position++
		item := models.QueueItem{
			Position:     position,
			Link:         link,
			Name:         name,
			DesiredPlays: desired,
			CurrentPlays: current,
			MonthlyPlays: monthly,
			DurationMin:  3.0,
			Status:       mapped,
		}
		if duration.Valid && duration.Float64 > 0 {
			item.DurationMin = duration.Float64
		}

		if !i.options.DryRun {
			if err := i.db.WithContext(ctx).Create(&item).Error; err != nil {
				i.logger.Error().Err(err).Int("legacy_id", legacyID).Msg("create queue item")
				i.stats.Errors++
				continue
			}
		}
		i.stats.ItemsImported++
	}
	return rows.Err()
}

func (i *Importer) importDevices(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT device_id, last_seen FROM devices ORDER BY device_id
	`)
	if err != nil {
		return fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			deviceID string
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&deviceID, &lastSeen); err != nil {
			i.logger.Error().Err(err).Msg("scan device row")
			i.stats.Errors++
			continue
		}
		if deviceID == "" {
			i.stats.RowsSkipped++
			continue
		}

		device := models.Device{DeviceID: deviceID, LastSeen: time.Now().UTC()}
		if lastSeen.Valid {
			device.LastSeen = lastSeen.Time
		}

		if !i.options.DryRun {
			err := i.db.WithContext(ctx).Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "device_id"}},
				DoUpdates: clause.Assignments(map[string]any{"last_seen": device.LastSeen}),
			}).Create(&device).Error
			if err != nil {
				i.logger.Error().Err(err).Str("device_id", deviceID).Msg("create device")
				i.stats.Errors++
				continue
			}
		}
		i.stats.DevicesImported++
	}
	return rows.Err()
}

// importSettings carries over the legacy key/value config rows that still
// have a meaning here. The legacy fleet-size knob is dropped: fleet size is
// now derived from heartbeat recency, not configured.
func (i *Importer) importSettings(ctx context.Context, legacyDB *sql.DB) error {
	rows, err := legacyDB.QueryContext(ctx, `SELECT chave, valor FROM config`)
	if err != nil {
		return fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			i.logger.Error().Err(err).Msg("scan config row")
			i.stats.Errors++
			continue
		}

		mappedKey, mappedValue, ok := mapLegacySetting(key, value)
		if !ok {
			i.logger.Debug().Str("key", key).Msg("legacy setting has no counterpart, skipping")
			i.stats.RowsSkipped++
			continue
		}

		if !i.options.DryRun {
			err := i.db.WithContext(ctx).Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.Assignments(map[string]any{"value": mappedValue}),
			}).Create(&models.Setting{Key: mappedKey, Value: mappedValue}).Error
			if err != nil {
				i.logger.Error().Err(err).Str("key", mappedKey).Msg("create setting")
				i.stats.Errors++
				continue
			}
		}
		i.stats.SettingsImported++
	}
	return rows.Err()
}

// mapLegacyStatus translates the legacy Portuguese status labels.
func mapLegacyStatus(status string) (models.QueueStatus, bool) {
	switch strings.TrimSpace(status) {
	case "Pendente":
		return models.StatusPending, true
	case "Em Execução":
		return models.StatusPlaying, true
	case "Concluído":
		return models.StatusDone, true
	default:
		return "", false
	}
}

// mapLegacySetting translates legacy config keys to their setting keys.
func mapLegacySetting(key, value string) (string, string, bool) {
	switch strings.TrimSpace(key) {
	case "auto_reset":
		if value == "1" || strings.EqualFold(value, "true") {
			return models.SettingAutoReset, "true", true
		}
		return models.SettingAutoReset, "false", true
	case "ultima_data_reset":
		return models.SettingLastResetDate, value, true
	default:
		return "", "", false
	}
}

func maskDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		parts := strings.SplitN(dsn, "@", 2)
		if len(parts) == 2 {
			userParts := strings.SplitN(parts[0], ":", 3)
			if len(userParts) >= 2 {
				return userParts[0] + ":***@" + parts[1]
			}
		}
	}
	return dsn
}
