/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/huginn_fleet/internal/db"
	"github.com/friendsincode/huginn_fleet/internal/migration/legacy"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import data from a previous deployment",
	Long:  "Import queue items, devices, and settings from the legacy PostgreSQL database",
}

var importLegacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Import from the legacy PostgreSQL database",
	Long:  "Read the legacy playlist, devices, and config tables and materialize queue items, presence rows, and settings",
	RunE:  runImportLegacy,
}

var (
	legacyDSN    string
	legacyDryRun bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importLegacyCmd)

	importLegacyCmd.Flags().StringVar(&legacyDSN, "legacy-dsn", "", "PostgreSQL DSN of the legacy database (required)")
	importLegacyCmd.Flags().BoolVar(&legacyDryRun, "dry-run", false, "Walk the legacy data without writing")
	importLegacyCmd.MarkFlagRequired("legacy-dsn")
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	importer := legacy.NewImporter(database, logger, legacy.Options{DryRun: legacyDryRun})
	stats, err := importer.Import(context.Background(), legacyDSN)
	if err != nil {
		return fmt.Errorf("legacy import: %w", err)
	}

	fmt.Printf("Import completed: %d queue items, %d devices, %d settings (%d rows skipped, %d errors)\n",
		stats.ItemsImported, stats.DevicesImported, stats.SettingsImported, stats.RowsSkipped, stats.Errors)
	return nil
}
