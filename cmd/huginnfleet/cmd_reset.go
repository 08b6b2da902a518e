/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/huginn_fleet/internal/db"
	"github.com/friendsincode/huginn_fleet/internal/queue"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reopen every queue item and zero its play progress",
	Long: `Reset the playback queue to a fresh cycle.

Every queue item goes back to pending with zero current plays. Monthly
counters and daily history are left untouched; only the cycle progress
is cleared.

Examples:
  # Interactive reset (will prompt for confirmation)
  huginnfleet reset

  # Force reset without confirmation
  huginnfleet reset --force
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetForce {
		fmt.Println("This will reopen EVERY queue item and zero its current plays.")
		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	store := queue.New(database, logger)
	if err := store.ResetAll(context.Background()); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}

	logger.Info().Msg("queue reset completed")
	fmt.Println("Queue reset completed.")
	return nil
}
