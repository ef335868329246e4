package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the postgres registry schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := database.RunMigrations(cfg.Database); err != nil {
			return err
		}
		logger.Info("Database migrations completed")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps <= 0 {
			return fmt.Errorf("--steps must be positive, got %d", steps)
		}
		if err := database.MigrateDown(cfg.Database, steps); err != nil {
			return err
		}
		logger.Info("Database migrations rolled back", slog.Int("steps", steps))
		return nil
	},
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List embedded migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, err := database.Migrations()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(names)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateListCmd)
	rootCmd.AddCommand(migrateCmd)
}
