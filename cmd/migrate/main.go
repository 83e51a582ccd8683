// Package main provides the migrate CLI for applying and inspecting schema
// migrations against the SQLite database.
//
// Usage:
//
//	migrate up
//	migrate down
//	migrate version
//	migrate force <version>
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/redgrouse/backend/internal/config"
	"github.com/redgrouse/backend/internal/db"
)

var database *db.DB

func main() {
	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply and inspect schema migrations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			database, err = db.Open(cfg.SQLitePath())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if database != nil {
				return database.Close()
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := database.MigrateUp(db.Migrations()); err != nil {
					return err
				}
				slog.Info("migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recently applied migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := database.MigrateDown(db.Migrations()); err != nil {
					return err
				}
				slog.Info("migration rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				version, dirty, err := database.MigrateVersion(db.Migrations())
				if err != nil {
					return err
				}
				fmt.Printf("version: %d, dirty: %v\n", version, dirty)
				return nil
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var version int
				if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return database.MigrateForce(db.Migrations(), version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
