// Package main provides the retention-sweep CLI: deletes uploads whose
// last_accessed_at has fallen outside the retention window, the way spec.md
// names as one of an upload's two destruction paths (explicit delete, or
// this sweep).
//
// Usage:
//
//	retention-sweep run
//	retention-sweep run --max-age 2160h --dry-run
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/redgrouse/backend/internal/config"
	"github.com/redgrouse/backend/internal/db"
)

var database *db.DB

func main() {
	var maxAge time.Duration
	var dryRun bool

	rootCmd := &cobra.Command{
		Use:   "retention-sweep",
		Short: "Delete uploads inactive past the retention window",
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

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one retention sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), maxAge, dryRun)
		},
	}
	runCmd.Flags().DurationVar(&maxAge, "max-age", 90*24*time.Hour, "delete uploads not accessed within this duration")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without deleting")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSweep(ctx context.Context, maxAge time.Duration, dryRun bool) error {
	cutoff := time.Now().Add(-maxAge).UTC().Format("2006-01-02T15:04:05.000Z")

	rows, err := database.Write.QueryContext(ctx,
		`SELECT id, display_name, last_accessed_at FROM uploads WHERE last_accessed_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("query stale uploads: %w", err)
	}

	type candidate struct {
		id   []byte
		name string
	}
	var stale []candidate
	for rows.Next() {
		var id []byte
		var name, lastAccessed string
		if err := rows.Scan(&id, &name, &lastAccessed); err != nil {
			rows.Close()
			return fmt.Errorf("scan stale upload: %w", err)
		}
		stale = append(stale, candidate{id: id, name: name})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	slog.Info("retention sweep", "cutoff", cutoff, "candidates", len(stale), "dry_run", dryRun)

	for _, c := range stale {
		idText := fmt.Sprintf("%x", c.id)
		if dryRun {
			fmt.Printf("would delete upload %s (%s)\n", idText, c.name)
			continue
		}
		if _, err := database.Write.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, c.id); err != nil {
			return fmt.Errorf("delete upload %s: %w", idText, err)
		}
		fmt.Printf("deleted upload %s (%s)\n", idText, c.name)
	}

	return nil
}
