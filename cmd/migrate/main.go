package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/sercop/facilitador-api/internal/config"
	"github.com/sercop/facilitador-api/internal/database"
	"github.com/sercop/facilitador-api/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the facilitador database schema",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Deadline for the whole migration run")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), timeout, "up", func(ctx context.Context, db *bun.DB) error {
				return database.Migrate(ctx, db.DB)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), timeout, "down", func(ctx context.Context, db *bun.DB) error {
				return database.Rollback(ctx, db.DB)
			})
		},
	}

	rootCmd.AddCommand(upCmd, downCmd)
	return rootCmd
}

func withDB(parent context.Context, timeout time.Duration, direction string, fn func(ctx context.Context, db *bun.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := fn(ctx, db); err != nil {
		logger.Error("migration failed", "direction", direction, "error", err.Error())
		return err
	}

	logger.Info("migrations finished", "direction", direction, "database", cfg.Database.DBName)
	return nil
}
