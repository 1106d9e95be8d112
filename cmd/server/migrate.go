package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/phrazzld/clientflow/internal/platform/postgres"
	"github.com/phrazzld/clientflow/internal/platform/sqlite"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|reset|status|version]",
	Short: "Run database migrations",
	Long: `Run goose migrations against the configured postgres database.

For sqlite the schema is applied whenever the database is opened, so every
command simply opens the database.

Examples:
  # Apply all pending migrations
  clientflow migrate up

  # Show migration status
  clientflow migrate status`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down", "reset", "status", "version"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	command := "up"
	if len(args) == 1 {
		command = args[0]
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	return migrate(cmd.Context(), cfg.Database, command, log)
}

func migrate(ctx context.Context, cfg config.DatabaseConfig, command string, log *slog.Logger) error {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return postgres.Migrate(ctx, db, command, log)
	case "sqlite":
		db, err := sqlite.Open(cfg.URL)
		if err != nil {
			return err
		}
		log.Info("sqlite schema is up to date", slog.String("path", cfg.URL))
		return db.Close()
	}
	return fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
