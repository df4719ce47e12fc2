package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/config"
	"github.com/famgate/famgate/pkg/metadata/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the metadata store.

This command applies pending schema migrations to the configured PostgreSQL
database. It is required after upgrading famgate when schema changes have
been made, unless auto_migrate is enabled.

Examples:
  # Run migrations with default config
  famgate migrate

  # Run migrations with custom config
  famgate migrate --config /etc/famgate/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database)

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, cfg.Database.ConnectionString(), logger.With("component", "migrate")); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database: %s)\n", cfg.Database.Database)
	return nil
}
