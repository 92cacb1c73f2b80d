package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/config"
	pgmigrations "quiz-progress-service/internal/infra/postgres/migrations"
)

// NewMigrateCmd prepares the configured store: SQL migrations for postgres,
// indexes for mongo.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return runMigrationsWithConfig(ctx, cfg)
	case config.DriverMongo:
		b := &backend{}
		defer b.Close()
		store, err := b.openMongo(ctx, cfg)
		if err != nil {
			return err
		}
		if err := store.EnsureIndexes(ctx, app.CollectionKinds()...); err != nil {
			return err
		}
		config.WithContext(ctx).Info("mongo indexes ensured")
		return nil
	default:
		config.WithContext(ctx).WithField("driver", cfg.Store.Driver).Info("nothing to migrate")
		return nil
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	config.WithContext(ctx).WithField("group", group.String()).Info("migrations applied")
	return nil
}
