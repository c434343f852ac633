package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"

	"github.com/subjectboard/server/internal/config"
	"github.com/subjectboard/server/internal/storage/postgres"
	"github.com/subjectboard/server/internal/storage/sqlite"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or roll back schema migrations.

For postgres the embedded migrations are applied with golang-migrate and,
with --river, River's job tables are migrated too. The sqlite schema is
created in place and has no down migrations.`,
	}

	var withRiver bool
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			out := cmd.OutOrStdout()

			if cfg.Database.Driver == config.DriverSQLite {
				db, err := sqlite.OpenDB(cfg.Database.Path)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				fmt.Fprintf(out, "sqlite schema ready at %s\n", cfg.Database.Path)
				return nil
			}

			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}
			fmt.Fprintln(out, "migrations applied")

			if withRiver || cfg.Audit.Delivery == config.AuditDeliveryRiver {
				pool, err := postgres.Connect(cmd.Context(), cfg.Database.URL, 2)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := migrateRiver(cmd.Context(), pool); err != nil {
					return err
				}
				fmt.Fprintln(out, "river migrations applied")
			}
			return nil
		},
	}
	up.Flags().BoolVar(&withRiver, "river", false, "also migrate River job tables")

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate down is only supported for the postgres driver")
			}
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			if err := postgres.MigrateDown(cfg.Database.URL, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version (postgres only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate version is only supported for the postgres driver")
			}
			v, dirty, ok, err := postgres.MigrationVersion(cfg.Database.URL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case !ok:
				fmt.Fprintln(out, "no migrations applied")
			case dirty:
				fmt.Fprintf(out, "version %d (dirty)\n", v)
			default:
				fmt.Fprintf(out, "version %d\n", v)
			}
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func migrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New[pgx.Tx](riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	return nil
}
