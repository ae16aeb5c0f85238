package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matiasleandrokruk/moviegpt/internal/infra/config"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/moviedb"
	"github.com/matiasleandrokruk/moviegpt/internal/infra/sqlite"
)

func newMigrateCmd() *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply app database migrations",
		Long: "Apply app database migrations (conversation history, query audit).\n" +
			"With --demo, also create and seed a sample SQLite movie database at DB_DSN.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if err := ensureParentDir(cfg.AppDBPath); err != nil {
				return err
			}
			db, err := sqlite.NewDB(cfg.AppDBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := sqlite.MigrateUp(ctx, db); err != nil {
				return err
			}
			v, err := sqlite.MigrationVersion(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "app database %s at version %d\n", cfg.AppDBPath, v) //nolint:errcheck

			if !demo {
				return nil
			}
			if cfg.DBDriver != moviedb.DriverSQLite {
				return fmt.Errorf("--demo needs DB_DRIVER=sqlite, got %q", cfg.DBDriver)
			}
			if err := ensureParentDir(cfg.DBDSN); err != nil {
				return err
			}
			movies, err := sqlite.NewDB(cfg.DBDSN)
			if err != nil {
				return err
			}
			defer movies.Close()
			if err := sqlite.SeedMovies(ctx, movies); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "demo movie database seeded at %s\n", cfg.DBDSN) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "seed a sample movie database")
	return cmd
}
