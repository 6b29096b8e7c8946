package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(opts)
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(cfg.Database.URL(), cfg.Database.MigrationPath); err != nil {
				return err
			}
			logger.Info("migrations applied", logging.String("path", cfg.Database.MigrationPath))
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(opts)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigrations(cfg.Database.URL(), cfg.Database.MigrationPath, steps); err != nil {
				return err
			}
			logger.Info("migrations rolled back", logging.Int("steps", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap(opts)
			if err != nil {
				return err
			}
			version, dirty, err := postgres.MigrationStatus(cfg.Database.URL(), cfg.Database.MigrationPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty: %v\n", version, dirty)
			return nil
		},
	})

	return cmd
}
