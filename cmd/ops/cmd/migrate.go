package cmd

import (
	"database/sql"

	"github.com/promptlab/promptlab/internal/db"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	cmd.AddCommand(migrateStep("up", "Apply all pending migrations", db.RunMigrations))
	cmd.AddCommand(migrateStep("down", "Roll back the last migration", db.MigrateDown))
	cmd.AddCommand(migrateStep("status", "Show migration status", db.MigrationStatus))
	return cmd
}

func migrateStep(use, short string, fn func(*sql.DB, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			return fn(e.db.DB, e.cfg.DBDriver)
		},
	}
}
