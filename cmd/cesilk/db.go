package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/db"
	"github.com/cesilk/comfy-nodes/internal/db/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Utility for database management",
}

func init() {
	dbCmd.AddCommand(
		migratorCmd("migrate", "Apply pending migrations", func(cmd *cobra.Command, m *migrate.Migrator) error {
			if err := m.Init(cmd.Context()); err != nil {
				return err
			}
			if err := m.Lock(cmd.Context()); err != nil {
				return err
			}
			defer m.Unlock(cmd.Context()) //nolint:errcheck

			group, err := m.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "there are no new migrations to run (database is up to date)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated to %s\n", group)
			return nil
		}),
		migratorCmd("rollback", "Rollback the last migration group", func(cmd *cobra.Command, m *migrate.Migrator) error {
			if err := m.Lock(cmd.Context()); err != nil {
				return err
			}
			defer m.Unlock(cmd.Context()) //nolint:errcheck

			group, err := m.Rollback(cmd.Context())
			if err != nil {
				return err
			}
			if group.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "there are no groups to roll back")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", group)
			return nil
		}),
		migratorCmd("status", "Print the status of the migrations", func(cmd *cobra.Command, m *migrate.Migrator) error {
			status, err := m.MigrationsWithStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations: %s\n", status)
			return nil
		}),
	)
}

func migratorCmd(use, short string, run func(*cobra.Command, *migrate.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := db.NewConnection(cmd.Context(), config.MustGetConfig())
			if err != nil {
				return err
			}
			defer driver.Close()

			return run(cmd, migrations.NewMigrator(driver.GetDB()))
		},
	}
}
