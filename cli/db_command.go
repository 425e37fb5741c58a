package cli

import (
	"fmt"
	"strings"

	"github.com/rangesecurity/chainsync/config"
	"github.com/rangesecurity/chainsync/db"
	"github.com/rangesecurity/chainsync/migrations"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

func DBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "manage database migrations",
	}
	cmd.AddCommand(
		migratorCommand("init", "create migration tables", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			return migrator.Init(cmd.Context())
		}),
		migratorCommand("reset", "resets migration table and recreates schema", func(cmd *cobra.Command, args []string, bunDb *bun.DB, migrator *migrate.Migrator) error {
			if err := db.DropSchema(cmd.Context(), bunDb); err != nil {
				return err
			}
			if err := migrator.Reset(cmd.Context()); err != nil {
				return err
			}
			_, err := migrator.Migrate(cmd.Context())
			return err
		}),
		migratorCommand("migrate", "migrate database", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			group, err := migrator.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if group.ID == 0 {
				fmt.Printf("there are no new migrations to run\n")
				return nil
			}
			fmt.Printf("migrated to %s\n", group)
			return nil
		}),
		migratorCommand("rollback", "rollback the last migration group", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			group, err := migrator.Rollback(cmd.Context())
			if err != nil {
				return err
			}
			if group.ID == 0 {
				fmt.Printf("there are no groups to roll back\n")
				return nil
			}
			fmt.Printf("rolled back %s\n", group)
			return nil
		}),
		migratorCommand("lock", "lock migrations", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			return migrator.Lock(cmd.Context())
		}),
		migratorCommand("unlock", "unlock migrations", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			return migrator.Unlock(cmd.Context())
		}),
		migratorCommand("create_go", "create Go migration", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			mf, err := migrator.CreateGoMigration(cmd.Context(), strings.Join(args, "_"))
			if err != nil {
				return err
			}
			fmt.Printf("created migration %s (%s)\n", mf.Name, mf.Path)
			return nil
		}),
		migratorCommand("create_sql", "create up and down SQL migrations", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			files, err := migrator.CreateSQLMigrations(cmd.Context(), strings.Join(args, "_"))
			if err != nil {
				return err
			}
			for _, mf := range files {
				fmt.Printf("created migration %s (%s)\n", mf.Name, mf.Path)
			}
			return nil
		}),
		migratorCommand("status", "print migrations status", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			ms, err := migrator.MigrationsWithStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("migrations: %s\n", ms)
			fmt.Printf("unapplied migrations: %s\n", ms.Unapplied())
			fmt.Printf("last migration group: %s\n", ms.LastGroup())
			return nil
		}),
		migratorCommand("mark_applied", "mark migrations as applied without actually running them", func(cmd *cobra.Command, args []string, _ *bun.DB, migrator *migrate.Migrator) error {
			group, err := migrator.Migrate(cmd.Context(), migrate.WithNopMigration())
			if err != nil {
				return err
			}
			if group.ID == 0 {
				fmt.Printf("there are no new migrations to mark as applied\n")
				return nil
			}
			fmt.Printf("marked as applied %s\n", group)
			return nil
		}),
	)
	return cmd
}

type migratorFunc func(cmd *cobra.Command, args []string, bunDb *bun.DB, migrator *migrate.Migrator) error

// migratorCommand opens the configured database for the duration of fn
func migratorCommand(use, short string, fn migratorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			bunDb, err := db.OpenDB(cfg.Database.URL, cfg.Database.Debug)
			if err != nil {
				return err
			}
			defer bunDb.Close()
			return fn(cmd, args, bunDb, migrate.NewMigrator(bunDb, migrations.Migrations))
		},
	}
}
