// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/permcore/internal/config"
	"github.com/holomush/permcore/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, or inspect schema migrations on the PostgreSQL database.`,
	}

	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			cmd.Println("Running migrations...")
			if err := migrateUp(dsn); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := store.NewMigrator(dsn)
			if err != nil {
				return oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			defer closeMigrator(m)
			if err := m.Down(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
			}
			cmd.Println("Migrations rolled back")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := store.NewMigrator(dsn)
			if err != nil {
				return oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			defer closeMigrator(m)
			version, dirty, err := m.Version()
			if err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "read migration version").Wrap(err)
			}
			if version == 0 {
				cmd.Println("No migrations applied")
				return nil
			}
			cmd.Printf("Version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})

	return cmd
}

// databaseURL loads configuration and returns the required database
// URL.
func databaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return "", err
	}
	if err := cfg.RequireDatabaseURL(); err != nil {
		return "", err
	}
	return cfg.DatabaseURL, nil
}

// migrateUp applies all pending migrations against the database.
func migrateUp(dsn string) error {
	m, err := store.NewMigrator(dsn)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	defer closeMigrator(m)
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}

func closeMigrator(m *store.Migrator) {
	if err := m.Close(); err != nil {
		slog.Warn("error closing migrator", "error", err)
	}
}
