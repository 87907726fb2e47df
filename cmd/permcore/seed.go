// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/permcore/internal/config"
	"github.com/holomush/permcore/internal/engine"
	"github.com/holomush/permcore/internal/seed"
	"github.com/holomush/permcore/internal/store"
	"github.com/holomush/permcore/internal/subject"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Import subject data from a YAML seed file",
		Long: `Imports subjects, permissions, options, and parents from a YAML
seed file. This command is idempotent - re-applying the same seed does
not duplicate data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

func runSeed(cmd *cobra.Command, args []string, seedCfg *seedConfig) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return oops.Code("SEED_FAILED").With("path", args[0]).Wrapf(err, "read seed file")
	}
	file, err := seed.Parse(raw)
	if err != nil {
		return oops.With("path", args[0]).Wrap(err)
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabaseURL(); err != nil {
		return err
	}

	// Add timeout to prevent indefinite hangs
	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), seedCfg.timeout)
	defer cancel()

	cmd.Println("Running migrations...")
	if err := migrateUp(cfg.DatabaseURL); err != nil {
		return err
	}

	cmd.Println("Connecting to database...")
	st, pool, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	eng := engine.New(st, subject.NewManualTicker(), engineTypes(cfg))
	if err := eng.Init(ctx); err != nil {
		return oops.Code("ENGINE_INIT_FAILED").Wrap(err)
	}

	if err := seed.Apply(ctx, eng, file); err != nil {
		return oops.Code("SEED_FAILED").With("path", args[0]).Wrap(err)
	}

	cmd.Printf("Seeded %d subjects\n", len(file.Subjects))
	slog.Info("seed applied", "path", args[0], "subjects", len(file.Subjects))
	return nil
}
