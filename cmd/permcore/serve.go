// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/permcore/internal/config"
	"github.com/holomush/permcore/internal/engine"
	"github.com/holomush/permcore/internal/logging"
	"github.com/holomush/permcore/internal/observability"
	"github.com/holomush/permcore/internal/store"
	"github.com/holomush/permcore/internal/subject"
)

// defaultTickInterval paces the active-context cache when the host has
// no simulation loop of its own.
const defaultTickInterval = 50 * time.Millisecond

// serveConfig holds flags for the serve command.
type serveConfig struct {
	tickInterval time.Duration
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the permission engine server",
		Long: `Start the permission engine: connects to PostgreSQL, loads subject
data, and reloads subjects when the store reports external changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.tickInterval, "tick-interval", defaultTickInterval, "active-context cache tick interval")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = config default)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, serveCfg *serveConfig) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabaseURL(); err != nil {
		return err
	}

	logging.SetDefault("permcore", version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	slog.Info("starting permission engine",
		"metrics_addr", cfg.MetricsAddr,
		"subject_types", len(cfg.SubjectTypes),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, pool, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	ticker := subject.NewManualTicker()
	eng := engine.New(st, ticker, engineTypes(cfg))
	if err := eng.Init(ctx); err != nil {
		return oops.Code("ENGINE_INIT_FAILED").Wrap(err)
	}

	// Advance the tick counter on a wall-clock interval. A host with its
	// own simulation loop would drive this itself.
	go func() {
		t := time.NewTicker(serveCfg.tickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				ticker.Advance()
			}
		}
	}()

	if err := eng.StartWithListener(ctx, store.NewPgListener(cfg.DatabaseURL)); err != nil {
		return oops.Code("LISTENER_START_FAILED").Wrap(err)
	}

	// Start observability server if configured
	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, eng.Ready)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Permission engine started")
	slog.Info("permission engine ready", "subject_types", cfg.SubjectTypes)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	slog.Info("shutting down...")
	cancel()
	eng.Wait()

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// engineTypes converts configured subject types into engine type
// configs.
func engineTypes(cfg *config.Config) []engine.TypeConfig {
	out := make([]engine.TypeConfig, 0, len(cfg.SubjectTypes))
	for _, st := range cfg.SubjectTypes {
		out = append(out, engine.TypeConfig{
			Name:               st.Name,
			Default:            st.Default,
			DefaultPermissions: st.DefaultPermissions,
		})
	}
	return out
}

// monitorServerErrors cancels the context when a server's error channel
// reports a failure, so the whole process shuts down.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
