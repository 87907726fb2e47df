// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/permcore/internal/config"
	"github.com/holomush/permcore/internal/contexts"
	"github.com/holomush/permcore/internal/engine"
	"github.com/holomush/permcore/internal/store"
	"github.com/holomush/permcore/internal/subject"
)

// checkConfig holds flags for the check command.
type checkConfig struct {
	contextPairs []string
}

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	cfg := &checkConfig{}

	cmd := &cobra.Command{
		Use:   "check <type:name> <permission>",
		Short: "Evaluate a permission for a subject",
		Long: `Evaluate a permission for a subject against the stored data,
including inheritance and wildcard fallback. Context tags narrow the
query to matching segments.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, cfg)
		},
	}

	cmd.Flags().StringArrayVar(&cfg.contextPairs, "context", nil, "context tag as key=value (repeatable)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string, checkCfg *checkConfig) error {
	ref, err := subject.ParseRef(args[0])
	if err != nil {
		return oops.With("subject", args[0]).Wrapf(err, "parse subject reference")
	}
	permission := args[1]

	set, err := parseContexts(checkCfg.contextPairs)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabaseURL(); err != nil {
		return err
	}

	ctx := cmd.Context()
	st, pool, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	eng := engine.New(st, subject.NewManualTicker(), engineTypes(cfg))
	if err := eng.Init(ctx); err != nil {
		return oops.Code("ENGINE_INIT_FAILED").Wrap(err)
	}

	subj, err := eng.Subject(ctx, ref)
	if err != nil {
		return err
	}

	value := subj.Permission(ctx, set, permission)
	switch {
	case value > 0:
		cmd.Printf("%s: %s granted (%d)\n", ref, permission, value)
	case value < 0:
		cmd.Printf("%s: %s denied (%d)\n", ref, permission, value)
	default:
		cmd.Printf("%s: %s unset\n", ref, permission)
	}
	return nil
}

// parseContexts converts key=value pairs into a context set.
func parseContexts(pairs []string) (contexts.Set, error) {
	values := make([]contexts.Value, 0, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return contexts.Set{}, oops.
				Code("CONFIG_INVALID").
				With("context", pair).
				Errorf("context must be key=value, got %q", pair)
		}
		values = append(values, contexts.NewValue(key, value))
	}
	return contexts.NewSet(values...), nil
}
