// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/daemon"
	"github.com/ManuGH/pvrd/internal/health"
	"github.com/ManuGH/pvrd/internal/log"
)

func newServeCmd(configPath *string, load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the recorder and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			configureLogging(cfg)
			return serve(cfg, *configPath)
		},
	}
}

func serve(cfg config.Config, configPath string) error {
	logger := log.WithComponent("daemon")
	ctx, stop := daemon.WaitForShutdown()
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "startup.check_failed").Msg("startup checks failed")
		return err
	}

	shutdownTelemetry, err := daemon.StartTelemetry(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("continuing without tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	rt, err := daemon.Build(ctx, cfg, daemon.Options{ConfigPath: configPath})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn().Err(err).Msg("runtime close")
		}
	}()

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.API.ListenAddr), daemon.Deps{
		Logger:     logger,
		APIHandler: rt.API.Handler(),
	})
	if err != nil {
		return err
	}

	var holder *config.Holder
	if configPath != "" {
		holder = config.NewHolder(cfg, config.NewLoader(configPath, cfg.Version))
	}

	logger.Info().
		Str(log.FieldEvent, "daemon.start").
		Str("addr", cfg.API.ListenAddr).
		Int("tuners", len(cfg.Tuners)).
		Str("encode_backend", cfg.Encode.Backend).
		Msg("starting pvrd")
	return daemon.NewApp(rt, mgr, holder).Run(ctx)
}
