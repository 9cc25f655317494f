// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/pvrd/internal/audit"
	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/telemetry"
)

// App owns the long-lived runtime: the scheduler runner, the recording
// engine, file watchers and the HTTP server.
type App struct {
	logger       zerolog.Logger
	rt           *Runtime
	manager      Manager
	cfgHolder    *config.Holder
	reloadSignal os.Signal
	audit        *audit.Logger
}

// NewApp creates a new App orchestrator. cfgHolder may be nil.
func NewApp(rt *Runtime, manager Manager, cfgHolder *config.Holder) *App {
	return &App{
		logger:       log.WithComponent("app"),
		rt:           rt,
		manager:      manager,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
		audit:        audit.NewLogger(),
	}
}

// Run starts all subsystems and blocks until ctx is cancelled or one of them
// fails. The engine has stopped when Run returns, so the runtime can be
// closed afterwards.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.rt.Store.Run(ctx) })
	g.Go(func() error { return a.rt.Engine.Run(ctx) })

	// Rule file edits are picked up live; the daemon works without it.
	g.Go(func() error {
		if err := a.rt.Rules.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "rules.watcher_start_failed").Msg("rule watcher unavailable")
		}
		return nil
	})

	if a.cfgHolder != nil {
		applyCh := make(chan config.Config, 1)
		a.cfgHolder.RegisterListener(applyCh)

		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case next := <-applyCh:
					a.rt.ApplyConfig(next)
				}
			}
		})
		if a.reloadSignal != nil {
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, a.reloadSignal)
				defer signal.Stop(hup)
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hup:
						a.logger.Info().Str(log.FieldEvent, "config.reload_signal").Msg("received reload signal, reloading config")
						err := a.cfgHolder.Reload(ctx)
						a.audit.ConfigReload("signal", err)
						if err != nil {
							a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})

	return g.Wait()
}

// StartTelemetry installs the global tracer provider when tracing is enabled.
// The returned shutdown function is never nil.
func StartTelemetry(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Telemetry.Enabled {
		return noop, nil
	}
	p, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        true,
		ServiceName:    "pvrd",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return noop, fmt.Errorf("telemetry init failed: %w", err)
	}
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("endpoint", cfg.Telemetry.Endpoint).
		Float64("sampling_rate", cfg.Telemetry.SamplingRate).
		Msg("Telemetry initialized")
	return p.Shutdown, nil
}

// WaitForShutdown returns a context cancelled by SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
