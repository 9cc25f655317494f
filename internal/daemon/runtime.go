// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the reservation store, the recording engine and the
// HTTP surface into one process and owns their lifecycle.
package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/api"
	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/dvr"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/health"
	"github.com/ManuGH/pvrd/internal/ipc"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/metrics"
	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
	"github.com/ManuGH/pvrd/internal/recorded"
	"github.com/ManuGH/pvrd/internal/recording"
	"github.com/ManuGH/pvrd/internal/reserve"
	"github.com/ManuGH/pvrd/internal/resilience"
	"github.com/ManuGH/pvrd/internal/tuner"
)

const (
	// tunerCacheTTL bounds how long a pass may see a stale inventory.
	tunerCacheTTL  = 5 * time.Second
	workerKillWait = 5 * time.Second

	encodeBreakerThreshold = 3
	encodeBreakerCooldown  = 30 * time.Second
)

// Options carries process-level inputs that are not part of the config.
type Options struct {
	// ConfigPath is handed to the encode worker child.
	ConfigPath string
	// Executable runs the encode worker; defaults to os.Executable.
	Executable string
}

// Runtime holds the wired services of one daemon instance.
type Runtime struct {
	Config config.Config

	DB        *sql.DB
	Guide     *epg.SqliteStore
	Library   *recorded.SqliteStore
	Rules     *dvr.Manager
	Inventory *tuner.StaticInventory
	Store     *reserve.Store
	Engine    *recording.Engine
	Encode    encode.Queue
	Health    *health.Manager
	API       *api.Server

	tunerCache *tuner.CachedInventory
	closers    []io.Closer
	logger     zerolog.Logger
}

// Build opens storage and wires every service. Nothing runs until App.Run.
func Build(ctx context.Context, cfg config.Config, opts Options) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("time zone: %w", err)
	}

	rt.DB, err = sqlite.Open(cfg.DBPath(), sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.closers = append(rt.closers, rt.DB)

	if rt.Guide, err = epg.NewSqliteStore(rt.DB); err != nil {
		return nil, err
	}
	if rt.Library, err = recorded.NewSqliteStore(rt.DB); err != nil {
		return nil, err
	}
	repo, err := reserve.NewSqliteRepository(rt.DB)
	if err != nil {
		return nil, err
	}

	rt.Rules = dvr.NewManager(cfg.DataDir)
	if err := rt.Rules.Load(); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	rt.Inventory = tuner.NewStaticInventory(cfg.TunerDevices())
	rt.tunerCache = tuner.NewCachedInventory(rt.Inventory, tunerCacheTTL)
	metrics.SetTunersConfigured(len(cfg.Tuners))

	rt.Store, err = reserve.Open(ctx, reserve.Config{
		Horizon:         cfg.Scheduler.Horizon,
		LockTimeout:     cfg.Scheduler.LockTimeout,
		MinPassInterval: cfg.Scheduler.MinPassInterval,
		RefreshInterval: cfg.Scheduler.RefreshInterval,
	}, reserve.Deps{
		Rules:    rt.Rules,
		Matcher:  dvr.NewMatcher(rt.Guide, loc),
		Guard:    dvr.NewHistoryGuard(rt.Library, time.Now),
		Programs: rt.Guide,
		Tuners:   rt.tunerCache,
		Repo:     repo,
	})
	if err != nil {
		return nil, err
	}
	rt.Rules.SetNotifier(rt.Store)

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewFuncChecker("database", rt.DB.PingContext))
	rt.Health.RegisterChecker(health.NewDirChecker("recorded_dir", cfg.Recording.RecordedDir))
	if cfg.Scheduler.RefreshInterval > 0 {
		rt.Health.RegisterChecker(health.NewAgeChecker("scheduler", 2*cfg.Scheduler.RefreshInterval, rt.Store.LastPass))
	}

	var maintenance api.Maintenance
	rt.Encode, maintenance, err = rt.buildEncode(ctx, opts)
	if err != nil {
		return nil, err
	}

	rt.Engine, err = recording.NewEngine(recording.Config{
		PrepLeadTime:   cfg.Recording.PrepLeadTime,
		PrepTimeout:    cfg.Recording.PrepTimeout,
		RecordedDir:    cfg.Recording.RecordedDir,
		FileNameFormat: cfg.Recording.FileNameFormat,
		Location:       loc,
	}, recording.Deps{
		Reserves: rt.Store,
		Tuners:   tuner.NewPool(rt.tunerCache),
		Opener:   &recording.CommandOpener{},
		Recorded: rt.Library,
		Encode:   rt.Encode,
		Channels: rt.Guide,
	})
	if err != nil {
		return nil, err
	}
	rt.Store.SetStopper(rt.Engine)

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = "pvrd"
	}
	rt.API, err = api.New(api.Config{
		Version:        cfg.Version,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracing,
	}, api.Deps{
		Reservations: rt.Store,
		Rules:        rt.Rules,
		Recordings:   rt.Engine,
		Library:      rt.Library,
		Guide:        rt.Guide,
		Maintenance:  maintenance,
		Health:       rt.Health,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// buildEncode selects the encode backend. The IPC backend starts a worker
// child running this binary's encode-worker command.
func (rt *Runtime) buildEncode(ctx context.Context, opts Options) (encode.Queue, api.Maintenance, error) {
	cfg := rt.Config.Encode
	switch cfg.Backend {
	case config.EncodeRedis:
		q, err := encode.NewRedisQueue(ctx, encode.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("encode queue: %w", err)
		}
		rt.closers = append(rt.closers, q)
		rt.Health.RegisterChecker(health.NewFuncChecker("encode_queue", func(ctx context.Context) error {
			_, err := q.Len(ctx)
			return err
		}))
		return rt.guardEncode(q, cfg.Backend), nil, nil
	case config.EncodeIPC:
		exe := opts.Executable
		if exe == "" {
			var err error
			if exe, err = os.Executable(); err != nil {
				return nil, nil, fmt.Errorf("encode worker: %w", err)
			}
		}
		args := []string{"encode-worker"}
		if opts.ConfigPath != "" {
			args = append(args, "--config", opts.ConfigPath)
		}
		proc, err := ipc.StartProcess(context.WithoutCancel(ctx), workerKillWait, exe, args...)
		if err != nil {
			return nil, nil, fmt.Errorf("encode worker: %w", err)
		}
		rt.closers = append(rt.closers, proc)
		q := encode.NewWorkerQueue(proc, cfg.IPCTimeout)
		return rt.guardEncode(q, cfg.Backend), q, nil
	default:
		return encode.DiscardQueue{}, nil, nil
	}
}

// guardEncode wraps q in a circuit breaker reported as a health check.
func (rt *Runtime) guardEncode(q encode.Queue, backend string) *encode.BreakerQueue {
	bq := encode.NewBreakerQueue(q, backend, encodeBreakerThreshold, encodeBreakerCooldown)
	rt.Health.RegisterChecker(health.NewFuncChecker("encode_breaker", func(context.Context) error {
		if st := bq.State(); st != resilience.StateClosed {
			return fmt.Errorf("encode breaker %s", st)
		}
		return nil
	}))
	return bq
}

// ApplyConfig takes over the hot-reloadable parts of next. Tuner changes
// invalidate the inventory cache and trigger a pass.
func (rt *Runtime) ApplyConfig(next config.Config) {
	if config.TunersChanged(rt.Config, next) {
		if rt.Inventory.Set(next.TunerDevices()) {
			rt.tunerCache.Invalidate()
			metrics.SetTunersConfigured(len(next.Tuners))
			rt.logger.Info().Str(log.FieldEvent, "tuners.reconfigured").Int("count", len(next.Tuners)).Msg("tuner inventory replaced")
			rt.Store.Notify("tuners.changed")
		}
	}
	if next.LogLevel != rt.Config.LogLevel {
		if lvl, err := zerolog.ParseLevel(next.LogLevel); err == nil {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	rt.Config = next
}

// Close releases storage and stops the encode worker, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
