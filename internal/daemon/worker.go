// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/ipc"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
	"github.com/ManuGH/pvrd/internal/recorded"
)

// RunEncodeWorker runs the encoder side of the configured backend. With the
// IPC backend requests arrive on in and replies go to out; the worker exits
// when in reaches EOF. With the Redis backend it drains the shared queue.
func RunEncodeWorker(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	logger := log.WithComponent("encode.worker")

	db, err := sqlite.Open(cfg.DBPath(), sqlite.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	library, err := recorded.NewSqliteStore(db)
	if err != nil {
		return err
	}

	worker, err := encode.NewWorker(encode.WorkerConfig{
		Command:   cfg.Encode.Worker.Command,
		OutputDir: cfg.Encode.Worker.OutputDir,
		TempDir:   cfg.Encode.Worker.TempDir,
	}, library)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.Go(func() error { return worker.Run(ctx) })

	switch cfg.Encode.Backend {
	case config.EncodeIPC:
		srv := ipc.NewServer()
		worker.Register(srv)
		g.Go(func() error {
			defer cancel()
			return srv.Serve(ctx, in, out)
		})
	case config.EncodeRedis:
		q, err := encode.NewRedisQueue(ctx, encode.RedisConfig{
			Addr:     cfg.Encode.Redis.Addr,
			Password: cfg.Encode.Redis.Password,
			DB:       cfg.Encode.Redis.DB,
			Key:      cfg.Encode.Redis.Key,
		})
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("encode queue: %w", err)
		}
		defer func() { _ = q.Close() }()
		g.Go(func() error { return worker.Consume(ctx, q) })
	default:
		cancel()
		_ = g.Wait()
		return fmt.Errorf("encode backend %q has no worker", cfg.Encode.Backend)
	}

	logger.Info().Str("backend", cfg.Encode.Backend).Msg("encode worker started")
	err = g.Wait()
	logger.Info().Msg("encode worker stopped")
	return err
}
