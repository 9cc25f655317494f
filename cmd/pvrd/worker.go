// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pvrd/internal/daemon"
)

func newEncodeWorkerCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "encode-worker",
		Short: "Run the encode worker (IPC on stdin/stdout, or Redis consumer)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			configureLogging(cfg)
			ctx, stop := daemon.WaitForShutdown()
			defer stop()
			return daemon.RunEncodeWorker(ctx, cfg, os.Stdin, os.Stdout)
		},
	}
}
