// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command pvrd is the recording daemon and its maintenance tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/log"
	"github.com/ManuGH/pvrd/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pvrd",
		Short:         "Broadcast recording daemon",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	load := func() (config.Config, error) {
		return config.NewLoader(configPath, version.Version).Load()
	}
	root.AddCommand(
		newServeCmd(&configPath, load),
		newValidateCmd(load),
		newEncodeWorkerCmd(load),
		newImportGuideCmd(load),
	)
	return root
}

type loadFunc func() (config.Config, error)

// configureLogging switches to the configured level; the IPC worker keeps
// stdout for replies so every command logs to stderr.
func configureLogging(cfg config.Config) {
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  os.Stderr,
		Service: "pvrd",
		Version: cfg.Version,
	})
}
