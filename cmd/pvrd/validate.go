// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pvrd/internal/dvr"
)

func newValidateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and the stored rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			rules := dvr.NewManager(cfg.DataDir)
			if err := rules.Load(); err != nil {
				return fmt.Errorf("rules in %s: %w", rules.Path(), err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %d tuner(s), encode backend %q\n", len(cfg.Tuners), cfg.Encode.Backend)
			fmt.Fprintf(out, "rules ok: %d rule(s) in %s\n", len(rules.GetRules()), rules.Path())
			return nil
		},
	}
}
