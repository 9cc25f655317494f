// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/metrics"
	"github.com/ManuGH/pvrd/internal/persistence/sqlite"
)

// newImportGuideCmd loads an XMLTV file straight into the database. A running
// daemon picks the programs up on its next pass.
func newImportGuideCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "import-guide <xmltv-file>",
		Short: "Import an XMLTV guide into the program store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			configureLogging(cfg)

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			g, err := epg.ParseXMLTV(f)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
				return err
			}
			db, err := sqlite.Open(cfg.DBPath(), sqlite.DefaultConfig())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()
			store, err := epg.NewSqliteStore(db)
			if err != nil {
				return err
			}
			err = epg.Import(cmd.Context(), store, g)
			metrics.RecordGuideImport(len(g.Programs), err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d channel(s), %d program(s), skipped %d\n",
				len(g.Channels), len(g.Programs), g.Skipped)
			return nil
		},
	}
}
