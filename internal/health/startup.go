// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts.
// Directories the daemon owns are created.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")

	for _, dir := range []struct{ name, path string }{
		{"data directory", cfg.DataDir},
		{"recorded directory", cfg.Recording.RecordedDir},
	} {
		if err := os.MkdirAll(dir.path, 0o750); err != nil {
			return fmt.Errorf("%s: %w", dir.name, err)
		}
		if err := checkWritableDir(dir.path); err != nil {
			return fmt.Errorf("%s check failed: %w", dir.name, err)
		}
		logger.Debug().Str(log.FieldPath, dir.path).Msgf("%s is writable", dir.name)
	}

	if len(cfg.Tuners) == 0 {
		logger.Warn().Str(log.FieldEvent, "startup.no_tuners").Msg("no tuners configured; every reservation will conflict")
	}
	for _, t := range cfg.Tuners {
		checkTunerCommand(logger, t.Name, t.Command)
	}

	if cfg.Encode.Backend == config.EncodeIPC {
		bin := cfg.Encode.Worker.Command[0]
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("encoder binary not found (%s): %w", bin, err)
		}
		if err := os.MkdirAll(cfg.Encode.Worker.TempDir, 0o750); err != nil {
			return fmt.Errorf("encode temp directory: %w", err)
		}
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator)) {
		logger.Warn().Str("data_dir", cfg.DataDir).Msg("data directory is under temp; reservations may be lost on reboot")
	}
	return nil
}

// checkTunerCommand warns when the first word of a shell command cannot be
// resolved. Commands may rely on shell builtins or PATH changes, so this is
// never fatal.
func checkTunerCommand(logger zerolog.Logger, name, command string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		logger.Warn().Str(log.FieldTuner, name).Str("command", fields[0]).Msg("tuner command not found in PATH")
	}
}
