// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

func set(cmd *exec.Cmd) {
	// No process groups; only the root process is signalled.
}

func interrupt(cmd *exec.Cmd) error { return wrap(cmd.Process.Signal(os.Interrupt)) }

func kill(cmd *exec.Cmd) error { return wrap(cmd.Process.Kill()) }

func wrap(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return errAlreadyExited
	}
	return err
}
