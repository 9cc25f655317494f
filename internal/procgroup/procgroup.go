// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts recorder commands in their own process group and
// reaps the whole group on shutdown.
package procgroup

import (
	"errors"
	"os/exec"
	"time"

	"github.com/ManuGH/pvrd/internal/metrics"
)

// Set configures the command to start in a new process group.
// Mandatory for Terminate to reach grandchildren (shell pipelines).
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate attempts to gracefully stop a process group.
// It sends SIGTERM, waits for the process to exit (via the provided wait channel),
// and if it doesn't exit within grace, sends SIGKILL.
// It consumes and returns the error from waitCh.
// It is safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.IncProcTerminate("SIGTERM", signalResult(interrupt(cmd)))

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
		metrics.IncProcTerminate("SIGKILL", signalResult(kill(cmd)))

		// Always drain waitCh; SIGKILL frees a blocked process.
		err := <-waitCh
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	}
}

var errAlreadyExited = errors.New("process already exited")

func signalResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, errAlreadyExited):
		return "esrch"
	default:
		return "error"
	}
}
