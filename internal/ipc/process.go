// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ManuGH/pvrd/internal/procgroup"
)

// Process is a helper child speaking the protocol on stdin/stdout.
type Process struct {
	*Client
	cmd    *exec.Cmd
	waitCh chan error
	grace  time.Duration
}

// StartProcess launches name with args in its own process group. Its stderr
// is passed through.
func StartProcess(ctx context.Context, grace time.Duration, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	procgroup.Set(cmd)
	cmd.Stderr = os.Stderr
	// Terminate handles the group; do not let CommandContext kill only the leader.
	cmd.Cancel = func() error { return nil }

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ipc: start %s: %w", name, err)
	}

	p := &Process{cmd: cmd, waitCh: make(chan error, 1), grace: grace}
	p.Client = NewClient(stdout, stdin)
	go func() {
		<-p.Client.done
		p.waitCh <- cmd.Wait()
	}()
	return p, nil
}

// Close closes the request stream and stops the process, escalating to
// SIGKILL after the grace period.
func (p *Process) Close() error {
	_ = p.Client.w.Close()
	return procgroup.Terminate(p.cmd, p.waitCh, p.grace)
}
