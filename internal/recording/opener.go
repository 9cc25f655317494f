// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/procgroup"
	"github.com/ManuGH/pvrd/internal/tuner"
)

// Target identifies the service a session records.
type Target struct {
	ReserveID     int64
	ChannelID     int64
	ServiceID     int64
	NetworkID     int64
	BroadcastType epg.BroadcastType
}

// Opener starts a transport stream for target on dev. Close on the returned
// stream must stop the source and unblock a pending Read.
type Opener interface {
	Open(ctx context.Context, dev tuner.Device, target Target) (io.ReadCloser, error)
}

var errNoCommand = errors.New("tuner has no command")

// CommandOpener runs the tuner's command through a shell and reads the
// stream from its stdout. Tokens %CHANNEL_ID%, %SERVICE_ID%, %NETWORK_ID%,
// %TYPE% and %TUNER% are expanded first.
type CommandOpener struct {
	Shell     string
	KillGrace time.Duration
}

func (o *CommandOpener) Open(ctx context.Context, dev tuner.Device, target Target) (io.ReadCloser, error) {
	if strings.TrimSpace(dev.Command) == "" {
		return nil, fmt.Errorf("%w: %s", errNoCommand, dev.Name)
	}
	shell := o.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	grace := o.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	cmd := exec.Command(shell, "-c", ExpandCommand(dev, target))
	procgroup.Set(cmd)
	stderr := NewLineRing(20)
	cmd.Stderr = stderr

	// A plain pipe keeps Wait from closing the read side under us.
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("start recorder: %w", err)
	}
	_ = w.Close()

	s := &processStream{r: r, cmd: cmd, grace: grace, stderr: stderr, exited: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	return s, nil
}

// ExpandCommand substitutes the target tokens in dev.Command.
func ExpandCommand(dev tuner.Device, t Target) string {
	return strings.NewReplacer(
		"%CHANNEL_ID%", strconv.FormatInt(t.ChannelID, 10),
		"%SERVICE_ID%", strconv.FormatInt(t.ServiceID, 10),
		"%NETWORK_ID%", strconv.FormatInt(t.NetworkID, 10),
		"%TYPE%", string(t.BroadcastType),
		"%TUNER%", strconv.Itoa(dev.Index),
	).Replace(dev.Command)
}

type processStream struct {
	r      *os.File
	cmd    *exec.Cmd
	grace  time.Duration
	stderr *LineRing

	exited  chan struct{}
	waitErr error
	once    sync.Once
}

func (s *processStream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if errors.Is(err, io.EOF) {
		<-s.exited
		if s.waitErr != nil {
			return n, fmt.Errorf("recorder exited: %w: %s", s.waitErr, strings.Join(s.stderr.LastN(3), " | "))
		}
	}
	return n, err
}

func (s *processStream) Close() error {
	s.once.Do(func() {
		select {
		case <-s.exited:
		default:
			waitCh := make(chan error, 1)
			go func() {
				<-s.exited
				waitCh <- s.waitErr
			}()
			_ = procgroup.Terminate(s.cmd, waitCh, s.grace)
		}
		_ = s.r.Close()
	})
	return nil
}
