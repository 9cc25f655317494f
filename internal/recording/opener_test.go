// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package recording

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/tuner"
)

func TestExpandCommand(t *testing.T) {
	dev := tuner.Device{Index: 2, Command: "rec --sid %SERVICE_ID% --ch %CHANNEL_ID% --nid %NETWORK_ID% --type %TYPE% --dev %TUNER% -"}
	got := ExpandCommand(dev, Target{ChannelID: 10, ServiceID: 1024, NetworkID: 32736, BroadcastType: epg.BroadcastGR})
	assert.Equal(t, "rec --sid 1024 --ch 10 --nid 32736 --type GR --dev 2 -", got)
}

func TestCommandOpener_ReadsStdout(t *testing.T) {
	src := filepath.Join(t.TempDir(), "in.ts")
	data := packets(0x100, 0, 1, 2)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	o := &CommandOpener{KillGrace: time.Second}
	s, err := o.Open(context.Background(), tuner.Device{Name: "gr0", Command: "cat " + src}, Target{})
	require.NoError(t, err)
	defer s.Close()

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCommandOpener_ReportsExitStatus(t *testing.T) {
	o := &CommandOpener{KillGrace: time.Second}
	s, err := o.Open(context.Background(), tuner.Device{Command: "echo 'device busy' >&2; exit 3"}, Target{})
	require.NoError(t, err)
	defer s.Close()

	_, err = io.ReadAll(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
}

func TestCommandOpener_CloseStopsRecorder(t *testing.T) {
	o := &CommandOpener{KillGrace: time.Second}
	s, err := o.Open(context.Background(), tuner.Device{Command: "sleep 30"}, Target{})
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(s)
		readErr <- err
	}()

	start := time.Now()
	require.NoError(t, s.Close())
	select {
	case <-readErr:
	case <-time.After(5 * time.Second):
		t.Fatal("read did not return after Close")
	}
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandOpener_RequiresCommand(t *testing.T) {
	_, err := (&CommandOpener{}).Open(context.Background(), tuner.Device{Name: "gr0"}, Target{})
	assert.ErrorIs(t, err, errNoCommand)
}

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)
	_, _ = r.Write([]byte("one\ntwo\nthr"))
	_, _ = r.Write([]byte("ee\nfour\n\nfive"))
	assert.Equal(t, []string{"three", "four", "five"}, r.LastN(3))
	assert.Equal(t, []string{"two", "three", "four", "five"}, r.LastN(10))
}
