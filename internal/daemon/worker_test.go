// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/ipc"
)

func TestRunEncodeWorker_IPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encode.Backend = config.EncodeIPC
	require.NoError(t, os.MkdirAll(cfg.Encode.Worker.TempDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Encode.Worker.TempDir, "stale.part"), []byte("x"), 0o600))

	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- RunEncodeWorker(context.Background(), cfg, reqR, repW) }()

	client := ipc.NewClient(repR, reqW)
	q := encode.NewWorkerQueue(client, time.Second)

	res, err := q.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"stale.part"}, res.Removed)
	assert.NoFileExists(t, filepath.Join(cfg.Encode.Worker.TempDir, "stale.part"))

	require.NoError(t, client.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit at end of input")
	}
}

func TestRunEncodeWorker_NoBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encode.Backend = config.EncodeNone
	err := RunEncodeWorker(context.Background(), cfg, nil, io.Discard)
	assert.ErrorContains(t, err, "has no worker")
}
