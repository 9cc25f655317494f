// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/config"
	"github.com/ManuGH/pvrd/internal/encode"
	"github.com/ManuGH/pvrd/internal/epg"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.DataDir = dir
	cfg.Recording.RecordedDir = filepath.Join(dir, "recorded")
	cfg.Recording.TimeZone = "UTC"
	cfg.Tuners = []config.TunerConfig{
		{Name: "gr0", Types: []epg.BroadcastType{epg.BroadcastGR}, Command: "cat /dev/null"},
	}
	cfg.Encode.Worker.Command = []string{"cp", "%INPUT%", "%OUTPUT%"}
	cfg.Encode.Worker.OutputDir = filepath.Join(dir, "encoded")
	cfg.Encode.Worker.TempDir = filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(cfg.Recording.RecordedDir, 0o755))
	return cfg
}

func buildRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	rt, err := Build(context.Background(), cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestBuild_ServesAPI(t *testing.T) {
	rt := buildRuntime(t, testConfig(t))
	assert.IsType(t, encode.DiscardQueue{}, rt.Encode)

	rec := httptest.NewRecorder()
	rt.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reserves", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)

	rec = httptest.NewRecorder()
	rt.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rt.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/encode/cleanup", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no worker behind the discard backend")
}

func TestBuild_BadTimeZone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recording.TimeZone = "Nowhere/Invalid"
	_, err := Build(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "time zone")
}

func TestBuild_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Encode.Backend = config.EncodeRedis
	cfg.Encode.Redis.Addr = mr.Addr()

	rt := buildRuntime(t, cfg)
	q, ok := rt.Encode.(*encode.BreakerQueue)
	require.True(t, ok, "got %T", rt.Encode)

	require.NoError(t, q.PushEncode(context.Background(), encode.Request{RecordedID: 1, SourceVideoFileID: 1, Mode: "h264"}))
	items, err := mr.List(encode.DefaultRedisKey)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	res := rt.Health.Health(context.Background(), true)
	assert.Contains(t, res.Checks, "encode_queue")
	assert.Contains(t, res.Checks, "encode_breaker")
}

func TestRuntime_ApplyConfigReplacesTuners(t *testing.T) {
	cfg := testConfig(t)
	rt := buildRuntime(t, cfg)

	next := cfg.Clone()
	next.Tuners = append(next.Tuners, config.TunerConfig{
		Name: "bs0", Types: []epg.BroadcastType{epg.BroadcastBS, epg.BroadcastCS}, Command: "cat /dev/null",
	})
	next.LogLevel = "debug"
	rt.ApplyConfig(next)

	devs, err := rt.Inventory.GetTuners(context.Background())
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, "bs0", devs[1].Name)
	assert.Equal(t, 1, devs[1].Index)
	assert.Equal(t, "debug", rt.Config.LogLevel)
}

type blockingManager struct{ started chan struct{} }

func (m *blockingManager) Start(ctx context.Context) error {
	close(m.started)
	<-ctx.Done()
	return nil
}

func (m *blockingManager) Shutdown(context.Context) error            { return nil }
func (m *blockingManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestApp_RunUntilCancelled(t *testing.T) {
	rt := buildRuntime(t, testConfig(t))
	mgr := &blockingManager{started: make(chan struct{})}
	app := NewApp(rt, mgr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	<-mgr.started
	require.Eventually(t, func() bool { return !rt.Store.LastPass().IsZero() }, 5*time.Second, 10*time.Millisecond,
		"startup pass runs")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestApp_RunRequiresManager(t *testing.T) {
	app := NewApp(&Runtime{}, nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
