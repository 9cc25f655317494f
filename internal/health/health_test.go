// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks, "checks run only when verbose")

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	assert.True(t, m.Ready(context.Background()).Ready, "no checkers is ready")

	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})
	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	m.RegisterChecker(&mockChecker{name: "degraded-again", status: StatusDegraded})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status, "unhealthy is not downgraded by a later degraded check")
}

func TestServeReady(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(NewFuncChecker("database", func(context.Context) error { return errors.New("closed") }))

	w := httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, "closed", resp.Checks["database"].Error)

	w = httptest.NewRecorder()
	m.ServeHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code, "liveness ignores components")
}

func TestDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewDirChecker("recorded", dir).Check(context.Background()).Status)

	missing := NewDirChecker("recorded", filepath.Join(dir, "missing"))
	assert.Equal(t, StatusUnhealthy, missing.Check(context.Background()).Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	assert.Equal(t, StatusUnhealthy, NewDirChecker("recorded", file).Check(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "probe file is removed")
}

func TestAgeChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var last time.Time
	c := NewAgeChecker("scheduler", 2*time.Hour, func() time.Time { return last })
	c.now = func() time.Time { return now }

	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)
	last = now.Add(-time.Hour)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	last = now.Add(-3 * time.Hour)
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "last run 3h0m0s ago", res.Message)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Recording.RecordedDir = filepath.Join(dir, "data", "recorded")
	cfg.Tuners = []config.TunerConfig{{Name: "t0", Command: "definitely-not-a-binary-xyz --channel"}}

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))
	assert.DirExists(t, cfg.Recording.RecordedDir)

	cfg.Encode.Backend = config.EncodeIPC
	cfg.Encode.Worker.Command = []string{"definitely-not-a-binary-xyz"}
	cfg.Encode.Worker.TempDir = filepath.Join(dir, "tmp")
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), cfg), "encoder binary not found")
}
