// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/validate"
)

const sampleYAML = `
dataDir: %s
logLevel: debug
api:
  listenAddr: "127.0.0.1:9000"
scheduler:
  lockTimeout: 20s
recording:
  prepLeadTime: 30s
  fileNameFormat: "%%TITLE%%"
tuners:
  - name: gr0
    types: [GR]
    command: "recpt1 %%CHANNEL_ID%% - -"
  - name: bs0
    types: [BS, CS]
    command: "recpt1 --device bs %%CHANNEL_ID%% - -"
encode:
  backend: redis
  redis:
    addr: "localhost:6379"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pvrd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func sampleConfig(t *testing.T) (string, string) {
	t.Helper()
	dataDir := t.TempDir()
	return writeConfig(t, fmt.Sprintf(sampleYAML, dataDir)), dataDir
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "v-test").Load()
	require.NoError(t, err)
	assert.Equal(t, "v-test", cfg.Version)
	assert.Equal(t, DefaultListenAddr, cfg.API.ListenAddr)
	assert.Equal(t, DefaultLockTimeout, cfg.Scheduler.LockTimeout)
	assert.Equal(t, DefaultPrepLeadTime, cfg.Recording.PrepLeadTime)
	assert.Equal(t, EncodeNone, cfg.Encode.Backend)
	assert.Equal(t, filepath.Join(cfg.DataDir, "recorded"), cfg.Recording.RecordedDir)
	assert.Empty(t, cfg.Tuners)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path, dataDir := sampleConfig(t)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.ListenAddr)
	assert.Equal(t, 20*time.Second, cfg.Scheduler.LockTimeout)
	assert.Equal(t, DefaultHorizon, cfg.Scheduler.Horizon, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Recording.PrepLeadTime)
	assert.Equal(t, "%TITLE%", cfg.Recording.FileNameFormat)
	assert.Equal(t, EncodeRedis, cfg.Encode.Backend)

	devs := cfg.TunerDevices()
	require.Len(t, devs, 2)
	assert.Equal(t, 1, devs[1].Index)
	assert.Equal(t, []epg.BroadcastType{epg.BroadcastBS, epg.BroadcastCS}, devs[1].Types)
	assert.Equal(t, "recpt1 --device bs %CHANNEL_ID% - -", devs[1].Command)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path, _ := sampleConfig(t)
	t.Setenv(EnvPrefix+"LOCK_TIMEOUT", "45s")
	t.Setenv(EnvPrefix+"LISTEN_ADDR", ":7000")
	t.Setenv(EnvPrefix+"REDIS_DB", "3")
	t.Setenv(EnvPrefix+"PREP_TIMEOUT", "not-a-duration")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.LockTimeout)
	assert.Equal(t, ":7000", cfg.API.ListenAddr)
	assert.Equal(t, 3, cfg.Encode.Redis.DB)
	assert.Equal(t, DefaultPrepTimeout, cfg.Recording.PrepTimeout, "invalid values fall back")
}

func TestLoad_RelativeRecordedDirIsUnderDataDir(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "dataDir: "+dataDir+"\nrecording:\n  recordedDir: tv\n")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataDir, "tv"), cfg.Recording.RecordedDir)
}

func TestLoad_StrictParsing(t *testing.T) {
	tests := []struct {
		name string
		body string
		file string
	}{
		{"unknown key", "dataDir: /tmp\nbouquets: [a]\n", "pvrd.yaml"},
		{"multiple documents", "dataDir: /tmp\n---\nlogLevel: info\n", "pvrd.yaml"},
		{"not yaml", "{}", "pvrd.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := NewLoader(path, "").Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
	path := writeConfig(t, "")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.API.ListenAddr)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Recording.RecordedDir = filepath.Join(cfg.DataDir, "recorded")
	cfg.Tuners = []TunerConfig{{Name: "gr0", Types: []epg.BroadcastType{epg.BroadcastGR}, Command: "cat"}}
	return cfg
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, Validate(cfg))

	cfg.LogLevel = "loud"
	cfg.Scheduler.LockTimeout = 0
	cfg.Recording.RecordedDir = "relative"
	cfg.Tuners = append(cfg.Tuners, TunerConfig{Name: "gr0", Types: []epg.BroadcastType{"XX"}})
	cfg.Encode.Backend = "kafka"

	err := Validate(cfg)
	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)

	fields := map[string]bool{}
	for _, e := range verr.Errors() {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"logLevel", "scheduler.lockTimeout", "recording.recordedDir",
		"tuners[1].name", "tuners[1].types", "tuners[1].command", "encode.backend",
	} {
		assert.True(t, fields[f], "expected error for %s", f)
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := validConfig(t)
	cfg.Encode.Backend = EncodeIPC
	cfg.Encode.Worker.TempDir = filepath.Join(cfg.DataDir, "tmp")
	assert.Error(t, Validate(cfg), "ipc needs an encoder command")

	cfg.Encode.Worker.Command = []string{"ffmpeg", "-i", "%INPUT%", "%OUTPUT%"}
	assert.NoError(t, Validate(cfg))

	cfg.Encode.Backend = EncodeRedis
	assert.Error(t, Validate(cfg), "redis needs an address")

	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter = "zipkin"
	cfg.Encode.Backend = EncodeNone
	assert.Error(t, Validate(cfg))
}

func TestClone_IsDeep(t *testing.T) {
	cfg := validConfig(t)
	c := cfg.Clone()
	c.Tuners[0].Types[0] = epg.BroadcastBS
	assert.Equal(t, epg.BroadcastGR, cfg.Tuners[0].Types[0])
}
