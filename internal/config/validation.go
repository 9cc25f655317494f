// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/validate"
)

// Validate reports every problem in cfg as one validate.ValidationError.
func Validate(cfg Config) error {
	v := validate.New()

	v.NotEmpty("dataDir", cfg.DataDir)
	v.Custom("logLevel", cfg.LogLevel, func(any) error {
		_, err := zerolog.ParseLevel(cfg.LogLevel)
		return err
	})

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.Range("api.rateLimit", cfg.API.RateLimit, 0, 100000)

	validateScheduler(v, cfg.Scheduler)
	validateRecording(v, cfg.Recording)
	validateTuners(v, cfg.Tuners)
	validateEncode(v, cfg.Encode)
	validateTelemetry(v, cfg.Telemetry)

	return v.Err()
}

func validateScheduler(v *validate.Validator, s SchedulerConfig) {
	v.DurationRange("scheduler.horizon", s.Horizon, time.Hour, 31*24*time.Hour)
	v.DurationRange("scheduler.lockTimeout", s.LockTimeout, time.Second, 10*time.Minute)
	v.DurationRange("scheduler.minPassInterval", s.MinPassInterval, 0, time.Hour)
	if s.RefreshInterval != 0 {
		v.DurationRange("scheduler.refreshInterval", s.RefreshInterval, time.Minute, 0)
	}
}

func validateRecording(v *validate.Validator, r RecordingConfig) {
	v.DurationRange("recording.prepLeadTime", r.PrepLeadTime, 0, 10*time.Minute)
	v.DurationRange("recording.prepTimeout", r.PrepTimeout, time.Second, 10*time.Minute)
	v.AbsPath("recording.recordedDir", r.RecordedDir)
	if r.TimeZone != "" {
		v.Custom("recording.timeZone", r.TimeZone, func(any) error {
			_, err := time.LoadLocation(r.TimeZone)
			return err
		})
	}
}

func validateTuners(v *validate.Validator, tuners []TunerConfig) {
	seen := make(map[string]bool, len(tuners))
	for i, t := range tuners {
		prefix := fmt.Sprintf("tuners[%d]", i)
		v.NotEmpty(prefix+".name", t.Name)
		if seen[t.Name] {
			v.AddError(prefix+".name", "duplicate tuner name", t.Name)
		}
		seen[t.Name] = true
		v.NotEmpty(prefix+".command", t.Command)
		if len(t.Types) == 0 {
			v.AddError(prefix+".types", "at least one broadcast type is required", t.Types)
		}
		for _, bt := range t.Types {
			if !bt.Valid() {
				v.AddError(prefix+".types", fmt.Sprintf("unknown broadcast type %q", bt), bt)
			}
		}
	}
}

func validateEncode(v *validate.Validator, e EncodeConfig) {
	v.OneOf("encode.backend", e.Backend, []string{EncodeNone, EncodeRedis, EncodeIPC})
	if e.IPCTimeout < 0 {
		v.AddError("encode.ipcTimeout", "must not be negative", e.IPCTimeout)
	}
	switch e.Backend {
	case EncodeRedis:
		v.ListenAddr("encode.redis.addr", e.Redis.Addr)
		v.Range("encode.redis.db", e.Redis.DB, 0, 15)
	case EncodeIPC:
		if len(e.Worker.Command) == 0 {
			v.AddError("encode.worker.command", "encoder command is required for the ipc backend", e.Worker.Command)
		}
		v.AbsPath("encode.worker.tempDir", e.Worker.TempDir)
	}
}

func validateTelemetry(v *validate.Validator, t TelemetryConfig) {
	if !t.Enabled {
		return
	}
	v.OneOf("telemetry.exporter", t.Exporter, []string{"grpc", "http"})
	v.NotEmpty("telemetry.endpoint", t.Endpoint)
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.AddError("telemetry.samplingRate", "must be between 0.0 and 1.0", t.SamplingRate)
	}
}
