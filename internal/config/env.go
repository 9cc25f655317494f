// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/pvrd/internal/log"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "PVRD_"

func envLogger() zerolog.Logger {
	return log.WithComponent("config")
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token")
}

// lookup returns the raw value of key when it is set and non-empty.
func lookup(logger zerolog.Logger, key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return "", false
	}
	return v, true
}

func logEnv(logger zerolog.Logger, key, value string) {
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", value)
	}
	ev.Msg("using environment variable")
}

func logInvalid(logger zerolog.Logger, key, value, kind string) {
	logger.Warn().
		Str("key", key).
		Str("value", value).
		Msgf("invalid %s in environment variable, using default", kind)
}

// ParseString reads key from the environment or returns defaultValue. The
// chosen source is logged; secrets are not.
func ParseString(key, defaultValue string) string {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return defaultValue
	}
	logEnv(logger, key, v)
	return v
}

// ParseInt reads an integer, falling back to defaultValue on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logInvalid(logger, key, v, "integer")
		return defaultValue
	}
	logEnv(logger, key, v)
	return i
}

// ParseDuration reads a Go duration such as "90s".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logInvalid(logger, key, v, "duration")
		return defaultValue
	}
	logEnv(logger, key, v)
	return d
}

// ParseBool accepts true/false, 1/0 and yes/no, case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		logEnv(logger, key, v)
		return true
	case "false", "0", "no":
		logEnv(logger, key, v)
		return false
	}
	logInvalid(logger, key, v, "boolean")
	return defaultValue
}

func ParseFloat(key string, defaultValue float64) float64 {
	logger := envLogger()
	v, ok := lookup(logger, key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logInvalid(logger, key, v, "float")
		return defaultValue
	}
	logEnv(logger, key, v)
	return f
}

// mergeEnv applies PVRD_* overrides on top of cfg.
func mergeEnv(cfg *Config) {
	cfg.DataDir = ParseString(EnvPrefix+"DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)

	cfg.API.ListenAddr = ParseString(EnvPrefix+"LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimit = ParseInt(EnvPrefix+"RATE_LIMIT", cfg.API.RateLimit)

	cfg.Scheduler.Horizon = ParseDuration(EnvPrefix+"SCHEDULER_HORIZON", cfg.Scheduler.Horizon)
	cfg.Scheduler.LockTimeout = ParseDuration(EnvPrefix+"LOCK_TIMEOUT", cfg.Scheduler.LockTimeout)
	cfg.Scheduler.MinPassInterval = ParseDuration(EnvPrefix+"MIN_PASS_INTERVAL", cfg.Scheduler.MinPassInterval)
	cfg.Scheduler.RefreshInterval = ParseDuration(EnvPrefix+"REFRESH_INTERVAL", cfg.Scheduler.RefreshInterval)

	cfg.Recording.PrepLeadTime = ParseDuration(EnvPrefix+"PREP_LEAD_TIME", cfg.Recording.PrepLeadTime)
	cfg.Recording.PrepTimeout = ParseDuration(EnvPrefix+"PREP_TIMEOUT", cfg.Recording.PrepTimeout)
	cfg.Recording.RecordedDir = ParseString(EnvPrefix+"RECORDED_DIR", cfg.Recording.RecordedDir)
	cfg.Recording.FileNameFormat = ParseString(EnvPrefix+"FILE_NAME_FORMAT", cfg.Recording.FileNameFormat)
	cfg.Recording.TimeZone = ParseString(EnvPrefix+"TIMEZONE", cfg.Recording.TimeZone)

	cfg.Encode.Backend = ParseString(EnvPrefix+"ENCODE_BACKEND", cfg.Encode.Backend)
	cfg.Encode.IPCTimeout = ParseDuration(EnvPrefix+"IPC_TIMEOUT", cfg.Encode.IPCTimeout)
	cfg.Encode.Redis.Addr = ParseString(EnvPrefix+"REDIS_ADDR", cfg.Encode.Redis.Addr)
	cfg.Encode.Redis.Password = ParseString(EnvPrefix+"REDIS_PASSWORD", cfg.Encode.Redis.Password)
	cfg.Encode.Redis.DB = ParseInt(EnvPrefix+"REDIS_DB", cfg.Encode.Redis.DB)
	cfg.Encode.Redis.Key = ParseString(EnvPrefix+"REDIS_KEY", cfg.Encode.Redis.Key)

	cfg.Telemetry.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvPrefix+"OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvPrefix+"OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvPrefix+"TRACE_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
