// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultListenAddr      = ":8888"
	DefaultHorizon         = 8 * 24 * time.Hour
	DefaultLockTimeout     = 10 * time.Second
	DefaultMinPassInterval = time.Second
	DefaultPrepLeadTime    = 15 * time.Second
	DefaultPrepTimeout     = 30 * time.Second
	DefaultIPCTimeout      = 5 * time.Second
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Path is the config file, empty when running on defaults and environment.
func (l *Loader) Path() string { return l.configPath }

// Load builds the configuration: defaults, then the file (strict), then the
// environment, then validation.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	switch {
	case cfg.Recording.RecordedDir == "":
		cfg.Recording.RecordedDir = filepath.Join(cfg.DataDir, "recorded")
	case !filepath.IsAbs(cfg.Recording.RecordedDir):
		cfg.Recording.RecordedDir = filepath.Join(cfg.DataDir, cfg.Recording.RecordedDir)
	}
	if cfg.Encode.Worker.TempDir == "" {
		cfg.Encode.Worker.TempDir = filepath.Join(cfg.DataDir, "encode-tmp")
	}
	if cfg.Encode.Worker.OutputDir == "" {
		cfg.Encode.Worker.OutputDir = cfg.Recording.RecordedDir
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir:  "data",
		LogLevel: "info",
		API: APIConfig{
			ListenAddr: DefaultListenAddr,
			RateLimit:  600,
		},
		Scheduler: SchedulerConfig{
			Horizon:         DefaultHorizon,
			LockTimeout:     DefaultLockTimeout,
			MinPassInterval: DefaultMinPassInterval,
			RefreshInterval: time.Hour,
		},
		Recording: RecordingConfig{
			PrepLeadTime: DefaultPrepLeadTime,
			PrepTimeout:  DefaultPrepTimeout,
		},
		Encode: EncodeConfig{
			Backend:    EncodeNone,
			IPCTimeout: DefaultIPCTimeout,
		},
		Telemetry: TelemetryConfig{
			Environment:  "production",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// loadFile decodes path over cfg. Unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}
