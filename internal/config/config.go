// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration from defaults, a YAML file
// and PVRD_* environment variables, in increasing order of precedence.
package config

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/ManuGH/pvrd/internal/epg"
	"github.com/ManuGH/pvrd/internal/tuner"
)

// Encode backends.
const (
	EncodeNone  = "none"
	EncodeRedis = "redis"
	EncodeIPC   = "ipc"
)

// Config is the complete daemon configuration.
type Config struct {
	Version string `yaml:"-"`

	// DataDir holds the database and the rule file.
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	API       APIConfig       `yaml:"api"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Recording RecordingConfig `yaml:"recording"`
	Tuners    []TunerConfig   `yaml:"tuners"`
	Encode    EncodeConfig    `yaml:"encode"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

type SchedulerConfig struct {
	Horizon         time.Duration `yaml:"horizon"`
	LockTimeout     time.Duration `yaml:"lockTimeout"`
	MinPassInterval time.Duration `yaml:"minPassInterval"`
	// RefreshInterval triggers periodic passes; 0 disables them.
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

type RecordingConfig struct {
	PrepLeadTime   time.Duration `yaml:"prepLeadTime"`
	PrepTimeout    time.Duration `yaml:"prepTimeout"`
	RecordedDir    string        `yaml:"recordedDir"`
	FileNameFormat string        `yaml:"fileNameFormat"`
	// TimeZone names the zone used for rule time windows and file names.
	TimeZone string `yaml:"timeZone"`
}

// TunerConfig declares one tuner. Its position in the list is its index.
type TunerConfig struct {
	Name  string              `yaml:"name"`
	Types []epg.BroadcastType `yaml:"types"`
	// Command is run through the shell to obtain the transport stream.
	Command string `yaml:"command"`
}

type EncodeConfig struct {
	Backend    string        `yaml:"backend"`
	Redis      RedisConfig   `yaml:"redis"`
	Worker     WorkerConfig  `yaml:"worker"`
	IPCTimeout time.Duration `yaml:"ipcTimeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type WorkerConfig struct {
	// Command is the encoder argv with %INPUT%, %OUTPUT% and %MODE% tokens.
	Command   []string `yaml:"command"`
	OutputDir string   `yaml:"outputDir"`
	TempDir   string   `yaml:"tempDir"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Environment  string  `yaml:"environment"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// DBPath is the sqlite database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "pvrd.db")
}

// Location resolves Recording.TimeZone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Recording.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Recording.TimeZone)
}

// TunerDevices converts the tuner list to inventory devices.
func (c *Config) TunerDevices() []tuner.Device {
	out := make([]tuner.Device, len(c.Tuners))
	for i, t := range c.Tuners {
		out[i] = tuner.Device{
			Index:   i,
			Name:    t.Name,
			Types:   slices.Clone(t.Types),
			Command: t.Command,
		}
	}
	return out
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Tuners = slices.Clone(c.Tuners)
	for i := range c.Tuners {
		c.Tuners[i].Types = slices.Clone(c.Tuners[i].Types)
	}
	c.Encode.Worker.Command = slices.Clone(c.Encode.Worker.Command)
	return c
}
