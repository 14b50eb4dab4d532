// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads worker process configuration from a YAML file,
// applies environment variable overrides, and can watch the file for
// changes so a running process picks up edits without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects and configures a Store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "document", "postgres".
	Backend string `yaml:"backend"`

	// Path is the SQLite file path or the document store's JSON file path.
	Path string `yaml:"path,omitempty"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// QueueConfig configures the durable task queue.
type QueueConfig struct {
	// ID segments the task table between independent worker pools sharing
	// one Store.
	ID string `yaml:"id"`

	// PollBackoffMin sets the queue's idle-poll interval. PollBackoffMax is
	// parsed and defaulted but not read by the worker.
	PollBackoffMin time.Duration `yaml:"poll_backoff_min,omitempty"`
	PollBackoffMax time.Duration `yaml:"poll_backoff_max,omitempty"`
}

// ReaperConfig configures the stale-task sweep loop.
type ReaperConfig struct {
	Enabled       bool          `yaml:"enabled"`
	LeaseTimeout  time.Duration `yaml:"lease_timeout,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
}

// WorkerConfig configures the worker-pool dispatch loop.
type WorkerConfig struct {
	// Only restricts dispatch to workflow/activity names matching these
	// doublestar glob patterns (e.g. "billing.*"). Empty means accept
	// everything registered.
	Only []string `yaml:"only,omitempty"`

	MaxRetries int           `yaml:"max_retries,omitempty"`
	BaseDelay  time.Duration `yaml:"base_delay,omitempty"`
	Backoff    float64       `yaml:"backoff,omitempty"`
}

// LogConfig configures structured logging, named and shaped the way the
// rest of the module's internal/log package expects.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "json" or "text"
	AddSource bool   `yaml:"add_source"`
}

// BlobConfig configures optional S3 offload for oversized payloads.
type BlobConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Threshold int    `yaml:"threshold_bytes,omitempty"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name,omitempty"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	SampleRatio    float64 `yaml:"sample_ratio,omitempty"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// Config is the complete worker process configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Queue   QueueConfig   `yaml:"queue"`
	Reaper  ReaperConfig  `yaml:"reaper"`
	Worker  WorkerConfig  `yaml:"worker"`
	Blob    BlobConfig    `yaml:"blob,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// Default returns a configuration with sensible defaults for local,
// single-process use with the in-memory store.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Backend: "memory",
		},
		Queue: QueueConfig{
			ID:             "default",
			PollBackoffMin: 50 * time.Millisecond,
			PollBackoffMax: 5 * time.Second,
		},
		Reaper: ReaperConfig{
			Enabled:       true,
			LeaseTimeout:  5 * time.Minute,
			SweepInterval: 60 * time.Second,
		},
		Worker: WorkerConfig{
			MaxRetries: 10,
			BaseDelay:  time.Second,
			Backoff:    2.0,
		},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads configPath (if non-empty and present) over a Default()
// config, then applies environment variable overrides. Environment
// variables always win over file values.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cfg.loadFromFile(configPath); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", configPath, err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("DUREX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DUREX_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("DUREX_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("DUREX_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DUREX_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("DUREX_QUEUE_ID"); v != "" {
		c.Queue.ID = v
	}
	if v := os.Getenv("DUREX_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("DUREX_TRACING_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Enabled = true
		c.Tracing.OTLPEndpoint = v
	}
}

// Validate rejects configurations that would fail later in a more
// confusing way (an unknown backend name, a zero-length queue ID).
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "document", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite backend")
	}
	if c.Store.Backend == "document" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the document backend")
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the postgres backend")
	}
	if c.Queue.ID == "" {
		return fmt.Errorf("queue.id must not be empty")
	}
	return nil
}

// Watch reloads the file at path whenever it changes and invokes onChange
// with the newly parsed configuration. It runs until stop is closed.
// Parse errors are passed to onChange as its error argument and do
// not stop the watch loop, so a transient editor save (partial write)
// doesn't kill hot reload.
func Watch(path string, stop <-chan struct{}, onChange func(*Config, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: starting file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("config: watching %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				onChange(cfg, err)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
