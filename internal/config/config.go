package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Worker   WorkerConfig   `koanf:"worker"`
	Reaper   ReaperConfig   `koanf:"reaper"`
	Health   HealthConfig   `koanf:"health"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConnections int    `koanf:"max_connections"`
}

type WorkerConfig struct {
	ID              string `koanf:"id"`
	BatchCapacity   int    `koanf:"batch_capacity"`
	BatchWaitMillis int    `koanf:"batch_wait_millis"`
	ErrorWaitMillis int    `koanf:"error_wait_millis"`
	MaxAttempts     int    `koanf:"max_attempts"`
	OrderByPriority bool   `koanf:"order_by_priority"`

	// Capability declarations: which job types this process serves, which
	// routing tags it answers, and where it looks for model weight files.
	EnabledJobTypes  []string          `koanf:"enabled_job_types"`
	RoutingTags      []string          `koanf:"routing_tags"`
	ModelSearchPaths []string          `koanf:"model_search_paths"`
	ModelFiles       map[string]string `koanf:"model_files"`

	ScratchDir string `koanf:"scratch_dir"`

	KeepaliveIntervalSeconds int `koanf:"keepalive_interval_seconds"`
	KeepaliveMaxAgeSeconds   int `koanf:"keepalive_max_age_seconds"`
}

type ReaperConfig struct {
	IntervalSeconds     int `koanf:"interval_seconds"`
	LeaseTimeoutSeconds int `koanf:"lease_timeout_seconds"`
}

type HealthConfig struct {
	ProbeCommand    string   `koanf:"probe_command"`
	ProbeArgs       []string `koanf:"probe_args"`
	IntervalSeconds int      `koanf:"interval_seconds"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func (w WorkerConfig) BatchWait() time.Duration {
	return time.Duration(w.BatchWaitMillis) * time.Millisecond
}

func (w WorkerConfig) ErrorWait() time.Duration {
	return time.Duration(w.ErrorWaitMillis) * time.Millisecond
}

func (w WorkerConfig) KeepaliveInterval() time.Duration {
	return time.Duration(w.KeepaliveIntervalSeconds) * time.Second
}

func (w WorkerConfig) KeepaliveMaxAge() time.Duration {
	return time.Duration(w.KeepaliveMaxAgeSeconds) * time.Second
}

func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}

func (r ReaperConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

func (r ReaperConfig) LeaseTimeout() time.Duration {
	return time.Duration(r.LeaseTimeoutSeconds) * time.Second
}

// legacyEnvKeys are the flat env names the fleet has always been deployed
// with; they predate the prefixed scheme and win over it.
var legacyEnvKeys = map[string]string{
	"JOB_BATCH_WAIT_MILLIS":        "worker.batch_wait_millis",
	"JOB_ERROR_WAIT_MILLIS":        "worker.error_wait_millis",
	"JOB_MAX_ATTEMPTS":             "worker.max_attempts",
	"REAPER_INTERVAL_SECONDS":      "reaper.interval_seconds",
	"REAPER_LEASE_TIMEOUT_SECONDS": "reaper.lease_timeout_seconds",
}

// Load reads config from TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load TOML config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load env vars: AC_WORKER_BATCH_CAPACITY -> worker.batch_capacity
	// Only set env vars that have non-empty values to avoid overriding TOML config.
	if err := k.Load(env.ProviderWithValue("AC_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.Replace(
			strings.ToLower(strings.TrimPrefix(key, "AC_")),
			"_", ".", 1,
		)
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	// 4. Legacy flat env names used across the fleet's deployments
	for envName, key := range legacyEnvKeys {
		if v := os.Getenv(envName); v != "" {
			k.Set(key, v)
		}
	}
	if v := os.Getenv("AC_DATABASE_URL"); v != "" {
		k.Set("database.url", v)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Worker ID from hostname+pid if not configured; the ID only has to be
	// distinct per process for claimed_by lease accounting.
	if cfg.Worker.ID == "" {
		hostname, _ := os.Hostname()
		cfg.Worker.ID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	return &cfg, nil
}
