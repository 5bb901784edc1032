package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.BatchCapacity != 4 {
		t.Errorf("batch_capacity = %d, want 4", cfg.Worker.BatchCapacity)
	}
	if cfg.Worker.BatchWait() != time.Second {
		t.Errorf("batch wait = %v, want 1s", cfg.Worker.BatchWait())
	}
	if cfg.Worker.ErrorWait() != 15*time.Second {
		t.Errorf("error wait = %v, want 15s", cfg.Worker.ErrorWait())
	}
	if cfg.Worker.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", cfg.Worker.MaxAttempts)
	}
	if !cfg.Worker.OrderByPriority {
		t.Error("order_by_priority defaults off")
	}
	if cfg.Reaper.Interval() != 2*time.Minute {
		t.Errorf("reaper interval = %v, want 2m", cfg.Reaper.Interval())
	}
	if cfg.Reaper.LeaseTimeout() != 30*time.Minute {
		t.Errorf("lease timeout = %v, want 30m", cfg.Reaper.LeaseTimeout())
	}
	if cfg.Worker.ID == "" {
		t.Error("worker ID not defaulted")
	}
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("JOB_BATCH_WAIT_MILLIS", "250")
	t.Setenv("JOB_ERROR_WAIT_MILLIS", "5000")
	t.Setenv("JOB_MAX_ATTEMPTS", "5")
	t.Setenv("REAPER_INTERVAL_SECONDS", "60")
	t.Setenv("REAPER_LEASE_TIMEOUT_SECONDS", "900")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.BatchWait() != 250*time.Millisecond {
		t.Errorf("batch wait = %v, want 250ms", cfg.Worker.BatchWait())
	}
	if cfg.Worker.ErrorWait() != 5*time.Second {
		t.Errorf("error wait = %v, want 5s", cfg.Worker.ErrorWait())
	}
	if cfg.Worker.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Worker.MaxAttempts)
	}
	if cfg.Reaper.Interval() != time.Minute {
		t.Errorf("reaper interval = %v, want 1m", cfg.Reaper.Interval())
	}
	if cfg.Reaper.LeaseTimeout() != 15*time.Minute {
		t.Errorf("lease timeout = %v, want 15m", cfg.Reaper.LeaseTimeout())
	}
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("AC_WORKER_BATCH_CAPACITY", "8")
	t.Setenv("AC_DATABASE_URL", "postgres://worker@db/jobs")
	t.Setenv("AC_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.BatchCapacity != 8 {
		t.Errorf("batch_capacity = %d, want 8", cfg.Worker.BatchCapacity)
	}
	if cfg.Database.URL != "postgres://worker@db/jobs" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_TOMLFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artcraft.toml")
	body := `
[worker]
id = "gpu-box-1"
batch_capacity = 2
enabled_job_types = ["text_to_speech", "image_generation"]
routing_tags = ["gpu-a"]

[worker.model_files]
text_to_speech = "tts.safetensors"

[database]
url = "postgres://file@db/jobs"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Env overlays the file.
	t.Setenv("AC_WORKER_BATCH_CAPACITY", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.ID != "gpu-box-1" {
		t.Errorf("worker id = %q, want gpu-box-1", cfg.Worker.ID)
	}
	if cfg.Worker.BatchCapacity != 6 {
		t.Errorf("batch_capacity = %d, want 6 (env wins over file)", cfg.Worker.BatchCapacity)
	}
	if cfg.Database.URL != "postgres://file@db/jobs" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if len(cfg.Worker.EnabledJobTypes) != 2 {
		t.Errorf("enabled job types = %v", cfg.Worker.EnabledJobTypes)
	}
	if cfg.Worker.RoutingTags[0] != "gpu-a" {
		t.Errorf("routing tags = %v", cfg.Worker.RoutingTags)
	}
	if cfg.Worker.ModelFiles["text_to_speech"] != "tts.safetensors" {
		t.Errorf("model files = %v", cfg.Worker.ModelFiles)
	}
}
