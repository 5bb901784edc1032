package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"database.max_connections": 10,

		"worker.batch_capacity":    4,
		"worker.batch_wait_millis": 1000,
		"worker.error_wait_millis": 15000,
		"worker.max_attempts":      3,
		"worker.order_by_priority": true,

		"worker.enabled_job_types":  []string{},
		"worker.routing_tags":       []string{},
		"worker.model_search_paths": []string{"/models"},
		"worker.scratch_dir":        "/tmp/artcraft",

		"worker.keepalive_interval_seconds": 10,
		"worker.keepalive_max_age_seconds":  90,

		"reaper.interval_seconds":      120,
		"reaper.lease_timeout_seconds": 1800,

		"health.probe_command":    "",
		"health.interval_seconds": 30,

		"server.host": "0.0.0.0",
		"server.port": 9720,

		"logging.level":  "info",
		"logging.format": "pretty",
	}

	for key, val := range defaults {
		k.Set(key, val)
	}
	return nil
}
