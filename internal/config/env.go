package config

import (
	"os"
	"strconv"
)

// FromEnv overlays ALLOCD_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("ALLOCD_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("ALLOCD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ALLOCD_MONITOR_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MonitorIntervalMs = n
		}
	}
	if v := os.Getenv("ALLOCD_MONITOR_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MonitorDisabled = b
		}
	}
	if v := os.Getenv("ALLOCD_MONITOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MonitorWorkers = n
		}
	}
	if v := os.Getenv("ALLOCD_AUDIT_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AuditMaxEntries = n
		}
	}
}
