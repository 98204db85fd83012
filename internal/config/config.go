package config

import (
	"encoding/json"
	"os"
)

// Config is the top-level static process configuration loaded from file/env.
// Live queue tuning (lease duration, batch size, weights) lives in the
// settings store, not here.
type Config struct {
	HTTPAddr          string `json:"httpAddr"`
	DataDir           string `json:"dataDir"`
	MonitorIntervalMs int    `json:"monitorIntervalMs"`
	MonitorDisabled   bool   `json:"monitorDisabled"`
	MonitorWorkers    int    `json:"monitorWorkers"`
	AuditMaxEntries   int    `json:"auditMaxEntries"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		MonitorIntervalMs: 5000,
		MonitorWorkers:    4,
		AuditMaxEntries:   100_000,
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
