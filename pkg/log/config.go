package log

import "fmt"

// Config captures the process-level logging settings, typically sourced from
// ALLOCD_LOG_LEVEL and ALLOCD_LOG_FORMAT.
type Config struct {
	Level  string
	Format string
}

// ApplyConfig builds a Logger from the config. Unknown levels or formats are
// rejected so a typo in an env var is visible at startup.
func ApplyConfig(cfg *Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return NewLogger(WithLevel(level), WithFormatter(formatter)), nil
}
