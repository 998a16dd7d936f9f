package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks the config for:
//   - Required fields
//   - Known logging level and format
//   - Non-negative engine limits
//   - Duplicate or empty client category entries
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format must be text or json, got %q", cfg.Logging.Format))
	}

	e := cfg.Engine
	if e.BatchWorkers < 1 {
		errs = append(errs, fmt.Sprintf("engine.batch_workers must be at least 1, got %d", e.BatchWorkers))
	}
	if e.QueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("engine.queue_depth must be at least 1, got %d", e.QueueDepth))
	}
	if e.MaxRules < 0 {
		errs = append(errs, fmt.Sprintf("engine.max_rules must not be negative, got %d", e.MaxRules))
	}
	if e.BatchTimeoutMs < 0 {
		errs = append(errs, fmt.Sprintf("engine.batch_timeout_ms must not be negative, got %d", e.BatchTimeoutMs))
	}

	seen := make(map[int]int) // id → index
	for i, cc := range cfg.ClientCategories {
		if prev, ok := seen[cc.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate client category id %d (client_categories[%d] and [%d])", cc.ID, prev, i))
		} else {
			seen[cc.ID] = i
		}
		if strings.TrimSpace(string(cc.Category)) == "" {
			errs = append(errs, fmt.Sprintf("client_categories[%d]: category is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", s)
}
