package config

import (
	"time"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Config is the top-level YAML structure.
type Config struct {
	Version          string               `yaml:"version"`
	Server           ServerConf           `yaml:"server"`
	Logging          LoggingConf          `yaml:"logging"`
	Engine           EngineConf           `yaml:"engine"`
	Audit            AuditConf            `yaml:"audit"`
	Rules            RulesConf            `yaml:"rules"`
	ClientCategories []ClientCategoryConf `yaml:"client_categories"`
}

// ServerConf configures the HTTP listener.
type ServerConf struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

func (s ServerConf) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

func (s ServerConf) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// LoggingConf selects the slog handler.
type LoggingConf struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	BatchWorkers   int `yaml:"batch_workers"`
	QueueDepth     int `yaml:"queue_depth"`
	MaxRules       int `yaml:"max_rules"`
	BatchTimeoutMs int `yaml:"batch_timeout_ms"`
}

// AuditConf configures the optional JSON-lines audit file.
type AuditConf struct {
	File string `yaml:"file"`
}

// RulesConf points at an exported rule set loaded at startup.
type RulesConf struct {
	SeedFile string `yaml:"seed_file"`
}

// ClientCategoryConf maps a numeric client type id to a category.
type ClientCategoryConf struct {
	ID       int                 `yaml:"id"`
	Category rule.ClientCategory `yaml:"category"`
}

// CategoryTable returns the client category entries as a map.
func (c *Config) CategoryTable() map[int]rule.ClientCategory {
	out := make(map[int]rule.ClientCategory, len(c.ClientCategories))
	for _, cc := range c.ClientCategories {
		out[cc.ID] = cc.Category
	}
	return out
}
