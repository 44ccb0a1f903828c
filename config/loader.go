// Package config loads the platform configuration: defaults, overlaid by an
// optional YAML file, overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roundtable-ai/roundtable/gateway"
	"github.com/roundtable-ai/roundtable/orchestrator"
	"github.com/roundtable-ai/roundtable/store"
	"github.com/roundtable-ai/roundtable/types"
)

// envPrefix namespaces all environment overrides.
const envPrefix = "ROUNDTABLE_"

// ServerConfig carries the HTTP surface settings.
type ServerConfig struct {
	// Addr is the API listen address.
	Addr string `yaml:"addr"`

	// MetricsAddr is the Prometheus listen address. Empty disables the
	// metrics server.
	MetricsAddr string `yaml:"metrics_addr"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// APIKey guards mutating endpoints when non-empty.
	APIKey string `yaml:"api_key"`

	// RateLimit is requests per second per server; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LogConfig selects the zap preset.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// Build constructs the zap logger for this configuration.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", l.Level, err)
	}

	var cfg zap.Config
	if l.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	return cfg.Build()
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  store.BackendType    `yaml:"backend"`
	Redis    store.RedisConfig    `yaml:"redis"`
	Database store.DatabaseConfig `yaml:"database"`
}

// GuidanceConfig is the YAML shape of a per-personality guidance entry.
type GuidanceConfig struct {
	Text        string   `yaml:"text"`
	FileTypes   []string `yaml:"file_types"`
	Synthesizer bool     `yaml:"synthesizer"`
}

// Config is the full platform configuration.
type Config struct {
	Server        ServerConfig              `yaml:"server"`
	Log           LogConfig                 `yaml:"log"`
	Store         StoreConfig               `yaml:"store"`
	Orchestrator  orchestrator.Config       `yaml:"orchestrator"`
	Providers     []gateway.ProviderConfig  `yaml:"providers"`
	Personalities []types.Personality       `yaml:"personalities"`
	Observers     []string                  `yaml:"observers"`
	Guidance      map[string]GuidanceConfig `yaml:"guidance"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:  store.BackendMemory,
			Redis:    store.DefaultRedisConfig(),
			Database: store.DefaultDatabaseConfig(),
		},
		Orchestrator: orchestrator.DefaultConfig(),
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// non-empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. Provider API keys come from
// ROUNDTABLE_<PROVIDER>_API_KEY so secrets stay out of config files.
func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(envPrefix + "METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv(envPrefix + "API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(envPrefix + "STORE_BACKEND"); v != "" {
		c.Store.Backend = store.BackendType(v)
	}
	if v := os.Getenv(envPrefix + "REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv(envPrefix + "REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv(envPrefix + "DB_DSN"); v != "" {
		c.Store.Database.DSN = v
	}
	for i := range c.Providers {
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(c.Providers[i].Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			c.Providers[i].APIKey = v
		}
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendRedis, store.BackendSQL:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	providers := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s has no base_url", p.Name)
		}
		if _, dup := providers[p.Name]; dup {
			return fmt.Errorf("provider %s configured twice", p.Name)
		}
		providers[p.Name] = struct{}{}
	}

	known := make(map[string]struct{}, len(c.Personalities))
	for _, p := range c.Personalities {
		if !p.Valid() {
			return fmt.Errorf("personality %q is incomplete", p.NameID)
		}
		if _, ok := providers[p.Provider]; !ok {
			return fmt.Errorf("personality %s references unknown provider %q", p.NameID, p.Provider)
		}
		if _, dup := known[p.NameID]; dup {
			return fmt.Errorf("personality %s configured twice", p.NameID)
		}
		known[p.NameID] = struct{}{}
	}

	for _, id := range c.Observers {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("observer %q is not a configured personality", id)
		}
	}
	for id := range c.Guidance {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("guidance entry %q is not a configured personality", id)
		}
	}

	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	return nil
}

// GuidanceTable converts the YAML guidance entries into the composer's form.
func (c *Config) GuidanceTable() map[string]orchestrator.Guidance {
	if len(c.Guidance) == 0 {
		return nil
	}
	table := make(map[string]orchestrator.Guidance, len(c.Guidance))
	for id, g := range c.Guidance {
		table[id] = orchestrator.Guidance{
			Text:        g.Text,
			FileTypes:   g.FileTypes,
			Synthesizer: g.Synthesizer,
		}
	}
	return table
}
