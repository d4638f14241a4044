// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESRUN_"

// Cache drivers.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config is the root configuration structure.
type Config struct {
	Definitions DefinitionsConfig `yaml:"definitions"`
	Runtime     RuntimeConfig     `yaml:"runtime"`
	Cache       CacheConfig       `yaml:"cache"`
	Remote      RemoteConfig      `yaml:"remote"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// Values is exposed to expressions as "config".
	Values map[string]any `yaml:"values"`
}

// DefinitionsConfig configures where definitions are loaded from.
type DefinitionsConfig struct {
	Paths []string `yaml:"paths"` // Files, directories or doublestar globs
	Watch bool     `yaml:"watch"` // Invalidate cached definitions on change
}

// RuntimeConfig identifies the runtime to "@runtime" requirements.
type RuntimeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"` // Defaults to the build version
}

// CacheConfig configures the published-definition cache.
type CacheConfig struct {
	Driver string `yaml:"driver"` // "sqlite", "memory" or "none"
	DSN    string `yaml:"dsn"`
}

// RemoteConfig configures JSON-RPC imports.
type RemoteConfig struct {
	Timeout    time.Duration     `yaml:"timeout"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	RequestIDs string            `yaml:"request_ids"` // "uuid" or "sequential"
}

// ServerConfig configures the JSON-RPC server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Path         string        `yaml:"path"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"; empty detects a terminal
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML bytes. Environment variables in the
// document are expanded and RESRUN_* overrides applied.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	RESRUN_DEFINITIONS_PATHS  - Comma separated definition paths or globs
//	RESRUN_DEFINITIONS_WATCH  - Watch definition files for changes
//	RESRUN_RUNTIME_NAME       - Runtime name (default: resrun)
//	RESRUN_RUNTIME_VERSION    - Runtime version
//	RESRUN_CACHE_DRIVER       - sqlite, memory or none (default: sqlite)
//	RESRUN_CACHE_DSN          - Cache database path (default: .resrun/cache.db)
//	RESRUN_REMOTE_TIMEOUT     - Remote call timeout (default: 10s)
//	RESRUN_REMOTE_REQUEST_IDS - uuid or sequential (default: uuid)
//	RESRUN_SERVER_HOST        - Server host (default: 0.0.0.0)
//	RESRUN_SERVER_PORT        - Server port (default: 8080)
//	RESRUN_SERVER_PATH        - JSON-RPC endpoint path (default: /)
//	RESRUN_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	RESRUN_LOG_FORMAT         - Log format: json or console
//	RESRUN_METRICS_ENABLED    - Enable /metrics endpoint
//	RESRUN_METRICS_PATH       - Metrics path (default: /metrics)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to environment
// variables otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// HasEnvConfig returns true if any RESRUN_* environment variable is set.
func HasEnvConfig() bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, EnvPrefix) {
			return true
		}
	}
	return false
}

// applyEnvOverrides applies RESRUN_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Definitions
	if v := getenv("DEFINITIONS_PATHS"); v != "" {
		cfg.Definitions.Paths = splitList(v)
	}
	if v := getenv("DEFINITIONS_WATCH"); v != "" {
		cfg.Definitions.Watch = parseBool(v)
	}

	// Runtime
	if v := getenv("RUNTIME_NAME"); v != "" {
		cfg.Runtime.Name = v
	}
	if v := getenv("RUNTIME_VERSION"); v != "" {
		cfg.Runtime.Version = v
	}

	// Cache
	if v := getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := getenv("CACHE_DSN"); v != "" {
		cfg.Cache.DSN = v
	}

	// Remote
	if v := getenv("REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}
	if v := getenv("REMOTE_REQUEST_IDS"); v != "" {
		cfg.Remote.RequestIDs = v
	}

	// Server
	if v := getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := getenv("SERVER_PATH"); v != "" {
		cfg.Server.Path = v
	}

	// Logging
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics
	if v := getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := getenv("METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if cfg.Runtime.Name == "" {
		cfg.Runtime.Name = "resrun"
	}

	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = CacheSQLite
	}
	if cfg.Cache.Driver == CacheSQLite && cfg.Cache.DSN == "" {
		cfg.Cache.DSN = ".resrun/cache.db"
	}

	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	if cfg.Remote.RequestIDs == "" {
		cfg.Remote.RequestIDs = "uuid"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Values == nil {
		cfg.Values = map[string]any{}
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{CacheSQLite: true, CacheMemory: true, CacheNone: true}
	if !validDrivers[cfg.Cache.Driver] {
		return fmt.Errorf("cache.driver must be one of: sqlite, memory, none, got %q", cfg.Cache.Driver)
	}

	validIDs := map[string]bool{"uuid": true, "sequential": true}
	if !validIDs[cfg.Remote.RequestIDs] {
		return fmt.Errorf("remote.request_ids must be 'uuid' or 'sequential', got %q", cfg.Remote.RequestIDs)
	}
	if cfg.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/', got %q", cfg.Server.Path)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path == cfg.Server.Path {
		return fmt.Errorf("metrics.path and server.path must differ")
	}

	for i, p := range cfg.Definitions.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("definitions.paths[%d] is empty", i)
		}
	}

	return nil
}
