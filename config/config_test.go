package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/artpar/resrun/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
definitions:
  paths: ["./resources/**/*.yaml", "./app"]
  watch: true

runtime:
  name: acme
  version: 2.1.0

cache:
  driver: sqlite
  dsn: ":memory:"

remote:
  timeout: 3s
  headers:
    X-Token: secret
  request_ids: sequential

server:
  host: "127.0.0.1"
  port: 9090
  path: /rpc

logging:
  level: debug
  format: console

metrics:
  enabled: true

values:
  stage: prod
  region:
    name: eu
`

	cfg := writeAndLoad(t, content)

	if !reflect.DeepEqual(cfg.Definitions.Paths, []string{"./resources/**/*.yaml", "./app"}) {
		t.Errorf("Definitions.Paths = %v", cfg.Definitions.Paths)
	}
	if !cfg.Definitions.Watch {
		t.Error("Definitions.Watch = false, want true")
	}
	if cfg.Runtime.Name != "acme" || cfg.Runtime.Version != "2.1.0" {
		t.Errorf("Runtime = %s@%s, want acme@2.1.0", cfg.Runtime.Name, cfg.Runtime.Version)
	}
	if cfg.Cache.DSN != ":memory:" {
		t.Errorf("Cache.DSN = %s, want :memory:", cfg.Cache.DSN)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("Remote.Timeout = %v, want 3s", cfg.Remote.Timeout)
	}
	if cfg.Remote.Headers["X-Token"] != "secret" {
		t.Errorf("Remote.Headers = %v", cfg.Remote.Headers)
	}
	if cfg.Remote.RequestIDs != "sequential" {
		t.Errorf("Remote.RequestIDs = %s, want sequential", cfg.Remote.RequestIDs)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Server.Addr() = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Server.Path != "/rpc" {
		t.Errorf("Server.Path = %s, want /rpc", cfg.Server.Path)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %s, want console", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /metrics", cfg.Metrics)
	}
	if cfg.Values["stage"] != "prod" {
		t.Errorf("Values[stage] = %v, want prod", cfg.Values["stage"])
	}
	region, ok := cfg.Values["region"].(map[string]any)
	if !ok || region["name"] != "eu" {
		t.Errorf("Values[region] = %v, want map with name eu", cfg.Values["region"])
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Runtime.Name", cfg.Runtime.Name, "resrun"},
		{"Cache.Driver", cfg.Cache.Driver, config.CacheSQLite},
		{"Cache.DSN", cfg.Cache.DSN, ".resrun/cache.db"},
		{"Remote.Timeout", cfg.Remote.Timeout, 10 * time.Second},
		{"Remote.RequestIDs", cfg.Remote.RequestIDs, "uuid"},
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 8080},
		{"Server.Path", cfg.Server.Path, "/"},
		{"Server.ReadTimeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"Logging.Level", cfg.Logging.Level, "info"},
		{"Logging.Format", cfg.Logging.Format, ""},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("default %s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if cfg.Values == nil {
		t.Error("default Values is nil")
	}
}

func TestLoad_MemoryCacheHasNoDSN(t *testing.T) {
	cfg := writeAndLoad(t, "cache:\n  driver: memory\n")
	if cfg.Cache.DSN != "" {
		t.Errorf("Cache.DSN = %s, want empty for the memory driver", cfg.Cache.DSN)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_STAGE", "staging")

	cfg := writeAndLoad(t, `
values:
  stage: "${TEST_STAGE}"
`)

	if cfg.Values["stage"] != "staging" {
		t.Errorf("Values[stage] = %v, want staging", cfg.Values["stage"])
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RESRUN_DEFINITIONS_PATHS", "a.yaml, lib/**/*.yaml,")
	t.Setenv("RESRUN_DEFINITIONS_WATCH", "yes")
	t.Setenv("RESRUN_RUNTIME_VERSION", "9.9.9")
	t.Setenv("RESRUN_CACHE_DRIVER", "none")
	t.Setenv("RESRUN_REMOTE_TIMEOUT", "250ms")
	t.Setenv("RESRUN_SERVER_PORT", "7070")
	t.Setenv("RESRUN_LOG_LEVEL", "warn")
	t.Setenv("RESRUN_METRICS_ENABLED", "1")

	cfg := writeAndLoad(t, `
runtime:
  version: 1.0.0
server:
  port: 9090
`)

	if !reflect.DeepEqual(cfg.Definitions.Paths, []string{"a.yaml", "lib/**/*.yaml"}) {
		t.Errorf("Definitions.Paths = %v", cfg.Definitions.Paths)
	}
	if !cfg.Definitions.Watch {
		t.Error("Definitions.Watch = false, want true")
	}
	if cfg.Runtime.Version != "9.9.9" {
		t.Errorf("Runtime.Version = %s, want 9.9.9", cfg.Runtime.Version)
	}
	if cfg.Cache.Driver != config.CacheNone {
		t.Errorf("Cache.Driver = %s, want none", cfg.Cache.Driver)
	}
	if cfg.Remote.Timeout != 250*time.Millisecond {
		t.Errorf("Remote.Timeout = %v, want 250ms", cfg.Remote.Timeout)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad cache driver", "cache:\n  driver: redis\n", "cache.driver"},
		{"bad request ids", "remote:\n  request_ids: snowflake\n", "remote.request_ids"},
		{"negative timeout", "remote:\n  timeout: -1s\n", "remote.timeout"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
		{"relative server path", "server:\n  path: rpc\n", "server.path"},
		{"bad log level", "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"relative metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
		{"metrics shadow rpc", "server:\n  path: /m\nmetrics:\n  enabled: true\n  path: /m\n", "must differ"},
		{"empty definition path", "definitions:\n  paths: [\"\"]\n", "definitions.paths[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
	if _, err := config.Parse([]byte("server: [")); err == nil {
		t.Error("Parse of invalid YAML should fail")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESRUN_SERVER_HOST", "localhost")
	t.Setenv("RESRUN_CACHE_DSN", "/tmp/cache.db")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %s, want localhost", cfg.Server.Host)
	}
	if cfg.Cache.DSN != "/tmp/cache.db" {
		t.Errorf("Cache.DSN = %s, want /tmp/cache.db", cfg.Cache.DSN)
	}
	if !config.HasEnvConfig() {
		t.Error("HasEnvConfig = false with RESRUN_* set")
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resrun.yaml")
	os.WriteFile(path, []byte("runtime:\n  name: from-file\n"), 0644)

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Runtime.Name != "from-file" {
		t.Errorf("Runtime.Name = %s, want from-file", cfg.Runtime.Name)
	}

	t.Setenv("RESRUN_RUNTIME_NAME", "from-env")
	cfg, err = config.LoadWithFallback(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Runtime.Name != "from-env" {
		t.Errorf("Runtime.Name = %s, want from-env", cfg.Runtime.Name)
	}
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}
