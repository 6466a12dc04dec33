package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "browsegate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host default = %q", cfg.Server.Host)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "browsegate.db" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("upstream timeout default = %v", cfg.Upstream.Timeout)
	}
	if cfg.Usage.BatchSize != 100 || cfg.Usage.FlushInterval != 5*time.Second {
		t.Errorf("usage defaults = %+v", cfg.Usage)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if !cfg.Proxy.SimpleModeEnabled() {
		t.Error("simple mode must default to enabled")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 8081
  read_timeout: 10s
proxy:
  disable_simple_mode: true
upstream:
  timeout: 45s
usage:
  batch_size: 50
  flush_interval: 2s
database:
  dsn: /var/lib/browsegate/data.db
logging:
  level: debug
  format: console
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Proxy.SimpleModeEnabled() {
		t.Error("simple mode must be disabled")
	}
	if cfg.Upstream.Timeout != 45*time.Second {
		t.Errorf("upstream timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Usage.BatchSize != 50 {
		t.Errorf("batch size = %d", cfg.Usage.BatchSize)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics must be enabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
logging:
  level: info
`)

	t.Setenv("BROWSEGATE_SERVER_PORT", "9999")
	t.Setenv("BROWSEGATE_LOG_LEVEL", "debug")
	t.Setenv("BROWSEGATE_SIMPLE_MODE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("env override lost: port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env override lost: level = %q", cfg.Logging.Level)
	}
	if cfg.Proxy.SimpleModeEnabled() {
		t.Error("BROWSEGATE_SIMPLE_MODE=false must disable simple mode")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BROWSEGATE_DATABASE_DSN", "/tmp/env.db")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.DSN != "/tmp/env.db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port default = %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad driver", "database:\n  driver: postgres\n"},
		{"bad port", "server:\n  port: 70000\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
