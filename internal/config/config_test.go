package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDENTITY_ENDPOINT", "https://identity.example.com/whoami")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("default port %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("default driver %q", cfg.Storage.Driver)
	}
	if cfg.IdentityTimeout() != 10*time.Second {
		t.Fatalf("default identity timeout %s", cfg.IdentityTimeout())
	}
	if cfg.SweepMaxIdle() != time.Hour {
		t.Fatalf("default sweep max idle %s", cfg.SweepMaxIdle())
	}
	if cfg.Boot.SweepSchedule != "@every 10m" {
		t.Fatalf("default sweep schedule %q", cfg.Boot.SweepSchedule)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  rate_limit_per_second: 2
identity:
  endpoint: https://identity.example.com/whoami
  timeout_seconds: 3
storage:
  driver: redis
  redis_addr: localhost:6379
  redis_ttl_seconds: 600
boot:
  default_category: professional
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port %d", cfg.Server.Port)
	}
	if cfg.Identity.Endpoint != "https://identity.example.com/whoami" {
		t.Fatalf("endpoint %q", cfg.Identity.Endpoint)
	}
	if cfg.IdentityTimeout() != 3*time.Second {
		t.Fatalf("timeout %s", cfg.IdentityTimeout())
	}
	if cfg.Storage.Driver != "redis" || cfg.RedisTTL() != 10*time.Minute {
		t.Fatalf("storage %+v", cfg.Storage)
	}
	if cfg.Boot.DefaultCategory != "professional" {
		t.Fatalf("default category %q", cfg.Boot.DefaultCategory)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level %q", cfg.Logging.Level)
	}
	// Unset file values keep their defaults.
	if cfg.Server.ReadTimeoutSecs != 15 {
		t.Fatalf("read timeout %d", cfg.Server.ReadTimeoutSecs)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
identity:
  endpoint: https://file.example.com/whoami
`)

	t.Setenv("GATEWAY_PORT", "7070")
	t.Setenv("IDENTITY_ENDPOINT", "https://env.example.com/whoami")
	t.Setenv("BOOT_DEFAULT_CATEGORY", "labour")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port %d", cfg.Server.Port)
	}
	if cfg.Identity.Endpoint != "https://env.example.com/whoami" {
		t.Fatalf("endpoint %q", cfg.Identity.Endpoint)
	}
	if cfg.Boot.DefaultCategory != "labour" {
		t.Fatalf("default category %q", cfg.Boot.DefaultCategory)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing identity endpoint",
			yaml: ``,
		},
		{
			name: "port out of range",
			yaml: `
server:
  port: 70000
identity:
  endpoint: https://identity.example.com/whoami
`,
		},
		{
			name: "postgres without dsn",
			yaml: `
identity:
  endpoint: https://identity.example.com/whoami
storage:
  driver: postgres
`,
		},
		{
			name: "redis without address",
			yaml: `
identity:
  endpoint: https://identity.example.com/whoami
storage:
  driver: redis
`,
		},
		{
			name: "unknown driver",
			yaml: `
identity:
  endpoint: https://identity.example.com/whoami
storage:
  driver: etcd
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDevSkipAllowsMissingEndpoint(t *testing.T) {
	path := writeConfig(t, `
dev:
  skip_remote_validation: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Dev.SkipRemoteValidation {
		t.Fatal("dev override not parsed")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
