package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
database:
  driver: postgres
  dsn: postgres://localhost/soulvault
harvest:
  schedule: "0 3 * * *"
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Harvest.Schedule != "0 3 * * *" {
		t.Errorf("schedule = %q", cfg.Harvest.Schedule)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	// Sections absent from the file keep their defaults.
	if cfg.RateLimit.RequestsPerSecond != 50 {
		t.Errorf("requests_per_second = %d, want 50", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	path := writeTempConfig(t, `
database:
  driver: postgres
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeTempConfig(t, `
database:
  driver: sqlite
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SOULVAULT_SERVER_PORT", "7070")
	t.Setenv("SOULVAULT_AUTH_SECRET", "hush")

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Secret != "hush" {
		t.Errorf("auth = %+v, want enabled with secret", cfg.Auth)
	}
}

func TestServerAddress(t *testing.T) {
	cfg := Default()
	if got := cfg.Server.Address(); got != "0.0.0.0:8080" {
		t.Errorf("address = %q", got)
	}
}
