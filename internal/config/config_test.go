package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Trust.VerificationBump != 50 {
		t.Errorf("VerificationBump = %v, want 50", cfg.Trust.VerificationBump)
	}
	p := cfg.Provenance()
	if p.DefaultScores.Completeness != 80 || p.AttestationTimeout != 10*time.Second {
		t.Errorf("Provenance() = %+v", p)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ledger.yaml", `
server:
  transport: http
  port: "9090"
storage:
  data_dir: /var/lib/ledger
lifecycle:
  enforce: true
attestation:
  timeout: 3s
trust:
  verification_bump: 25
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Transport != "http" || cfg.Server.Port != "9090" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != "/var/lib/ledger" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
	if !cfg.Lifecycle.Enforce {
		t.Error("Enforce should be true")
	}
	if cfg.Attestation.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Attestation.Timeout)
	}
	if cfg.Trust.VerificationBump != 25 {
		t.Errorf("VerificationBump = %v, want 25", cfg.Trust.VerificationBump)
	}
	// Untouched keys keep their defaults.
	if cfg.Trust.Weights.Completeness != 0.30 {
		t.Errorf("Weights.Completeness = %v, want default 0.30", cfg.Trust.Weights.Completeness)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ledger.toml", `
[server]
port = "7070"

[storage]
driver = "mysql"
dsn = "ledger:secret@tcp(localhost:3306)/ledger"

[trust.weights]
completeness = 0.2
freshness = 0.2
consistency = 0.2
schema = 0.2
verification = 0.2
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" || cfg.Storage.Driver != "mysql" {
		t.Errorf("server/storage = %+v / %+v", cfg.Server, cfg.Storage)
	}
	if cfg.StorageTarget() != "ledger:secret@tcp(localhost:3306)/ledger" {
		t.Errorf("StorageTarget = %q", cfg.StorageTarget())
	}
	if cfg.Trust.Weights.Verification != 0.2 {
		t.Errorf("Weights = %+v", cfg.Trust.Weights)
	}
	// Untouched sections keep their defaults.
	if cfg.Trust.DefaultScores.Schema != 85 {
		t.Errorf("DefaultScores = %+v", cfg.Trust.DefaultScores)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ledger.yaml", "server:\n  port: \"9090\"\n")
	t.Setenv("LEDGER_SERVER_PORT", "7070")
	t.Setenv("LEDGER_LIFECYCLE_ENFORCE", "true")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("Port = %q, want env value 7070", cfg.Server.Port)
	}
	if !cfg.Lifecycle.Enforce {
		t.Error("Enforce should come from env")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "LEDGER_LOG_LEVEL=debug\n")
	// Register for cleanup; godotenv sets it for the rest of the process.
	t.Setenv("LEDGER_LOG_LEVEL", "")
	os.Unsetenv("LEDGER_LOG_LEVEL")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), ""); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"transport", func(c *Config) { c.Server.Transport = "grpc" }, "server.transport"},
		{"driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"mysql dsn", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.dsn"},
		{"weights", func(c *Config) { c.Trust.Weights.Schema = 0.5 }, "trust.weights"},
		{"default scores", func(c *Config) { c.Trust.DefaultScores.Freshness = 120 }, "default_scores"},
		{"bump", func(c *Config) { c.Trust.VerificationBump = -1 }, "verification_bump"},
		{"timeout", func(c *Config) { c.Analysis.Timeout = 0 }, "timeouts"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestStorageTarget(t *testing.T) {
	cfg := Default()
	if cfg.StorageTarget() != "./data" {
		t.Errorf("sqlite target = %q", cfg.StorageTarget())
	}
	cfg.Storage.Driver = "mysql"
	cfg.Storage.DSN = "user:pw@tcp(localhost:3306)/ledger"
	if cfg.StorageTarget() != cfg.Storage.DSN {
		t.Errorf("mysql target = %q", cfg.StorageTarget())
	}
}
