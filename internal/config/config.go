// Package config loads ledger settings. Sources are layered, later ones
// winning: built-in defaults, an optional YAML or TOML file, a .env file, then
// LEDGER_* environment variables. Command-line flags are applied by main.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/proof"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/provenance"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/storage"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/trust"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_SERVER_PORT.
const EnvPrefix = "LEDGER"

type ServerConfig struct {
	Transport    string  `yaml:"transport" toml:"transport"`
	Port         string  `yaml:"port" toml:"port"`
	RateLimit    float64 `yaml:"rate_limit" toml:"rate_limit" split_words:"true"`
	RateBurst    int     `yaml:"rate_burst" toml:"rate_burst" split_words:"true"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" toml:"max_body_bytes" split_words:"true"`
	MaxUploadMB  int64   `yaml:"max_upload_mb" toml:"max_upload_mb" split_words:"true"`
}

type StorageConfig struct {
	Driver  string `yaml:"driver" toml:"driver"`
	DataDir string `yaml:"data_dir" toml:"data_dir" split_words:"true"`
	DSN     string `yaml:"dsn" toml:"dsn"`
}

type TrustConfig struct {
	Weights          trust.Weights   `yaml:"weights" toml:"weights"`
	DefaultScores    trust.SubScores `yaml:"default_scores" toml:"default_scores" split_words:"true"`
	VerificationBump float64         `yaml:"verification_bump" toml:"verification_bump" split_words:"true"`
}

type LifecycleConfig struct {
	Enforce bool `yaml:"enforce" toml:"enforce"`
}

type AttestationConfig struct {
	Network        string        `yaml:"network" toml:"network"`
	Timeout        time.Duration `yaml:"timeout" toml:"timeout"`
	SimulatedDelay time.Duration `yaml:"simulated_delay" toml:"simulated_delay" split_words:"true"`
	RecordFailures bool          `yaml:"record_failures" toml:"record_failures" split_words:"true"`
}

type AnalysisConfig struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Storage     StorageConfig     `yaml:"storage" toml:"storage"`
	Trust       TrustConfig       `yaml:"trust" toml:"trust"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle" toml:"lifecycle"`
	Attestation AttestationConfig `yaml:"attestation" toml:"attestation"`
	Analysis    AnalysisConfig    `yaml:"analysis" toml:"analysis"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:    "stdio",
			Port:         "8081",
			RateLimit:    20,
			RateBurst:    40,
			MaxBodyBytes: 1 << 20,
			MaxUploadMB:  100,
		},
		Storage: StorageConfig{
			Driver:  string(storage.DialectSQLite),
			DataDir: "./data",
		},
		Trust: TrustConfig{
			Weights:          trust.DefaultWeights(),
			DefaultScores:    trust.DefaultSubScores(),
			VerificationBump: 50,
		},
		Attestation: AttestationConfig{
			Network:        proof.DefaultNetwork,
			Timeout:        10 * time.Second,
			RecordFailures: true,
		},
		Analysis: AnalysisConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the dotenv file at envFile (skipped when empty or missing) and the
// environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeFile(expanded, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if envFile != "" {
		expanded, err := homedir.Expand(envFile)
		if err != nil {
			return nil, fmt.Errorf("expand env file path: %w", err)
		}
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(expanded); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile picks the decoder from the file extension. YAML is the default.
func decodeFile(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// ExpandPaths resolves a leading ~ in filesystem paths.
func (c *Config) ExpandPaths() error {
	dir, err := homedir.Expand(c.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("expand data dir: %w", err)
	}
	c.Storage.DataDir = dir
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be stdio or http, got %q", c.Server.Transport)
	}
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("server rate limit and burst must not be negative")
	}
	switch storage.Dialect(c.Storage.Driver) {
	case storage.DialectSQLite:
		if c.Storage.DataDir == "" {
			return errors.New("storage.data_dir is required for sqlite")
		}
	case storage.DialectMySQL:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or mysql, got %q", c.Storage.Driver)
	}
	if err := c.Trust.Weights.Validate(); err != nil {
		return fmt.Errorf("trust.weights: %w", err)
	}
	if !c.Trust.DefaultScores.InRange() {
		return errors.New("trust.default_scores must each be within [0,100]")
	}
	if c.Trust.VerificationBump < 0 || c.Trust.VerificationBump > trust.MaxScore {
		return fmt.Errorf("trust.verification_bump must be within [0,100], got %v", c.Trust.VerificationBump)
	}
	if c.Attestation.Timeout <= 0 || c.Analysis.Timeout <= 0 {
		return errors.New("attestation and analysis timeouts must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Provenance maps the settings onto the service configuration.
func (c *Config) Provenance() provenance.Config {
	return provenance.Config{
		DefaultScores:             c.Trust.DefaultScores,
		VerificationBump:          c.Trust.VerificationBump,
		EnforceLifecycle:          c.Lifecycle.Enforce,
		RecordFailedRegistrations: c.Attestation.RecordFailures,
		AttestationTimeout:        c.Attestation.Timeout,
		AnalysisTimeout:           c.Analysis.Timeout,
		Network:                   c.Attestation.Network,
	}
}

// StorageTarget returns what storage.Open expects for the configured driver.
func (c *Config) StorageTarget() string {
	if storage.Dialect(c.Storage.Driver) == storage.DialectMySQL {
		return c.Storage.DSN
	}
	return c.Storage.DataDir
}

// ParseLevel maps a level name to a slog level.
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
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
}
