// Package config loads ledgerfs's layered configuration: defaults, then a
// YAML config file, then environment variables (LEDGERFS_-prefixed),
// highest precedence last. No CLI flag overrides an individual setting; the
// CLI's --config flag only selects which file is read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/onchainfs/ledgerfs/internal/bytesize"
)

// Config is ledgerfs's complete runtime configuration. Every numeric and
// duration knob named by the Configuration table (MAX_FILE_SIZE,
// CHUNK_SIZE, BATCH_SIZE, and so on) is an exported field here with
// `mapstructure`/`yaml` tags for viper decoding and `validate` tags
// enforced once at startup.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics configures the Prometheus metrics HTTP server.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the HTTP file-storage API server.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// JWT configures bearer-token verification for the API.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`

	// ShutdownTimeout bounds graceful shutdown: the API server stops
	// accepting new connections, then in-flight writers are given this long
	// to finish before the process exits anyway.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Storage configures chunking, admission limits, and the ledger backend.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Pool bounds the ledger client pool's two sub-pools.
	Pool PoolConfig `mapstructure:"pool" yaml:"pool"`

	// Quota configures free-tier byte/upload limits.
	Quota QuotaConfig `mapstructure:"quota" yaml:"quota"`

	// Session configures the badger database shared by the upload-session
	// store and the entity-key cache.
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When enabled,
// trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures the Prometheus metrics HTTP server. When Enabled
// is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// APIConfig configures the HTTP file-storage API server.
type APIConfig struct {
	Port         int           `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// JWTConfig configures bearer-token verification. X-API-Key bypasses
// verification entirely for legacy callers when non-empty.
type JWTConfig struct {
	Secret    string `mapstructure:"secret" validate:"required,min=32" yaml:"secret"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
	BypassKey string `mapstructure:"bypass_key" yaml:"bypass_key,omitempty"`
}

// StorageConfig configures chunking, admission limits, and which
// ledger.Backend is in play.
type StorageConfig struct {
	// Mode selects the ledger backend: "memory" or "ledger".
	Mode string `mapstructure:"mode" validate:"required,oneof=memory ledger" yaml:"mode"`

	// MaxFileSize rejects admission above this size with UPLOAD_TOO_LARGE.
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" validate:"required,gt=0" yaml:"max_file_size"`

	// ChunkSize is the compressed-window size chunking splits a payload
	// into. Default 32 KiB.
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" validate:"required,gt=0" yaml:"chunk_size"`

	// AllowedContentTypes is the admission allowlist, matched as a prefix
	// (e.g. "image/" allows "image/png"). Empty means allow everything.
	AllowedContentTypes []string `mapstructure:"allowed_content_types" yaml:"allowed_content_types"`

	// DefaultBTLDays is used when an upload request does not specify its
	// own block-time-to-live.
	DefaultBTLDays int `mapstructure:"default_btl_days" validate:"required,gt=0" yaml:"default_btl_days"`

	// BlocksPerDay sets the ledger backend's BlockDuration
	// (86400s / BlocksPerDay). Default 2880 (30s blocks). The in-memory
	// backend ignores it and always uses a synthetic 10-second block.
	BlocksPerDay int64 `mapstructure:"blocks_per_day" validate:"required,gt=0" yaml:"blocks_per_day"`

	// BatchSize bounds the async writer's per-batch chunk-group size and the
	// fallback path's concurrent individual writes. Default 16.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0" yaml:"batch_size"`

	// LedgerTimeout bounds a single ledger backend call (BLOCKCHAIN_TIMEOUT_MS).
	LedgerTimeout time.Duration `mapstructure:"ledger_timeout" validate:"required,gt=0" yaml:"ledger_timeout"`

	// S3 configures the S3-backed ledger.Backend. Only consulted when
	// Mode is "ledger".
	S3 S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config configures the S3-backed ledger.Backend.
type S3Config struct {
	Bucket         string `mapstructure:"bucket" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	KeyPrefix      string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// PoolConfig bounds the ledger client pool's two independently sized
// sub-pools and their lifecycle timers.
type PoolConfig struct {
	WriteMax       int           `mapstructure:"write_max" validate:"required,gt=0" yaml:"write_max"`
	ReadMax        int           `mapstructure:"read_max" validate:"required,gt=0" yaml:"read_max"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0" yaml:"idle_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval" validate:"required,gt=0" yaml:"health_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"required,gt=0" yaml:"connect_timeout"`
}

// QuotaConfig configures the free-tier daily byte/upload accounting.
type QuotaConfig struct {
	FreeTierMaxBytes         bytesize.ByteSize `mapstructure:"free_tier_max_bytes" validate:"required,gt=0" yaml:"free_tier_max_bytes"`
	FreeTierMaxUploadsPerDay int64             `mapstructure:"free_tier_max_uploads_per_day" validate:"required,gt=0" yaml:"free_tier_max_uploads_per_day"`

	// UnlimitedBypassKey, if presented by a caller, exempts them from quota
	// enforcement entirely. Empty disables the bypass.
	UnlimitedBypassKey string `mapstructure:"unlimited_bypass_key" yaml:"unlimited_bypass_key,omitempty"`
}

// SessionConfig configures the badger database shared by the upload-session
// store and the entity-key cache.
type SessionConfig struct {
	// BadgerPath is the directory badger opens its database in.
	BadgerPath string `mapstructure:"badger_path" validate:"required" yaml:"badger_path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LEDGERFS_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate enforces every `validate` tag on Config via go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variable and config file
// search settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("LEDGERFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the ByteSize and time.Duration decode hooks.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// enabling config files to use human-readable sizes like "1Gi" or "32KiB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers to time.Duration,
// enabling config files to use human-readable durations like "30s".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/ledgerfs,
// falling back to ~/.config/ledgerfs, or "." if the home directory cannot be
// determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ledgerfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ledgerfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory ledgerfs searches for a
// config file in.
func GetConfigDir() string {
	return getConfigDir()
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
