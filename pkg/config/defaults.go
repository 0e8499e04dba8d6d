package config

import (
	"strings"
	"time"

	"github.com/onchainfs/ledgerfs/internal/bytesize"
)

// ApplyDefaults fills in any unspecified configuration fields with sensible
// defaults. Zero values (0, "", false, nil) are replaced; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	applyJWTDefaults(&cfg.JWT)
	applyStorageDefaults(&cfg.Storage)
	applyPoolDefaults(&cfg.Pool)
	applyQuotaDefaults(&cfg.Quota)
	applySessionDefaults(&cfg.Session)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyJWTDefaults(cfg *JWTConfig) {
	if cfg.Secret == "" {
		cfg.Secret = "ledgerfs-development-secret-change-me-in-production"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "ledgerfs"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "memory"
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 512 * bytesize.MiB
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 32 * bytesize.KiB
	}
	if cfg.DefaultBTLDays == 0 {
		cfg.DefaultBTLDays = 30
	}
	if cfg.BlocksPerDay == 0 {
		cfg.BlocksPerDay = 2880
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 16
	}
	if cfg.LedgerTimeout == 0 {
		cfg.LedgerTimeout = 10 * time.Second
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"image/", "application/", "text/", "video/", "audio/"}
	}
	if cfg.Mode == "ledger" {
		applyS3Defaults(&cfg.S3)
	}
}

func applyS3Defaults(cfg *S3Config) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "entities/"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.WriteMax == 0 {
		cfg.WriteMax = 8
	}
	if cfg.ReadMax == 0 {
		cfg.ReadMax = 16
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
}

func applyQuotaDefaults(cfg *QuotaConfig) {
	if cfg.FreeTierMaxBytes == 0 {
		cfg.FreeTierMaxBytes = 5 * bytesize.GiB
	}
	if cfg.FreeTierMaxUploadsPerDay == 0 {
		cfg.FreeTierMaxUploadsPerDay = 1000
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "/var/lib/ledgerfs/sessions"
	}
}

// GetDefaultConfig returns a Config with all default values applied. Useful
// for generating a sample configuration file or for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
