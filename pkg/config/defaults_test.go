package config

import (
	"testing"
	"time"

	"github.com/onchainfs/ledgerfs/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 5*time.Minute {
		t.Errorf("Expected default read timeout 5m, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 5*time.Minute {
		t.Errorf("Expected default write timeout 5m, got %v", cfg.API.WriteTimeout)
	}
	if cfg.API.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.API.IdleTimeout)
	}
}

func TestApplyDefaults_Storage(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Storage.Mode != "memory" {
		t.Errorf("Expected default storage mode 'memory', got %q", cfg.Storage.Mode)
	}
	if cfg.Storage.MaxFileSize != 512*bytesize.MiB {
		t.Errorf("Expected default max file size 512MiB, got %v", cfg.Storage.MaxFileSize)
	}
	if cfg.Storage.ChunkSize != 32*bytesize.KiB {
		t.Errorf("Expected default chunk size 32KiB, got %v", cfg.Storage.ChunkSize)
	}
	if cfg.Storage.DefaultBTLDays != 30 {
		t.Errorf("Expected default BTL days 30, got %d", cfg.Storage.DefaultBTLDays)
	}
	if cfg.Storage.BlocksPerDay != 2880 {
		t.Errorf("Expected default blocks per day 2880, got %d", cfg.Storage.BlocksPerDay)
	}
	if cfg.Storage.BatchSize != 16 {
		t.Errorf("Expected default batch size 16, got %d", cfg.Storage.BatchSize)
	}
	if len(cfg.Storage.AllowedContentTypes) == 0 {
		t.Error("Expected default allowed content types to be populated")
	}
	// S3 defaults should not be applied in memory mode.
	if cfg.Storage.S3.KeyPrefix != "" {
		t.Errorf("Expected no S3 defaults in memory mode, got key prefix %q", cfg.Storage.S3.KeyPrefix)
	}
}

func TestApplyDefaults_StorageLedgerMode(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Mode: "ledger"}}
	ApplyDefaults(cfg)

	if cfg.Storage.S3.KeyPrefix != "entities/" {
		t.Errorf("Expected default S3 key prefix 'entities/', got %q", cfg.Storage.S3.KeyPrefix)
	}
	if cfg.Storage.S3.MaxRetries != 3 {
		t.Errorf("Expected default S3 max retries 3, got %d", cfg.Storage.S3.MaxRetries)
	}
}

func TestApplyDefaults_Pool(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Pool.WriteMax != 8 {
		t.Errorf("Expected default write pool max 8, got %d", cfg.Pool.WriteMax)
	}
	if cfg.Pool.ReadMax != 16 {
		t.Errorf("Expected default read pool max 16, got %d", cfg.Pool.ReadMax)
	}
}

func TestApplyDefaults_Quota(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Quota.FreeTierMaxBytes != 5*bytesize.GiB {
		t.Errorf("Expected default free tier max bytes 5GiB, got %v", cfg.Quota.FreeTierMaxBytes)
	}
	if cfg.Quota.FreeTierMaxUploadsPerDay != 1000 {
		t.Errorf("Expected default free tier max uploads per day 1000, got %d", cfg.Quota.FreeTierMaxUploadsPerDay)
	}
}

func TestApplyDefaults_Session(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Session.BadgerPath == "" {
		t.Error("Expected default session badger path to be set")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/ledgerfs.log",
		},
		ShutdownTimeout: 60 * time.Second,
		Storage: StorageConfig{
			Mode:     "ledger",
			BatchSize: 32,
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/ledgerfs.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Storage.Mode != "ledger" {
		t.Errorf("Expected explicit storage mode to be preserved, got %q", cfg.Storage.Mode)
	}
	if cfg.Storage.BatchSize != 32 {
		t.Errorf("Expected explicit batch size to be preserved, got %d", cfg.Storage.BatchSize)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.API.Port == 0 {
		t.Error("Default config missing API port")
	}
	if cfg.Storage.MaxFileSize == 0 {
		t.Error("Default config missing storage max file size")
	}
	if cfg.Session.BadgerPath == "" {
		t.Error("Default config missing session badger path")
	}
}
