package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/internal/telemetry"
	"github.com/onchainfs/ledgerfs/pkg/api"
	"github.com/onchainfs/ledgerfs/pkg/config"
	"github.com/onchainfs/ledgerfs/pkg/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledgerfs HTTP API server",
	Long: `Loads configuration, builds the component registry (ledger pool,
session store, entity-key cache, quota accountant, ingestion and retrieval
pipelines), and serves the HTTP API until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "ledgerfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "source", getConfigSource())
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("telemetry disabled")
	}

	reg, err := registry.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	logger.Info("registry initialized",
		"storage_mode", cfg.Storage.Mode,
		"pool_write_max", cfg.Pool.WriteMax,
		"pool_read_max", cfg.Pool.ReadMax,
	)

	apiServer := api.NewServer(cfg.API, reg)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("ledgerfs is running", "port", apiServer.Port())

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := reg.Shutdown(shutdownCtx); err != nil {
			logger.Error("registry shutdown error", "error", err)
			return err
		}
		logger.Info("ledgerfs stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	}

	return nil
}

func getConfigSource() string {
	if GetConfigFile() != "" {
		return GetConfigFile()
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
