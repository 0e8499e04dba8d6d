// Package commands implements ledgerfs's CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

// rootCmd is the base command when ledgerfs is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "ledgerfs",
	Short: "ledgerfs - content-addressed file storage over a block-TTL ledger",
	Long: `ledgerfs mediates between a browser-facing upload API and a
rate-limited, block-TTL ledger backend: it chunks, compresses, and
checksums uploads, writes them durably through a batched async pipeline,
and reassembles and verifies them again on retrieval.

Use "ledgerfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/ledgerfs/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with status 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
