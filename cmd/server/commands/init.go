package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onchainfs/ledgerfs/pkg/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes a configuration file with every field defaulted, at --config
or at the default location ($XDG_CONFIG_HOME/ledgerfs/config.yaml). Refuses
to overwrite an existing file unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var path string
	var err error

	if GetConfigFile() != "" {
		path = GetConfigFile()
		err = config.InitConfigToPath(path, forceInit)
	} else {
		path, err = config.InitConfig(forceInit)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Edit it to customize your setup, then run: ledgerfs serve")
	return nil
}
