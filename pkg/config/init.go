package config

import (
	"fmt"
	"os"
)

const configFileHeader = `# ledgerfs Configuration File
#
# This file was generated by 'ledgerfs init'. Every field has a
# default; uncomment and edit only the ones you need to change. Values set
# here are overridden by LEDGERFS_-prefixed environment variables.

`

// InitConfig writes a default configuration file to the default location
// (GetDefaultConfigPath), returning the path written. It refuses to
// overwrite an existing file unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, refusing to
// overwrite an existing file unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return err
	}
	return prependHeader(path)
}

// prependHeader adds the descriptive comment block SaveConfig's plain
// yaml.Marshal output doesn't include.
func prependHeader(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read generated config: %w", err)
	}
	return os.WriteFile(path, append([]byte(configFileHeader), data...), 0600)
}
