// Package rbmconfig loads rbmctl's configuration via Viper: sensible
// defaults, a config file, and environment variables (RBM_ prefix), in
// that order of increasing precedence.
package rbmconfig

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the geometry and feature defaults rbmctl applies to mkfs
// when the caller doesn't override them on the command line.
type Config struct {
	BlockSize      uint32 `mapstructure:"block_size"`
	DevicePath     string `mapstructure:"device_path"`
	CRCEnabled     bool   `mapstructure:"crc_enabled"`
	SuperblockAddr int64  `mapstructure:"superblock_addr"`
}

// Load reads rbm-config.yaml from the usual search path, overlays RBM_*
// environment variables, and falls back to defaults for anything unset.
func Load() (*Config, error) {
	viper.SetConfigName("rbm-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.rbm")
	viper.AddConfigPath("/etc/rbm")

	viper.SetDefault("block_size", 4096)
	viper.SetDefault("device_path", "./rbm.img")
	viper.SetDefault("crc_enabled", true)
	viper.SetDefault("superblock_addr", 0)

	viper.SetEnvPrefix("RBM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}
