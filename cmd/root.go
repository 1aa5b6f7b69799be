package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rbm/internal/rbmconfig"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

var (
	devicePath string
	blockSize  uint32
	verbose    bool

	cfg    *rbmconfig.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rbmctl",
	Short: "Random-block manager: mkfs, inspect, and allocate on a block device",
	Long: `rbmctl manages a persistent block device formatted with a
superblock, an on-disk allocation bitmap, and a fixed-size data region.

Commands:
  mkfs    format a device
  stat    print superblock and free-space information
  alloc   reserve a contiguous extent and commit it
  free    release a previously allocated extent`,
	Version: "0.1.0-dev",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := rbmconfig.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&devicePath, "device", "", "path to the backing device or image file (defaults to config device_path)")
	rootCmd.PersistentFlags().Uint32Var(&blockSize, "block-size", 0, "device block size in bytes (defaults to config block_size)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// resolveDevicePath returns the --device flag if set, else the config default.
func resolveDevicePath() string {
	if devicePath != "" {
		return devicePath
	}
	return cfg.DevicePath
}

// resolveBlockSize returns the --block-size flag if set, else the config default.
func resolveBlockSize() uint32 {
	if blockSize != 0 {
		return blockSize
	}
	return cfg.BlockSize
}

// resolveSuperblockAddr returns the configured superblock address used by
// stat/alloc/free to locate an already-formatted device.
func resolveSuperblockAddr() types.Paddr {
	return types.Paddr(cfg.SuperblockAddr)
}
