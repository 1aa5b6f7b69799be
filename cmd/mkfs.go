package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rbm/internal/device"
	"github.com/deploymenttheory/go-rbm/internal/manager"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

var mkfsSize uint64

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Format a device with a fresh superblock and bitmap area",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveDevicePath()
		bs := resolveBlockSize()

		dev := device.NewFileDevice(bs, logger)
		m := manager.New(dev, logger)

		err := m.Mkfs(context.Background(), manager.Config{
			Path:       path,
			Start:      0,
			End:        types.Paddr(mkfsSize),
			BlockSize:  bs,
			TotalSize:  mkfsSize,
			CRCEnabled: cfg.CRCEnabled,
		})
		if err != nil {
			return err
		}

		sb := m.Superblock()
		fmt.Printf("formatted %s: uuid=%s size=%d free_block_count=%d\n", path, sb.UUID, sb.Size, sb.FreeBlockCount)
		return m.Close(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mkfsCmd)
	mkfsCmd.Flags().Uint64Var(&mkfsSize, "size", 1<<20, "total device size in bytes")
}
