package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rbm/internal/device"
	"github.com/deploymenttheory/go-rbm/internal/manager"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print superblock and free-space information",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveDevicePath()
		bs := resolveBlockSize()

		dev := device.NewFileDevice(bs, logger)
		m := manager.New(dev, logger)

		if err := m.Open(context.Background(), path, resolveSuperblockAddr()); err != nil {
			return err
		}
		defer m.Close(context.Background())

		sb := m.Superblock()
		fmt.Printf("device:            %s\n", path)
		fmt.Printf("uuid:              %s\n", sb.UUID)
		fmt.Printf("block_size:        %d\n", sb.BlockSize)
		fmt.Printf("size:              %d\n", sb.Size)
		fmt.Printf("free_block_count:  %d\n", sb.FreeBlockCount)
		fmt.Printf("alloc_area_size:   %d\n", sb.AllocAreaSize)
		fmt.Printf("start_alloc_area:  %d\n", sb.StartAllocArea)
		fmt.Printf("start_data_area:   %d\n", sb.StartDataArea)
		fmt.Printf("total_data_blocks: %d\n", sb.TotalDataBlocks())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
