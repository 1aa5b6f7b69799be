package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rbm/internal/device"
	"github.com/deploymenttheory/go-rbm/internal/manager"
)

var (
	allocSize    uint64
	allocPersist bool
)

var allocCmd = &cobra.Command{
	Use:   "alloc",
	Short: "Reserve a contiguous extent and commit it to the bitmap",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveDevicePath()
		bs := resolveBlockSize()

		dev := device.NewFileDevice(bs, logger)
		m := manager.New(dev, logger)

		if err := m.Open(context.Background(), path, resolveSuperblockAddr()); err != nil {
			return err
		}
		defer m.Close(context.Background())

		ctx := context.Background()
		tx := m.BeginTransaction()
		if err := m.AllocExtent(ctx, tx, allocSize); err != nil {
			return err
		}

		for _, d := range tx.Deltas() {
			for _, r := range d.Blocks.Ranges() {
				fmt.Printf("reserved blocks [%d, %d)\n", r.Start, r.End())
			}
		}

		if err := m.CompleteAllocation(ctx, tx); err != nil {
			return err
		}

		if allocPersist {
			if err := m.PersistSuperblock(ctx); err != nil {
				return err
			}
		}

		fmt.Printf("free_block_count now %d\n", m.Superblock().FreeBlockCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(allocCmd)
	allocCmd.Flags().Uint64Var(&allocSize, "size", 0, "bytes to allocate")
	allocCmd.Flags().BoolVar(&allocPersist, "persist", false, "write the updated superblock to disk after committing")
	allocCmd.MarkFlagRequired("size")
}
