package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-rbm/internal/device"
	"github.com/deploymenttheory/go-rbm/internal/manager"
	"github.com/deploymenttheory/go-rbm/internal/types"
)

var (
	freeFrom    int64
	freeTo      int64
	freePersist bool
)

var freeCmd = &cobra.Command{
	Use:   "free",
	Short: "Release a previously allocated extent, given an inclusive byte range",
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
		if err := m.FreeExtent(tx, types.Paddr(freeFrom), types.Paddr(freeTo)); err != nil {
			return err
		}
		if err := m.CompleteAllocation(ctx, tx); err != nil {
			return err
		}

		if freePersist {
			if err := m.PersistSuperblock(ctx); err != nil {
				return err
			}
		}

		fmt.Printf("free_block_count now %d\n", m.Superblock().FreeBlockCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(freeCmd)
	freeCmd.Flags().Int64Var(&freeFrom, "from", 0, "first byte address of the range to free")
	freeCmd.Flags().Int64Var(&freeTo, "to", 0, "last byte address (inclusive) of the range to free")
	freeCmd.Flags().BoolVar(&freePersist, "persist", false, "write the updated superblock to disk after committing")
	freeCmd.MarkFlagRequired("from")
	freeCmd.MarkFlagRequired("to")
}
