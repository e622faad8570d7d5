// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Command timemachine is a thin CLI wrapper around the timemachine engine:
// flag parsing and warning display only, no domain logic (spec §1).
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	timemachine "github.com/timothyhay256/filetimemachine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		folderPath     string
		getHashes      bool
		threadCount    int
		brotliLevel    int
		restoreIndex   int
		acceptDataLoss bool
	)

	root := &cobra.Command{
		Use:   "timemachine",
		Short: "Directory snapshotting and restoration",
	}
	root.PersistentFlags().StringVar(&folderPath, "folder-path", ".", "directory to track")
	root.PersistentFlags().BoolVar(&getHashes, "get-hashes", false, "verify change detection with a strong hash")
	root.PersistentFlags().IntVar(&threadCount, "thread-count", 0, "snapshot worker count (0 = auto)")
	root.PersistentFlags().IntVar(&brotliLevel, "brotli-compression-level", 5, "brotli compression level for patch artifacts")
	root.PersistentFlags().BoolVar(&acceptDataLoss, "its-my-fault-if-i-lose-data", false, "suppress the data-loss warning")

	config := func() timemachine.Config {
		return timemachine.Config{
			FolderPath:             folderPath,
			GetHashes:              getHashes,
			ThreadCount:            threadCount,
			BrotliCompressionLevel: brotliLevel,
			ItsMyFaultIfILoseData:  acceptDataLoss,
		}
	}

	printWarnings := func(cfg timemachine.Config) {
		for _, w := range cfg.Warnings() {
			color.Yellow("warning: %s", w)
		}
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "take a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			printWarnings(cfg)

			eng, err := timemachine.Open(cfg.FolderPath, cfg)
			if err != nil {
				return err
			}
			entry, err := eng.Snapshot()
			if errors.Is(err, timemachine.ErrNothingToDo) {
				fmt.Println("nothing to do: no tracked path changed since the last snapshot")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("snapshot taken: %s (%d entries)\n", entry.CreatedAt, entry.Len())
			return nil
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "restore a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			printWarnings(cfg)

			eng, err := timemachine.Open(cfg.FolderPath, cfg)
			if err != nil {
				return err
			}
			if restoreIndex < 1 {
				restoreIndex = 1
			}
			if err := eng.Restore(restoreIndex); err != nil {
				if errors.Is(err, timemachine.ErrAlreadyActive) {
					fmt.Println("already at that snapshot")
					return nil
				}
				return err
			}
			fmt.Printf("restored snapshot #%d\n", restoreIndex)
			return nil
		},
	}
	restoreCmd.Flags().IntVar(&restoreIndex, "restore-index", 1, "restore the nth most recent snapshot (1 = most recent)")

	root.AddCommand(snapshotCmd, restoreCmd)

	root.RunE = func(cmd *cobra.Command, args []string) error {
		return snapshotCmd.RunE(cmd, args)
	}

	cobra.OnInitialize(func() {
		slog.SetLogLoggerLevel(slog.LevelInfo)
	})

	return root
}
