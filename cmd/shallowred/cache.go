package main

import (
	"fmt"
	"sort"

	"github.com/shallowred/shallowred/pkg/cache"
	"github.com/spf13/cobra"
)

var cacheStatsFile string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect transposition cache snapshots",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a cache snapshot file",
	Long: `Summarize a cache snapshot written by a previous session.

Examples:
  shallowred cache stats --file ./shallowred.cache`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cacheStatsFile == "" {
			return fmt.Errorf("--file is required")
		}
		info, err := cache.ReadSnapshotInfo(cacheStatsFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "version: %d\n", info.Version)
		fmt.Fprintf(out, "capacity: %d\n", info.Capacity)
		fmt.Fprintf(out, "entries: %d\n", info.Entries)
		fmt.Fprintf(out, "compressed bytes: %d\n", info.CompressedBytes)
		fmt.Fprintf(out, "max depth: %d\n", info.MaxDepth)

		depths := make([]int, 0, len(info.ByDepth))
		for d := range info.ByDepth {
			depths = append(depths, d)
		}
		sort.Ints(depths)
		for _, d := range depths {
			fmt.Fprintf(out, "  depth %d: %d\n", d, info.ByDepth[d])
		}
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().StringVarP(&cacheStatsFile, "file", "f", "", "Path to the snapshot file")
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
