package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"amber/internal/devseed"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Development playground commands (daemon must run with dev_mode)",
}

var devSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a playground job with snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result devseed.SeedResult
		if err := postJSON("/dev/seed", nil, &result); err != nil {
			return err
		}

		if result.JobsCreated == 0 {
			fmt.Println("already seeded")
			return nil
		}
		color.Green("seeded %d job, %d snapshots, %d files (%s) in %dms",
			result.JobsCreated, result.SnapshotsCreated, result.FilesCreated,
			humanize.Bytes(uint64(result.TotalSizeBytes)), result.DurationMillis)
		return nil
	},
}

var devChurnCmd = &cobra.Command{
	Use:   "churn",
	Short: "Mutate the playground source tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result devseed.ChurnResult
		if err := postJSON("/dev/churn", nil, &result); err != nil {
			return err
		}
		fmt.Printf("added %d, modified %d, deleted %d\n", result.Added, result.Modified, result.Deleted)
		return nil
	},
}

var devBenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time the history store's read operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		var results []devseed.BenchmarkResult
		if err := getJSON("/dev/benchmarks", &results); err != nil {
			return err
		}

		fmt.Printf("%-14s %-8s %-10s %-10s %s\n", "OPERATION", "ITERS", "AVG", "MIN", "MAX")
		for _, r := range results {
			fmt.Printf("%-14s %-8d %-10s %-10s %s\n",
				r.Operation, r.Iterations,
				fmt.Sprintf("%.2fms", r.AvgMillis),
				fmt.Sprintf("%.2fms", r.MinMillis),
				fmt.Sprintf("%.2fms", r.MaxMillis))
		}
		return nil
	},
}

var devStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats devseed.DBStats
		if err := getJSON("/dev/stats", &stats); err != nil {
			return err
		}

		fmt.Printf("snapshots:   %d\n", stats.SnapshotCount)
		fmt.Printf("files:       %d\n", stats.FileCount)
		fmt.Printf("data size:   %s\n", humanize.Bytes(uint64(stats.TotalSizeBytes)))
		fmt.Printf("fts entries: %d\n", stats.FtsIndexEntries)
		fmt.Printf("db size:     %s\n", humanize.Bytes(uint64(stats.DBSizeBytes)))
		return nil
	},
}

var devClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the playground job and its data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/dev/clear", nil, nil); err != nil {
			return err
		}
		color.Green("playground cleared")
		return nil
	},
}

func init() {
	devCmd.AddCommand(devSeedCmd, devChurnCmd, devBenchCmd, devStatsCmd, devClearCmd)
	rootCmd.AddCommand(devCmd)
}
