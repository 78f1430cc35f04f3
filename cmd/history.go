package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"amber/internal/model"
)

var (
	historyFrom string
	historyTo   string
	runsJob     string
	runsLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history [job-id]",
	Short: "List a job's snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("job", args[0])
		if historyFrom != "" {
			q.Set("from", historyFrom)
		}
		if historyTo != "" {
			q.Set("to", historyTo)
		}

		var snaps []model.Snapshot
		if err := getJSON("/history?"+q.Encode(), &snaps); err != nil {
			return err
		}

		if len(snaps) == 0 {
			fmt.Println("no snapshots")
			return nil
		}

		fmt.Printf("%-38s %-20s %-10s %s\n", "SNAPSHOT", "CREATED", "FILES", "SIZE")
		for _, s := range snaps {
			fmt.Printf("%-38s %-20s %-10d %s\n",
				s.SnapshotID,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
				s.FileCount,
				humanize.Bytes(uint64(s.TotalSizeBytes)))
		}

		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent backup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if runsJob != "" {
			q.Set("job", runsJob)
		}
		q.Set("n", strconv.Itoa(runsLimit))

		var runs []model.JobRun
		if err := getJSON("/history/runs?"+q.Encode(), &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		fmt.Printf("%-16s %-8s %-20s %-10s %s\n", "JOB", "STATUS", "STARTED", "DURATION", "ERROR")
		for _, r := range runs {
			duration := "-"
			if r.EndedAt != nil {
				duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
			}

			status := color.GreenString(string(r.Status))
			if r.Status == model.StatusFailed {
				status = color.RedString(string(r.Status))
			}

			errMsg := r.Error
			if r.Code != model.CodeNone {
				errMsg = fmt.Sprintf("[%s] %s", r.Code, r.Error)
			}

			fmt.Printf("%-16s %-8s %-20s %-10s %s\n",
				r.JobID, status, r.StartedAt.Format("2006-01-02 15:04:05"), duration, errMsg)
		}

		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats struct {
			SnapshotCount    int64 `json:"snapshotCount"`
			FileCount        int64 `json:"fileCount"`
			TotalSizeBytes   int64 `json:"totalSizeBytes"`
			IndexEntryCount  int64 `json:"indexEntryCount"`
			StorageSizeBytes int64 `json:"storageSizeBytes"`
		}
		if err := getJSON("/history/stats", &stats); err != nil {
			return err
		}

		fmt.Printf("snapshots:      %d\n", stats.SnapshotCount)
		fmt.Printf("indexed files:  %d\n", stats.FileCount)
		fmt.Printf("backed up data: %s\n", humanize.Bytes(uint64(stats.TotalSizeBytes)))
		fmt.Printf("index entries:  %d\n", stats.IndexEntryCount)
		fmt.Printf("database size:  %s\n", humanize.Bytes(uint64(stats.StorageSizeBytes)))
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Rebuild the file search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/history/rebuild", nil, nil); err != nil {
			return err
		}
		color.Green("search index rebuilt")
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "only snapshots at or after this RFC3339 time")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "only snapshots at or before this RFC3339 time")
	runsCmd.Flags().StringVar(&runsJob, "job", "", "filter by job id")
	runsCmd.Flags().IntVar(&runsLimit, "n", 20, "maximum runs to show")

	historyCmd.AddCommand(runsCmd, statsCmd, rebuildCmd)
	rootCmd.AddCommand(historyCmd)
}
