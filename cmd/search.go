package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"amber/internal/history"
)

var (
	searchJob   string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search [pattern]",
	Short: "Search file paths across snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("q", args[0])
		if searchJob != "" {
			q.Set("job", searchJob)
		}
		q.Set("limit", strconv.Itoa(searchLimit))

		var results []history.SearchResult
		if err := getJSON("/history/search?"+q.Encode(), &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}

		for _, r := range results {
			color.Cyan("%s  %s (job %s)",
				r.Snapshot.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Snapshot.SnapshotID,
				r.Snapshot.JobID)
			for _, p := range r.Paths {
				fmt.Printf("  %s\n", p)
			}
		}

		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchJob, "job", "", "limit search to one job")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 100, "maximum matches")
	rootCmd.AddCommand(searchCmd)
}
