package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"amber/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Runs []model.JobRun `json:"runs"`
		}
		if err := getJSON("/status", &result); err != nil {
			return err
		}

		if len(result.Runs) == 0 {
			fmt.Println("daemon running, no active backups")
			return nil
		}

		fmt.Printf("%-16s %-38s %-8s %s\n", "JOB", "RUN", "STATUS", "ELAPSED")
		for _, r := range result.Runs {
			elapsed := time.Since(r.StartedAt).Round(time.Second)
			fmt.Printf("%-16s %-38s %-8s %s\n", r.JobID, r.RunID, r.Status, elapsed)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
