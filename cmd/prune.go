package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pruneKeep int

var pruneCmd = &cobra.Command{
	Use:   "prune [job-id]",
	Short: "Delete a job's oldest snapshots beyond a retention count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"jobId":    args[0],
			"keepLast": pruneKeep,
		}

		var result struct {
			Removed int `json:"removed"`
		}
		if err := postJSON("/history/prune", body, &result); err != nil {
			return err
		}

		if result.Removed == 0 {
			fmt.Println("nothing to prune")
			return nil
		}
		color.Green("pruned %d snapshot(s), kept newest %d", result.Removed, pruneKeep)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 10, "snapshots to keep")
	rootCmd.AddCommand(pruneCmd)
}
