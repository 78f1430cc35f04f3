package cmd

import (
	"fmt"
	"net/url"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"amber/internal/model"
)

var diskCmd = &cobra.Command{
	Use:   "disk [path]",
	Short: "Show disk usage for a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("path", args[0])

		var stats model.DiskStats
		if err := getJSON("/disk?"+q.Encode(), &stats); err != nil {
			return err
		}

		if stats.Status == model.DiskUnavailable {
			color.Red("%s: unavailable", args[0])
			return nil
		}

		used := stats.TotalBytes - stats.FreeBytes
		fmt.Printf("%s: %s used of %s (%s free)\n",
			args[0],
			humanize.Bytes(used),
			humanize.Bytes(stats.TotalBytes),
			humanize.Bytes(stats.FreeBytes))
		return nil
	},
}

var volumesCmd = &cobra.Command{
	Use:   "volumes",
	Short: "List mounted volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		var volumes []struct {
			Name  string          `json:"name"`
			Path  string          `json:"path"`
			Stats model.DiskStats `json:"stats"`
		}
		if err := getJSON("/volumes", &volumes); err != nil {
			return err
		}

		if len(volumes) == 0 {
			fmt.Println("no volumes mounted")
			return nil
		}

		fmt.Printf("%-20s %-30s %-12s %s\n", "NAME", "PATH", "FREE", "TOTAL")
		for _, v := range volumes {
			if v.Stats.Status == model.DiskUnavailable {
				fmt.Printf("%-20s %-30s %s\n", v.Name, v.Path, color.RedString("unavailable"))
				continue
			}
			fmt.Printf("%-20s %-30s %-12s %s\n",
				v.Name, v.Path,
				humanize.Bytes(v.Stats.FreeBytes),
				humanize.Bytes(v.Stats.TotalBytes))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(diskCmd, volumesCmd)
}
