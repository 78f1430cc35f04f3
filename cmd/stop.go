package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("daemon stopping")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
