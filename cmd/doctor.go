package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok := true

		path, err := exec.LookPath(cfg.RsyncPath)
		if err != nil {
			color.Red("✗ rsync not found (%s)", cfg.RsyncPath)
			ok = false
		} else {
			version := "unknown version"
			if out, err := exec.Command(path, "--version").Output(); err == nil {
				if line, _, found := strings.Cut(string(out), "\n"); found {
					version = line
				}
			}
			color.Green("✓ rsync: %s (%s)", path, version)
		}

		home, err := os.UserHomeDir()
		if err != nil {
			color.Red("✗ home directory: %v", err)
			ok = false
		} else {
			configDir := filepath.Join(home, ".amber")
			if err := os.MkdirAll(configDir, 0755); err != nil {
				color.Red("✗ config directory not writable: %v", err)
				ok = false
			} else {
				color.Green("✓ config directory: %s", configDir)
			}
		}

		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			color.Yellow("- daemon not running on port %d", cfg.DaemonPort)
		} else {
			_ = resp.Body.Close()
			color.Green("✓ daemon reachable on port %d", cfg.DaemonPort)
		}

		if !ok {
			return fmt.Errorf("environment checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
