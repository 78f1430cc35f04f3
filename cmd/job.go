package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/sqweek/dialog"

	"amber/internal/model"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage backup jobs",
}

var (
	jobAddName    string
	jobAddSource  string
	jobAddDest    string
	jobAddMode    string
	jobAddExclude  []string
	jobAddSchedule string
	jobAddPick     bool
)

var jobAddCmd = &cobra.Command{
	Use:   "add [id]",
	Short: "Add a new backup job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := jobAddSource
		dest := jobAddDest

		if jobAddPick {
			picked, err := dialog.Directory().Title("Choose backup source").Browse()
			if err != nil {
				return fmt.Errorf("source selection cancelled: %w", err)
			}
			source = picked

			if dest == "" && jobAddMode != string(model.ModeCloud) {
				picked, err = dialog.Directory().Title("Choose backup destination").Browse()
				if err != nil {
					return fmt.Errorf("destination selection cancelled: %w", err)
				}
				dest = picked
			}
		}

		job := model.Job{
			ID:              args[0],
			Name:            jobAddName,
			Source:          source,
			Dest:            dest,
			Mode:            model.SyncMode(jobAddMode),
			ExcludePatterns: jobAddExclude,
			Schedule:        jobAddSchedule,
		}

		var created model.Job
		if err := postJSON("/jobs", job, &created); err != nil {
			return err
		}

		color.Green("job added: %s (%s) %s -> %s", created.ID, created.Mode, created.Source, created.Dest)
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all backup jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Jobs    []model.Job             `json:"jobs"`
			Running map[string]model.JobRun `json:"running"`
		}
		if err := getJSON("/jobs", &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no jobs configured")
			return nil
		}

		fmt.Printf("%-16s %-12s %-8s %-14s %-30s %s\n", "ID", "MODE", "STATUS", "SCHEDULE", "SOURCE", "DEST")
		for _, j := range result.Jobs {
			status := "idle"
			if run, ok := result.Running[j.ID]; ok {
				status = string(run.Status)
			}
			schedule := j.Schedule
			if schedule == "" {
				schedule = "-"
			}
			fmt.Printf("%-16s %-12s %-8s %-14s %-30s %s\n", j.ID, j.Mode, status, schedule, j.Source, j.Dest)
		}

		return nil
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a backup job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deleteRequest("/jobs/" + args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s removed\n", args[0])
		return nil
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Start a backup run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			RunID string `json:"runId"`
		}
		if err := postJSON("/jobs/"+args[0]+"/run", nil, &result); err != nil {
			return err
		}

		color.Green("run started: %s", result.RunID)
		fmt.Printf("follow it with: amber job watch %s\n", args[0])
		return nil
	},
}

var jobKillCmd = &cobra.Command{
	Use:   "kill [id]",
	Short: "Cancel a job's running backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/jobs/"+args[0]+"/kill", nil, nil); err != nil {
			return err
		}
		fmt.Printf("kill requested for job %s\n", args[0])
		return nil
	},
}

// printEvent renders one stream event for the terminal.
func printEvent(ev model.Event) {
	switch ev.Type {
	case model.EventStarted:
		color.Cyan("run %s started", ev.RunID)

	case model.EventProgress:
		if ev.Progress == nil {
			return
		}
		p := ev.Progress
		line := fmt.Sprintf("%3d%%  %s", p.Percentage, humanize.Bytes(uint64(p.TransferredBytes)))
		if p.SpeedBytesPerSec != nil {
			line += fmt.Sprintf("  %s/s", humanize.Bytes(uint64(*p.SpeedBytesPerSec)))
		}
		if p.ETASeconds != nil {
			line += fmt.Sprintf("  eta %ds", *p.ETASeconds)
		}
		if p.CurrentFile != "" {
			line += "  " + p.CurrentFile
		}
		fmt.Println(line)

	case model.EventLog:
		fmt.Println(ev.Message)

	case model.EventComplete:
		if ev.Completion == nil {
			return
		}
		if ev.Completion.Success {
			color.Green("backup completed")
		} else {
			color.Red("backup failed (%s): %s", ev.Completion.Code, ev.Completion.Error)
		}

	case model.EventMounted:
		color.Yellow("volume mounted: %s", ev.Path)

	case model.EventUnmounted:
		color.Yellow("volume unmounted: %s", ev.Path)
	}
}

func init() {
	jobAddCmd.Flags().StringVar(&jobAddName, "name", "", "human-readable job name")
	jobAddCmd.Flags().StringVar(&jobAddSource, "source", "", "source directory")
	jobAddCmd.Flags().StringVar(&jobAddDest, "dest", "", "destination directory or host:path")
	jobAddCmd.Flags().StringVar(&jobAddMode, "mode", string(model.ModeMirror), "sync mode: MIRROR, ARCHIVE, TIME_MACHINE or CLOUD")
	jobAddCmd.Flags().StringSliceVar(&jobAddExclude, "exclude", nil, "rsync exclude pattern (repeatable)")
	jobAddCmd.Flags().StringVar(&jobAddSchedule, "schedule", "", `cron expression for automatic runs, e.g. "0 2 * * *" or "@daily"`)
	jobAddCmd.Flags().BoolVar(&jobAddPick, "pick", false, "choose directories with a native folder picker")

	jobCmd.AddCommand(jobAddCmd, jobListCmd, jobRemoveCmd, jobRunCmd, jobKillCmd, jobWatchCmd)
	rootCmd.AddCommand(jobCmd)
}
