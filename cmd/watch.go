package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"amber/internal/model"
)

var jobWatchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Follow a job's event stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tailEvents("/jobs/"+args[0]+"/events", true)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the daemon's global event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tailEvents("/events", false)
	},
}

// tailEvents consumes a server-sent event stream and prints each event.
// With stopOnComplete set it returns after the first terminal event,
// which is how `job watch` knows the run is over.
func tailEvents(path string, stopOnComplete bool) error {
	resp, err := http.Get(daemonURL(path))
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "data: ") {
			data.WriteString(strings.TrimPrefix(line, "data: "))
			continue
		}
		if line != "" {
			continue
		}
		if data.Len() == 0 {
			continue
		}

		var ev model.Event
		if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
			data.Reset()
			continue
		}
		data.Reset()

		printEvent(ev)
		if stopOnComplete && ev.Type == model.EventComplete {
			return nil
		}
	}

	return scanner.Err()
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
