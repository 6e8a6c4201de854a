package cmd

import (
	"context"
	"errors"

	"jobwatch/internal/watcher"

	"github.com/spf13/cobra"
)

var followLogs bool

var logsCmd = &cobra.Command{
	Use:   "logs [job_id]",
	Short: "Print the log of a job",
	Long: `Print every log line of a job, page by page. With --follow the latest
lines are streamed until the job finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		if followLogs {
			_, err := follow(cmd, jobID, &terminalView{out: cmd.OutOrStdout(), hideStatus: true}, false)
			return err
		}

		b, err := openBus()
		if err != nil {
			cmd.Printf("Failed to connect to the bus: %v\n", err)
			return err
		}
		defer b.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return printLogs(ctx, cmd, NewJobClient(b, timeout()), jobID)
	},
}

// printLogs requests pages until the last known line has been printed.
func printLogs(ctx context.Context, cmd *cobra.Command, client *JobClient, jobID string) error {
	view := &terminalView{out: cmd.OutOrStdout()}
	next := 0
	for {
		page, err := client.GetLogs(ctx, jobID, next)
		switch {
		case errors.Is(err, ErrLogsDeleted):
			view.ShowLogMessage(watcher.MessageNoLogs)
			return nil
		case errors.Is(err, ErrJobNotFound):
			cmd.Printf("Job %s does not exist\n", jobID)
			return err
		case err != nil:
			cmd.Printf("Error fetching logs: %v\n", err)
			return err
		}

		if next == 0 && len(page.Lines) == 0 {
			view.ShowLogMessage(watcher.MessageNoLogs)
			return nil
		}
		view.AppendLogLines(page.Lines)

		next = page.First + len(page.Lines)
		if len(page.Lines) == 0 || next >= page.MaxLines {
			return nil
		}
	}
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Follow log output")
}
