package cmd

import (
	"context"
	"errors"
	"time"

	"jobwatch/internal/watcher"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [job_id]",
	Short: "Follow every child job of a batch job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		b, err := openBus()
		if err != nil {
			cmd.Printf("Failed to connect to the bus: %v\n", err)
			return err
		}
		defer b.Close()

		ctx, stop := signalContext(cmd)
		defer stop()

		parent, err := NewJobClient(b, timeout()).GetStatus(ctx, jobID)
		if errors.Is(err, ErrJobNotFound) {
			cmd.Printf("Job %s does not exist\n", jobID)
			return err
		}
		if err != nil {
			cmd.Printf("Failed to get job status: %v\n", err)
			return err
		}

		list := watcher.NewList(b, &tableView{out: cmd.OutOrStdout()}, watcherOptions(cmd, false))
		if err := list.Start(ctx, *parent); err != nil {
			if errors.Is(err, watcher.ErrNotBatch) {
				cmd.Printf("Job %s is not a batch job\n", jobID)
			}
			return err
		}

		once, _ := cmd.Flags().GetBool("once")
		if once {
			return waitForRows(ctx, list)
		}

		select {
		case <-list.Done():
		case <-ctx.Done():
			list.Stop()
		}
		return nil
	},
}

// waitForRows stops the list once every child has a status or the timeout passes.
func waitForRows(ctx context.Context, list *watcher.List) error {
	ctx, cancel := context.WithTimeout(ctx, timeout())
	defer cancel()
	defer list.Stop()

	for {
		if list.Summary().Total == len(list.Rows())-1 {
			return nil
		}
		select {
		case <-list.Done():
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().Duration("poll-interval", watcher.DefaultPollInterval, "Status poll interval for unfinished child jobs")
	batchCmd.Flags().Bool("once", false, "Print the table once every child has reported and exit")
}
