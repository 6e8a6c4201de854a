package cmd

import (
	"context"
	"errors"
	"strings"

	"jobwatch/internal/jobs"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get the status of a job",
	Long:  `Retrieve the current state of a job (queued, running, success, failed, cancelled), the available action and the status lines with queue and run times.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]

		b, err := openBus()
		if err != nil {
			cmd.Printf("Failed to connect to the bus: %v\n", err)
			return err
		}
		defer b.Close()

		client := NewJobClient(b, timeout())
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		rec, err := client.GetStatus(ctx, jobID)
		if errors.Is(err, ErrJobNotFound) {
			cmd.Printf("%s Job %s does not exist\n", statusIcon(jobs.BucketNotFound), jobID)
			return err
		}
		if err != nil {
			cmd.Printf("Failed to get job status: %v\n", err)
			return err
		}
		info, err := client.GetInfo(ctx, jobID)
		if err != nil {
			// the status is still worth printing
			cmd.PrintErrf("Failed to get job info: %v\n", err)
		}

		showHistory, _ := cmd.Flags().GetBool("history")
		printStatus(cmd, rec, info, showHistory)
		return nil
	},
}

func printStatus(cmd *cobra.Command, rec *jobs.Record, info *jobs.Info, showHistory bool) {
	bucket := jobs.BucketOf(rec.Status)

	// Header with status icon
	cmd.Printf("%s %sJob Details%s\n", statusIcon(bucket), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, rec.JobID)
	if name := nameOf(rec.JobID, info); name != rec.JobID {
		cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, name)
	}
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(bucket, jobs.DecoratedLabel(rec, true)))
	if action := jobs.ActionFor(rec); action != jobs.ActionNone {
		cmd.Printf("%sAction:%s      %s\n", colorDim, colorReset, action.Label())
	}
	if rec.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, jobs.ErrorString(rec.Error), colorReset)
	}
	if rec.IsBatch() {
		cmd.Printf("%sChild jobs:%s  %d\n", colorDim, colorReset, len(rec.ChildJobs))
	}

	composer := jobs.Composer{Location: location(cmd)}
	for _, line := range composer.Lines(rec, showHistory) {
		cmd.Printf("  %s\n", line)
	}
}

func nameOf(jobID string, info *jobs.Info) string {
	switch {
	case info == nil:
		return jobID
	case info.Description != "":
		return info.Description
	case info.AppName != "":
		return info.AppName
	}
	return jobID
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(bucket jobs.Bucket) string {
	switch bucket {
	case jobs.BucketSuccess:
		return colorGreen + "✓" + colorReset
	case jobs.BucketFailed:
		return colorRed + "✗" + colorReset
	case jobs.BucketCancelled:
		return colorYellow + "⊘" + colorReset
	case jobs.BucketRunning:
		return colorYellow + "⏳" + colorReset
	case jobs.BucketQueued:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(bucket jobs.Bucket, label string) string {
	icon := statusIcon(bucket)
	switch bucket {
	case jobs.BucketSuccess:
		return icon + " " + colorGreen + label + colorReset
	case jobs.BucketFailed:
		return icon + " " + colorRed + label + colorReset
	case jobs.BucketRunning, jobs.BucketCancelled:
		return icon + " " + colorYellow + label + colorReset
	case jobs.BucketQueued:
		return icon + " " + colorCyan + label + colorReset
	default:
		return strings.TrimSpace(icon + " " + label)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("history", false, "Show queue and run history lines")
}
