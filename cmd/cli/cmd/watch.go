package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobwatch/internal/logger"
	"jobwatch/internal/logview"
	"jobwatch/internal/observability"
	"jobwatch/internal/watcher"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Follow a job's status and logs until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showHistory, _ := cmd.Flags().GetBool("history")
		view := &terminalView{out: cmd.OutOrStdout()}
		snap, err := follow(cmd, args[0], view, showHistory)
		if err != nil {
			return err
		}
		if snap.State.Mode == logview.ModeDoesNotExist {
			return ErrJobNotFound
		}
		return nil
	},
}

// follow runs a watcher for jobID until the job is finished or the user interrupts.
func follow(cmd *cobra.Command, jobID string, view watcher.View, showHistory bool) (watcher.Snapshot, error) {
	b, err := openBus()
	if err != nil {
		cmd.Printf("Failed to connect to the bus: %v\n", err)
		return watcher.Snapshot{}, err
	}
	defer b.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	w := watcher.New(b, view, watcherOptions(cmd, showHistory))
	if err := w.Start(ctx, jobID, nil); err != nil {
		cmd.Printf("Failed to start watching: %v\n", err)
		return watcher.Snapshot{}, err
	}

	select {
	case <-w.Done():
	case <-ctx.Done():
		w.Stop()
	}
	return w.Snapshot(), nil
}

func watcherOptions(cmd *cobra.Command, showHistory bool) watcher.Options {
	log := logger.NewWithWriter(cmd.ErrOrStderr(), logLevel())
	metrics, err := observability.NewWatcherMetrics(otel.Meter("jobwatch-cli"))
	if err != nil {
		log.Warn("failed to create watcher metrics", "error", err)
	}
	return watcher.Options{
		PollInterval:    interval(cmd, "poll-interval", "poll_interval"),
		LogPollInterval: interval(cmd, "log-interval", "log_poll_interval"),
		ShowHistory:     showHistory,
		Location:        location(cmd),
		Logger:          log,
		Metrics:         metrics,
	}
}

// interval prefers an explicit flag, then the config key. Zero means the watcher default.
func interval(cmd *cobra.Command, flag, key string) time.Duration {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		d, _ := cmd.Flags().GetDuration(flag)
		return d
	}
	return viper.GetDuration(key)
}

// signalContext is cancelled on Ctrl+C.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("history", false, "Show queue and run history lines")

	watchCmd.Flags().Duration("poll-interval", watcher.DefaultPollInterval, "Status poll interval when no updates arrive")
	watchCmd.Flags().Duration("log-interval", watcher.DefaultLogPollInterval, "Log poll interval while the job runs")
}
