package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"jobwatch/internal/bus"
	"jobwatch/internal/bus/redisbus"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// openBus connects to the message bus. Tests replace it with an in-memory bus.
var openBus = func() (bus.Bus, error) {
	return redisbus.Dial(viper.GetString("redis"), redisbus.WithPrefix(viper.GetString("prefix")))
}

var rootCmd = &cobra.Command{
	Use:   "jobwatch",
	Short: "Jobwatch follows job status and logs from the terminal",
	Long: `jobwatch is the command-line viewer for jobs run by the execution engine.

It talks to the jobwatch responder over the message bus: it asks for job
status, job info and log pages, and listens for the updates the responder
pushes while a job runs.

Common workflows:

  Follow a job until it finishes:
    jobwatch watch <job-id>

  Print the current status of a job:
    jobwatch status <job-id>

  Print the full log of a job:
    jobwatch logs <job-id>

  Follow every child of a batch job:
    jobwatch batch <job-id>

Configuration:
  Set the bus address via flags, environment variables or a config file:
    JOBWATCH_REDIS     Redis address of the bus (default: localhost:6379)
    JOBWATCH_PREFIX    Channel prefix (default: jobwatch)
    JOBWATCH_TZ        Time zone for timestamps (default: local)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".jobwatch"
		viper.AddConfigPath(home)
		viper.SetConfigName(".jobwatch")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "JOBWATCH_VARNAME"
	viper.SetEnvPrefix("JOBWATCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// location resolves the tz setting. Unknown zones fall back to local time.
func location(cmd *cobra.Command) *time.Location {
	tz := viper.GetString("tz")
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		cmd.PrintErrf("Unknown time zone %q, using local time\n", tz)
		return time.Local
	}
	return loc
}

// timeout is how long one-shot requests wait for an answer.
func timeout() time.Duration {
	if d := viper.GetDuration("timeout"); d > 0 {
		return d
	}
	return 10 * time.Second
}

func logLevel() slog.Level {
	if viper.GetBool("verbose") {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jobwatch.yaml)")

	rootCmd.PersistentFlags().String("redis", "localhost:6379", "Redis address of the message bus")
	viper.BindPFlag("redis", rootCmd.PersistentFlags().Lookup("redis"))

	rootCmd.PersistentFlags().String("prefix", "jobwatch", "Bus channel prefix")
	viper.BindPFlag("prefix", rootCmd.PersistentFlags().Lookup("prefix"))

	rootCmd.PersistentFlags().String("tz", "", "Time zone for timestamps (default is local)")
	viper.BindPFlag("tz", rootCmd.PersistentFlags().Lookup("tz"))

	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "How long to wait for a response")
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log bus traffic to stderr")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
