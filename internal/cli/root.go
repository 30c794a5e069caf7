// Package cli wires the rowmigrate commands with cobra.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/rowmigrate/internal/config"
	"github.com/BartekS5/rowmigrate/pkg/logger"
)

// GlobalOptions are the flags shared by every sub-command.
type GlobalOptions struct {
	JobFile string
	LogFile string
	Debug   bool

	env *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rowmigrate",
		Short: "rowmigrate - page-by-page data migration between files and databases",
		Long: `rowmigrate moves rows from a source (CSV, NDJSON, SQL table, WordPress posts,
MongoDB) to a destination (CSV, NDJSON, SQL table, MongoDB, debug or null output).
A job file describes the source, the destination and the transformers and renames
applied to every row on the way.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.JobFile, "job", "j", "", "Path to the job file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "Also write logs to this file (default $LOG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewMigrateCmd(opts), NewInspectCmd(opts))

	return rootCmd
}

// setup loads the environment and starts the logger. Flags win over
// LOG_FILE and LOG_LEVEL.
func (o *GlobalOptions) setup() error {
	env, err := config.LoadConfig()
	if err != nil {
		return err
	}
	o.env = env

	logFile := env.LogFile
	if o.LogFile != "" {
		logFile = o.LogFile
	}
	level := logger.ParseLevel(env.LogLevel)
	if o.Debug {
		level = logger.DEBUG
	}
	return logger.InitLogger(logFile, level)
}

func (o *GlobalOptions) loadJob() (*config.Job, error) {
	if o.JobFile == "" {
		return nil, errJobRequired
	}
	return config.LoadJob(o.JobFile)
}
