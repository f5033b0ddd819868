package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/envsync/envsync/internal/config"
	"github.com/envsync/envsync/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"

	appCfg    *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "envsync",
	Short: "Environment-aware database sync and migration utility",
	Long: `envsync copies table data between environments through an object
store cache and generates versioned migration files from the dependency
graph of a seed object.

  extract            export tables of an environment to the object store
  ingest             load cached tables into a local database
  show-deps          print the dependency tree of an object
  create-migrations  write migration files for an object and its dependencies`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appCfg = cfg

		level := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") || level == "" {
			level = logLevel
		}
		l, closer, err := logging.Setup(level, cfg.Logging.Directory, cfg.Logging.RetentionDays)
		if err != nil {
			return err
		}
		logger, logCloser = l, closer
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	rootCmd.Version = version + " (" + commit + ", " + date + ")"
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.envsync/envsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
