// Package commands provides the CLI commands of dfcov.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/internal/config"
	"github.com/l3aro/dfcov/internal/log"
)

// skipConfig marks commands that run without a loaded configuration.
const skipConfig = "skip-config"

var (
	appConfig *config.Config
	logger    log.Logger

	configPath string
	verbose    bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "dfcov",
	Short: "dfcov - def-use pair data-flow coverage for JVM classes",
	Long: `dfcov measures data-flow coverage: which definition-use pairs of each
method were exercised by a test run.

Commands:
  analyze     Analyze class documents, replay traces and export artifacts
  report      Aggregate exported artifacts into a coverage report
  cfg         Show the control flow graph of one method
  pairs       Show the def-use pairs of one method
  init        Create a configuration file interactively
  version     Print version information

Use "dfcov [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] != "" {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if l, ok := logger.(*log.DefaultLogger); ok {
			return l.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// setup loads the configuration and builds the logger.
func setup(cmd *cobra.Command) error {
	var err error
	if configPath != "" {
		appConfig, err = config.LoadFromFile(configPath)
	} else {
		appConfig, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		appConfig.Verbose = true
	}

	level := log.ParseLevel(appConfig.LogLevel)
	if appConfig.Verbose {
		level = log.DebugLevel
	}
	lc := log.LoggerConfig{
		Level:  level,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}
	if appConfig.LogFile != "" {
		lc.File = &log.FileSink{
			Path:       appConfig.LogFile,
			MaxSizeMB:  appConfig.LogMaxSizeMB,
			MaxBackups: appConfig.LogMaxBackups,
			MaxAgeDays: appConfig.LogMaxAgeDays,
			Compress:   appConfig.LogCompress,
		}
	}
	logger = log.New(lc)
	return nil
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.dfcov/config.yaml and ./.dfcov/config.yaml)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")
}
