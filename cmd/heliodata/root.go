package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"heliodata/pkg/config"
	"heliodata/pkg/logger"
	"heliodata/pkg/ui"
)

var (
	// Version information
	version   = "0.2.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "heliodata",
	Short: "Resumable downloader for solar mission archives",
	Long: `heliodata downloads solar observations (SDO, SOHO, STEREO, Solar Orbiter)
over a time span, one calendar year or month at a time.

Progress is kept in a ledger under the destination root, so an interrupted
or partially failed run can simply be started again: completed samples are
skipped and only failed or pending ones are fetched.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			os.Setenv("NO_COLOR", "1")
		}
		if verbose && !cmd.Flags().Changed("log-level") {
			logLevel = "debug"
		}

		switch cmd.Name() {
		case "version", "help", "completion":
		default:
			if !quiet {
				ui.PrintLogo()
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./heliodata.yaml or $HOME/.config/heliodata/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print one line per sample and debug logs")

	rootCmd.SetVersionTemplate(`heliodata {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig layers file, environment and flags, adding the global
// log level when one was given.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}

// newLogger builds the run logger. Console output goes to stderr; unless
// disabled, events are also appended to the log file under the root.
func newLogger(cfg *config.Config) (logger.Logger, error) {
	lc := cfg.Logging
	lc.File = cfg.LogFile()
	if quiet && logLevel == "" {
		lc.Level = "warn"
	}
	if err := logger.Initialize(&lc); err != nil {
		return nil, err
	}
	return logger.GetLogger(), nil
}
