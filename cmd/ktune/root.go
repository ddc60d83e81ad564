package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/ktune/pkg/ktune/config"
	"github.com/jamesainslie/ktune/pkg/ktune/logging"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool

	rootCmd = &cobra.Command{
		Use:   "ktune",
		Short: "Model resource efficiency and recommend tuning values",
		Long: `ktune fits an efficiency-versus-load curve for this host from a small
number of load samples and derives resource tuning recommendations
(batch size, worker count, cache size) from it.

Examples:
  ktune scan                 # Run a quick scan and print the fitted curve
  ktune scan --save          # Also persist the model for the daemon
  ktune recommend            # Recommend tuning values from the saved model
  ktune status               # Show daemon and model status
  ktune config init          # Write a default config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/ktune/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output on the console")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output JSON format")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

// loadConfig loads the effective configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

// initLogging wires file logging per config plus console output for the
// interactive commands.
func initLogging(cfg *config.Config) error {
	lc := logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Components:   cfg.Logging.Components,
		ConsoleLevel: cfg.Logging.ConsoleLevel,
	}
	if lc.Path == "" {
		lc.Path = logging.DefaultLogPath()
	}
	if verbose {
		lc.ConsoleLevel = "debug"
	}
	return logging.Init(lc)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
