package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/ktune/pkg/ktune/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file if none exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(); err != nil {
			return err
		}
		fmt.Printf("config: %s\n", config.ConfigPath())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("config file: %s\n", config.ConfigPath())
		fmt.Printf("refiner:  interval %s, window %d, degrade after %d (factor %.2f)\n",
			cfg.Refiner.Interval, cfg.Refiner.WindowSize, cfg.Refiner.DegradeAfter, cfg.Refiner.DegradeFactor)
		fmt.Printf("scan:     stabilize %s, collect timeout %s, retry backoff %s\n",
			cfg.Scan.StabilizeWait, cfg.Scan.CollectTimeout, cfg.Scan.RetryBackoff)
		fmt.Printf("budget:   cpu %.2f, memory %.2f, batch<=%d, workers<=%d, cache<=%.2f\n",
			cfg.Budget.CPU, cfg.Budget.Memory, cfg.Budget.MaxBatchSize, cfg.Budget.MaxWorkers, cfg.Budget.MaxCacheFraction)
		fmt.Printf("logging:  level %s, path %s\n", cfg.Logging.Level, cfg.Logging.Path)
		if _, err := os.Stat(config.ConfigPath()); os.IsNotExist(err) {
			fmt.Println("(no config file present; showing defaults)")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
