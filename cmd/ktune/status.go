package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/ktune/pkg/daemon"
	"github.com/jamesainslie/ktune/pkg/ktune/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon liveness and model status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON shape of the status command.
type statusReport struct {
	Running bool           `json:"running"`
	PID     int            `json:"pid,omitempty"`
	Daemon  *daemon.Status `json:"daemon,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}

	report := statusReport{}
	if pid, ok := daemon.LivePID(pidPath); ok {
		report.Running = true
		report.PID = pid
		if status, err := daemon.ReadStatus(daemon.StatusPath(config.StateDir())); err == nil {
			report.Daemon = &status
		}
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(report)
	}

	if !report.Running {
		fmt.Println("ktuned: not running")
		return nil
	}
	fmt.Printf("ktuned: running (pid %d)\n", report.PID)
	if report.Daemon == nil {
		fmt.Println("  no status file yet; the daemon refreshes it on its save interval")
		return nil
	}

	d := report.Daemon
	fmt.Printf("  uptime:   %s (memory %s)\n", d.Uptime, d.MemoryUsed)
	fmt.Printf("  refiner:  %s", d.RefinerState)
	if d.Degraded {
		fmt.Print("  [degraded: recommendations at reduced confidence]")
	}
	fmt.Println()
	fmt.Printf("  model:    %d samples, fit error %.4f, updated %s\n",
		d.Samples, d.FitError, humanize.Time(d.ModelUpdated))
	return nil
}
