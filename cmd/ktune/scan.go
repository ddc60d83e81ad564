package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/ktune/pkg/ktune/calibrate"
	"github.com/jamesainslie/ktune/pkg/ktune/collector"
	"github.com/jamesainslie/ktune/pkg/ktune/config"
	"github.com/jamesainslie/ktune/pkg/ktune/curve"
	"github.com/jamesainslie/ktune/pkg/ktune/loadgen"
	"github.com/jamesainslie/ktune/pkg/ktune/scanner"
	"github.com/jamesainslie/ktune/pkg/ktune/store"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

var (
	scanDryRun bool
	scanSave   bool

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Run a quick scan and fit the efficiency curve",
		Long: `Drives four load tiers (idle, 25%, 50%, 75%), samples resource usage at
each, and fits the efficiency curve. Full load is never driven.`,
		Args: cobra.NoArgs,
		RunE: runQuickScan,
	}
)

func init() {
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "use a deterministic stub instead of real load")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "persist the fitted model for warm starts")
	rootCmd.AddCommand(scanCmd)
}

// scanReport is the JSON shape of a completed scan.
type scanReport struct {
	Session  string                `json:"session"`
	Profile  types.HardwareProfile `json:"profile"`
	Params   types.CurveParameters `json:"params"`
	Samples  []types.Sample        `json:"samples"`
	Partial  bool                  `json:"partial"`
	Degraded bool                  `json:"degraded_calibration"`
	Elapsed  time.Duration         `json:"elapsed"`
}

func runQuickScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	profile, err := calibrate.Detect()
	if err != nil {
		return fmt.Errorf("hardware detection: %w", err)
	}
	cal, err := calibrate.Calibrate(profile)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var col collector.Collector
	var gen loadgen.Generator
	if scanDryRun {
		stub := collector.NewStub(time.Now())
		col = stub
		gen = stubLoadGen{stub: stub}
	} else {
		col = collector.NewSystem()
		gen = &loadgen.DutyCycle{}
	}

	s := scanner.New(col, gen, cfg.Scan.StabilizeWait, cfg.Scan.CollectTimeout, cfg.Scan.RetryBackoff)

	start := time.Now()
	res, err := s.Run(ctx)
	partial := false
	if err != nil {
		if !errors.Is(err, types.ErrScanTierFailed) {
			return err
		}
		// A partial scan still fits, at lower confidence.
		partial = true
		printError("%v (continuing with %d samples)", err, len(res.Samples))
	}

	params, err := curve.Fit(res.Samples, curve.FitOptions{ScaleMin: cal.ScaleMin, ScaleMax: cal.ScaleMax})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		return fmt.Errorf("curve fit: %w", err)
	}

	report := scanReport{
		Session:  res.Session.String(),
		Profile:  profile,
		Params:   params,
		Samples:  res.Samples,
		Partial:  partial,
		Degraded: cal.Degraded,
		Elapsed:  time.Since(start).Round(time.Millisecond),
	}

	if scanSave {
		if err := saveScan(cfg, report); err != nil {
			return err
		}
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(report)
	}
	printScan(report)
	return nil
}

// saveScan persists the scan as the model state for daemon warm starts.
func saveScan(cfg *config.Config, report scanReport) error {
	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	path := cfg.Daemon.StorePath
	if path == "" {
		path = config.DefaultStorePath()
	}
	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open model store (is ktuned running?): %w", err)
	}
	defer st.Close()

	state := &types.ModelState{
		Params:     report.Params,
		Profile:    report.Profile,
		Samples:    report.Samples,
		WindowSize: cfg.Refiner.WindowSize,
		UpdatedAt:  time.Now(),
	}
	return st.Save(state)
}

func printScan(report scanReport) {
	fmt.Printf("Scan %s (%s)\n", report.Session, report.Elapsed)
	if report.Partial {
		fmt.Println("  partial scan: one or more tiers failed")
	}
	fmt.Printf("  hardware: %d cores (%d logical)\n",
		report.Profile.PhysicalCores, report.Profile.LogicalCores)

	fmt.Println("  samples:")
	for _, s := range report.Samples {
		fmt.Printf("    load %.2f  cpu %.2f  mem %.2f  io %.2f\n",
			s.LoadFraction, s.Usage.CPU, s.Usage.Memory, s.Usage.IO)
	}

	p := report.Params
	fmt.Printf("  curve: midpoint %.3f  steepness %.2f  scale [%.3f, %.3f]  fit error %.4f\n",
		p.Midpoint, p.Steepness, p.ScaleMin, p.ScaleMax, p.FitError)

	for _, load := range []float64{0.25, 0.50, 0.75, 0.90} {
		value, conf := curve.Evaluate(p, report.Samples, load)
		fmt.Printf("  efficiency(%.2f) = %.3f (confidence %.2f)\n", load, value, conf)
	}
}

// stubLoadGen couples the dry-run stub collector to the scanner's load
// tiers without generating real load.
type stubLoadGen struct {
	stub *collector.Stub
}

func (g stubLoadGen) Apply(_ context.Context, fraction float64) (loadgen.Handle, error) {
	g.stub.SetLoad(fraction)
	return nopHandle{}, nil
}

type nopHandle struct{}

func (nopHandle) Release() {}
