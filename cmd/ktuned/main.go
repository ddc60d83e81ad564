// Package main provides the entry point for ktuned, the background tuning
// daemon: it warm-starts from the persisted model or runs a cold-start
// quick scan, then refines the model continuously.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesainslie/ktune/pkg/daemon"
	"github.com/jamesainslie/ktune/pkg/daemon/watcher"
	"github.com/jamesainslie/ktune/pkg/ktune/calibrate"
	"github.com/jamesainslie/ktune/pkg/ktune/collector"
	"github.com/jamesainslie/ktune/pkg/ktune/config"
	"github.com/jamesainslie/ktune/pkg/ktune/curve"
	"github.com/jamesainslie/ktune/pkg/ktune/loadgen"
	"github.com/jamesainslie/ktune/pkg/ktune/logging"
	"github.com/jamesainslie/ktune/pkg/ktune/refiner"
	"github.com/jamesainslie/ktune/pkg/ktune/scanner"
	"github.com/jamesainslie/ktune/pkg/ktune/store"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ktuned: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	if err := config.EnsureStateDir(); err != nil {
		return err
	}

	logPath := cfg.Logging.Path
	if logPath == "" {
		logPath = logging.DefaultLogPath()
	}
	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         logPath,
		Components:   cfg.Logging.Components,
		ConsoleLevel: cfg.Logging.ConsoleLevel,
	}); err != nil {
		return err
	}
	defer logging.Close()
	log := logging.Get("ktuned")

	pidPath := cfg.Daemon.PIDPath
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
	if err := daemon.WritePIDFile(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			log.Warn("pid file cleanup failed", "error", err)
		}
	}()

	storePath := cfg.Daemon.StorePath
	if storePath == "" {
		storePath = config.DefaultStorePath()
	}
	st, err := store.Open(storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	col := collector.NewSystem()
	r, err := buildRefiner(ctx, cfg, col, st)
	if err != nil {
		return err
	}

	svc := daemon.NewService(r, st, cfg)
	svc.SetStatusPath(daemon.StatusPath(config.StateDir()))
	defer func() {
		if err := daemon.RemoveStatus(daemon.StatusPath(config.StateDir())); err != nil {
			log.Warn("status file cleanup failed", "error", err)
		}
	}()

	if w, err := watcher.New(config.ConfigPath(), svc.Reload); err != nil {
		log.Warn("config watching disabled", "error", err)
	} else {
		svc.SetWatcher(w)
	}

	log.Info("ktuned started", "pid", os.Getpid(), "store", storePath)
	return svc.Run(ctx)
}

// buildRefiner seeds the refinement loop: from the persisted model when
// one exists, otherwise from a cold-start quick scan.
func buildRefiner(ctx context.Context, cfg *config.Config, col collector.Collector, st *store.Store) (*refiner.Refiner, error) {
	log := logging.Get("ktuned")

	profile, err := calibrate.Detect()
	if err != nil {
		return nil, fmt.Errorf("hardware detection: %w", err)
	}
	cal, err := calibrate.Calibrate(profile)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	if cal.Degraded {
		log.Warn("calibration running on partial hardware data")
	}

	opts := refiner.Options{
		Interval:       cfg.Refiner.Interval,
		CollectTimeout: cfg.Scan.CollectTimeout,
		DegradeAfter:   cfg.Refiner.DegradeAfter,
		DegradeFactor:  cfg.Refiner.DegradeFactor,
		Fit:            curve.FitOptions{ScaleMin: cal.ScaleMin, ScaleMax: cal.ScaleMax},
	}

	state, err := st.Load()
	switch {
	case err == nil:
		log.Info("warm start from persisted model",
			"samples", len(state.Samples), "updated", state.UpdatedAt)
		state.Profile = profile
		if state.WindowSize < cfg.Refiner.WindowSize {
			state.WindowSize = cfg.Refiner.WindowSize
		}
		return refiner.New(col, state, opts), nil

	case errors.Is(err, store.ErrNoState):
		log.Info("no persisted model, running cold-start quick scan")
		state = &types.ModelState{
			Profile:    profile,
			WindowSize: cfg.Refiner.WindowSize,
			UpdatedAt:  time.Now(),
		}
		r := refiner.New(col, state, opts)

		s := scanner.New(col, &loadgen.DutyCycle{},
			cfg.Scan.StabilizeWait, cfg.Scan.CollectTimeout, cfg.Scan.RetryBackoff)
		res, err := s.Run(ctx)
		if err != nil && !errors.Is(err, types.ErrScanTierFailed) {
			return nil, err
		}
		if err := r.MergeScan(res.Samples); err != nil &&
			!errors.Is(err, types.ErrFitDidNotConverge) && !errors.Is(err, types.ErrDegenerateFit) {
			return nil, err
		}
		log.Info("cold start complete", "session", res.Session, "samples", len(res.Samples))
		return r, nil

	default:
		return nil, err
	}
}
