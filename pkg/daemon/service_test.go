package daemon

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jamesainslie/ktune/pkg/ktune/collector"
	"github.com/jamesainslie/ktune/pkg/ktune/config"
	"github.com/jamesainslie/ktune/pkg/ktune/curve"
	"github.com/jamesainslie/ktune/pkg/ktune/refiner"
	"github.com/jamesainslie/ktune/pkg/ktune/store"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Refiner: config.RefinerConfig{
			Interval:      2 * time.Millisecond,
			WindowSize:    16,
			DegradeAfter:  2,
			DegradeFactor: 0.5,
		},
		Budget: config.BudgetConfig{
			CPU:              0.85,
			Memory:           0.75,
			MaxBatchSize:     256,
			MaxWorkers:       64,
			MaxCacheFraction: 0.25,
		},
		Daemon: config.DaemonConfig{SaveInterval: 10 * time.Millisecond},
	}
}

func sampleAt(load, cpu, memory float64) types.Sample {
	return types.Sample{
		LoadFraction: load,
		Usage:        types.ResourceUsage{CPU: cpu, Memory: memory},
		Timestamp:    time.Unix(0, 0),
	}
}

func seededRefiner(c collector.Collector, cfg *config.Config) *refiner.Refiner {
	state := &types.ModelState{
		Params:  types.CurveParameters{Midpoint: 0.4, Steepness: 8, ScaleMin: 0.1, ScaleMax: 0.8, FitError: 0.02},
		Profile: types.HardwareProfile{PhysicalCores: 4, LogicalCores: 8, TotalMemory: 16 << 30},
		Samples: []types.Sample{
			sampleAt(0, 0.05, 0.10),
			sampleAt(0.25, 0.30, 0.18),
			sampleAt(0.50, 0.55, 0.25),
			sampleAt(0.75, 0.70, 0.33),
		},
		WindowSize: cfg.Refiner.WindowSize,
	}
	return refiner.New(c, state, refiner.Options{
		Interval:       cfg.Refiner.Interval,
		CollectTimeout: time.Second,
		DegradeAfter:   cfg.Refiner.DegradeAfter,
		DegradeFactor:  cfg.Refiner.DegradeFactor,
		Fit:            curve.FitOptions{ScaleMin: 0.05, ScaleMax: 0.9},
	})
}

func steadyCollector() collector.Collector {
	return collector.Func(func(context.Context) (types.Sample, error) {
		return sampleAt(0.4, 0.45, 0.22), nil
	})
}

func TestService_Recommend(t *testing.T) {
	cfg := testConfig()
	svc := NewService(seededRefiner(steadyCollector(), cfg), nil, cfg)

	recs, err := svc.Recommend(sampleAt(0.3, 0.4, 0.2))
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("no recommendations")
	}
	for _, rec := range recs {
		if rec.Confidence < 0 || rec.Confidence > 1 {
			t.Errorf("%s: confidence %v outside [0, 1]", rec.Parameter, rec.Confidence)
		}
	}
}

func TestService_RunPersistsState(t *testing.T) {
	cfg := testConfig()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	svc := NewService(seededRefiner(steadyCollector(), cfg), st, cfg)
	svc.SetStatusPath(StatusPath(t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	state, err := st.Load()
	if err != nil {
		t.Fatalf("Load after shutdown: %v", err)
	}
	if len(state.Samples) < 4 {
		t.Errorf("persisted %d samples, want at least the seeded 4", len(state.Samples))
	}
	if state.Params.IsZero() {
		t.Error("persisted zero curve parameters")
	}
}

func TestService_StatusReflectsDegraded(t *testing.T) {
	cfg := testConfig()
	failing := collector.Func(func(context.Context) (types.Sample, error) {
		return types.Sample{}, fmt.Errorf("%w: probe offline", types.ErrCollection)
	})
	svc := NewService(seededRefiner(failing, cfg), nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	var status Status
	for status = svc.Status(); !status.Degraded || status.RefinerState != "degraded"; status = svc.Status() {
		select {
		case <-deadline:
			t.Fatalf("refiner never settled degraded, last status %+v", status)
		case <-time.After(2 * time.Millisecond):
		}
	}
	if status.Samples != 4 {
		t.Errorf("samples %d, want the seeded 4 (failures must not grow the window)", status.Samples)
	}
}

func TestCeilingsFrom(t *testing.T) {
	got := CeilingsFrom(testConfig().Budget)
	if got.CPU != 0.85 || got.Memory != 0.75 {
		t.Errorf("fraction ceilings drifted: %+v", got)
	}
	if got.MaxBatchSize != 256 || got.MaxWorkers != 64 || got.MaxCacheFraction != 0.25 {
		t.Errorf("parameter caps drifted: %+v", got)
	}
}
