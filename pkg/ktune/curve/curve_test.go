package curve

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// sampleAt builds a sample whose efficiency score equals eff.
func sampleAt(load, eff float64) types.Sample {
	return types.Sample{
		LoadFraction: load,
		Usage:        types.ResourceUsage{CPU: eff},
		Timestamp:    time.Now(),
	}
}

func quickScanSamples() []types.Sample {
	return []types.Sample{
		sampleAt(0.0, 0.10),
		sampleAt(0.25, 0.30),
		sampleAt(0.5, 0.55),
		sampleAt(0.75, 0.70),
	}
}

func TestFit_QuickScanScenario(t *testing.T) {
	params, err := Fit(quickScanSamples(), FitOptions{})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		t.Fatalf("Fit() error = %v", err)
	}

	if params.Midpoint < 0.25 || params.Midpoint > 0.75 {
		t.Errorf("Midpoint = %v, want within [0.25, 0.75]", params.Midpoint)
	}
	if params.ScaleMin > params.ScaleMax {
		t.Errorf("ScaleMin %v > ScaleMax %v", params.ScaleMin, params.ScaleMax)
	}
	if params.FitError < 0 {
		t.Errorf("FitError = %v, want >= 0", params.FitError)
	}

	// The fitted curve should pass near the observed mid-load point
	if v := params.Value(0.5); math.Abs(v-0.55) > 0.15 {
		t.Errorf("Value(0.5) = %v, want near 0.55", v)
	}
}

func TestFit_ScaleOrderInvariant(t *testing.T) {
	sets := [][]types.Sample{
		quickScanSamples(),
		{sampleAt(0.0, 0.5), sampleAt(0.5, 0.5), sampleAt(0.75, 0.52)},
		{sampleAt(0.1, 0.9), sampleAt(0.7, 0.2)}, // decreasing data
		{sampleAt(0.0, 0.02), sampleAt(0.25, 0.02), sampleAt(0.5, 0.03)},
	}

	for i, samples := range sets {
		params, err := Fit(samples, FitOptions{})
		if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
			t.Fatalf("set %d: Fit() error = %v", i, err)
		}
		if params.ScaleMin > params.ScaleMax {
			t.Errorf("set %d: ScaleMin %v > ScaleMax %v", i, params.ScaleMin, params.ScaleMax)
		}
		if params.FitError < 0 {
			t.Errorf("set %d: FitError = %v, want >= 0", i, params.FitError)
		}
	}
}

func TestFit_DegenerateSingleTier(t *testing.T) {
	samples := []types.Sample{
		sampleAt(0.5, 0.55),
		sampleAt(0.5, 0.56),
		sampleAt(0.51, 0.54),
	}

	_, err := Fit(samples, FitOptions{})
	if !errors.Is(err, types.ErrDegenerateFit) {
		t.Errorf("Fit(single tier) error = %v, want ErrDegenerateFit", err)
	}
}

func TestFit_Empty(t *testing.T) {
	_, err := Fit(nil, FitOptions{})
	if !errors.Is(err, types.ErrDegenerateFit) {
		t.Errorf("Fit(nil) error = %v, want ErrDegenerateFit", err)
	}
}

func TestFit_RepeatedSamplesAveraged(t *testing.T) {
	base := []types.Sample{
		sampleAt(0.0, 0.1),
		sampleAt(0.5, 0.6),
	}

	repeated := []types.Sample{
		sampleAt(0.0, 0.1),
		sampleAt(0.0, 0.1),
		sampleAt(0.0, 0.1),
		sampleAt(0.5, 0.6),
		sampleAt(0.5, 0.6),
	}

	pBase, err := Fit(base, FitOptions{})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		t.Fatalf("Fit(base) error = %v", err)
	}
	pRep, err := Fit(repeated, FitOptions{})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		t.Fatalf("Fit(repeated) error = %v", err)
	}

	// Identical repeated samples collapse to the same tier averages, so
	// the fitted shape must match.
	if math.Abs(pBase.Midpoint-pRep.Midpoint) > 1e-6 {
		t.Errorf("Midpoint differs with repeats: %v vs %v", pBase.Midpoint, pRep.Midpoint)
	}
	if math.Abs(pBase.Steepness-pRep.Steepness) > 1e-6 {
		t.Errorf("Steepness differs with repeats: %v vs %v", pBase.Steepness, pRep.Steepness)
	}
}

func TestFit_Deterministic(t *testing.T) {
	a, errA := Fit(quickScanSamples(), FitOptions{})
	b, errB := Fit(quickScanSamples(), FitOptions{})

	if (errA == nil) != (errB == nil) {
		t.Fatalf("determinism: errors differ: %v vs %v", errA, errB)
	}
	if a != b {
		t.Errorf("Fit() not deterministic: %+v vs %+v", a, b)
	}
}

func TestFit_PartialScanThreeTiers(t *testing.T) {
	// A scan that lost its 0.75 tier still fits on the remaining three.
	samples := []types.Sample{
		sampleAt(0.0, 0.10),
		sampleAt(0.25, 0.30),
		sampleAt(0.5, 0.55),
	}

	params, err := Fit(samples, FitOptions{})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		t.Fatalf("Fit(3 tiers) error = %v", err)
	}
	if params.ScaleMin > params.ScaleMax {
		t.Errorf("ScaleMin %v > ScaleMax %v", params.ScaleMin, params.ScaleMax)
	}
}

func TestEvaluate_ConfidenceDecay(t *testing.T) {
	samples := quickScanSamples()
	params, err := Fit(samples, FitOptions{})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		t.Fatalf("Fit() error = %v", err)
	}

	_, confAt := Evaluate(params, samples, 0.5)
	_, confFar := Evaluate(params, samples, 0.9)

	if confFar >= confAt {
		t.Errorf("Evaluate(0.9) confidence %v should be below Evaluate(0.5) confidence %v", confFar, confAt)
	}

	// Monotone non-increasing as load moves away from the nearest tier
	prev := 1.0
	for _, load := range []float64{0.75, 0.8, 0.85, 0.9, 0.95, 1.0} {
		_, conf := Evaluate(params, samples, load)
		if conf > prev+1e-12 {
			t.Errorf("confidence rose moving away from tiers at load %v: %v > %v", load, conf, prev)
		}
		prev = conf
	}
}

func TestEvaluate_NeverFails(t *testing.T) {
	samples := quickScanSamples()
	params, err := Fit(samples, FitOptions{})
	if err != nil && !errors.Is(err, types.ErrFitDidNotConverge) {
		t.Fatalf("Fit() error = %v", err)
	}

	for _, load := range []float64{-1, 0, 0.5, 1, 2, 10} {
		v, conf := Evaluate(params, samples, load)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("Evaluate(%v) value = %v", load, v)
		}
		if conf < 0 || conf > 1 {
			t.Errorf("Evaluate(%v) confidence = %v, want [0, 1]", load, conf)
		}
	}
}

func TestEvaluate_NoSamples(t *testing.T) {
	params := types.CurveParameters{Midpoint: 0.5, Steepness: 8, ScaleMin: 0.1, ScaleMax: 0.9}
	v, conf := Evaluate(params, nil, 0.5)
	if conf != 0 {
		t.Errorf("confidence without samples = %v, want 0", conf)
	}
	if math.IsNaN(v) {
		t.Errorf("value without samples = NaN")
	}
}

func TestEvaluate_FitErrorSuppressesConfidence(t *testing.T) {
	samples := quickScanSamples()
	clean := types.CurveParameters{Midpoint: 0.45, Steepness: 6, ScaleMin: 0.1, ScaleMax: 0.75, FitError: 0.0}
	noisy := clean
	noisy.FitError = 0.3

	_, confClean := Evaluate(clean, samples, 0.5)
	_, confNoisy := Evaluate(noisy, samples, 0.5)

	if confNoisy >= confClean {
		t.Errorf("higher fit error should lower confidence: %v >= %v", confNoisy, confClean)
	}
}
