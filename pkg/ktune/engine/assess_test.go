package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

func TestAssess_Ranges(t *testing.T) {
	params := types.CurveParameters{Midpoint: 0.4, Steepness: 8, ScaleMin: 0.1, ScaleMax: 0.8, FitError: 0.05}

	for _, live := range []types.Sample{
		sampleAt(0, 0.02, 0.2),
		sampleAt(0.5, 0.5, 0.3),
		sampleAt(0.75, 0.9, 0.6),
	} {
		a := Assess(live, params)
		assert.GreaterOrEqual(t, a.EfficiencyScore, 0.0)
		assert.LessOrEqual(t, a.EfficiencyScore, 1.0)
		assert.GreaterOrEqual(t, a.StabilityRating, 0.5)
		assert.LessOrEqual(t, a.StabilityRating, 1.0)
		assert.GreaterOrEqual(t, a.LoadFactor, 0.0)
		assert.GreaterOrEqual(t, a.WorkloadConfidence, 0.0)
		assert.LessOrEqual(t, a.WorkloadConfidence, 1.0)
		assert.NotEmpty(t, a.Workload)
	}
}

func TestAssess_PoorFitLowersStability(t *testing.T) {
	live := sampleAt(0.5, 0.5, 0.3)

	clean := Assess(live, types.CurveParameters{FitError: 0})
	noisy := Assess(live, types.CurveParameters{FitError: 0.5})
	assert.Less(t, noisy.StabilityRating, clean.StabilityRating)
}

func TestClassifyWorkload_NearestBaseline(t *testing.T) {
	cases := []struct {
		name string
		live types.Sample
		want string
	}{
		{"near idle", sampleAt(0, 0.016, 0), "idle"},
		{"near light", sampleAt(0.25, 0.08, 0), "light"},
		{"near heavy", sampleAt(0.75, 0.45, 0), "heavy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			label, conf := classifyWorkload(tc.live)
			assert.Equal(t, tc.want, label)
			assert.GreaterOrEqual(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestOptimalBatch_Bounds(t *testing.T) {
	light := Assessment{LoadFactor: 0.5, StabilityRating: 1}
	heavy := Assessment{LoadFactor: 12, StabilityRating: 1}

	lb := optimalBatch(light, 256)
	hb := optimalBatch(heavy, 256)
	require.GreaterOrEqual(t, lb, 1)
	require.LessOrEqual(t, lb, 256)
	require.GreaterOrEqual(t, hb, 1)
	require.LessOrEqual(t, hb, 256)
	assert.Less(t, hb, lb, "heavier load should shrink the batch")
}
