package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/ktune/pkg/ktune/store"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

func testModelState() *types.ModelState {
	state := &types.ModelState{
		Params: types.CurveParameters{
			Midpoint:  0.412,
			Steepness: 7.83,
			ScaleMin:  0.104,
			ScaleMax:  0.791,
			FitError:  0.0213,
		},
		Profile: types.HardwareProfile{
			PhysicalCores:   4,
			LogicalCores:    8,
			TotalMemory:     16 << 30,
			MinFrequencyMHz: 800,
			MaxFrequencyMHz: 4200,
			Caps:            map[string]any{"smt": true},
		},
		WindowSize: 16,
		UpdatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	loads := []float64{0, 0.25, 0.50, 0.75}
	for i, load := range loads {
		state.Samples = append(state.Samples, types.Sample{
			LoadFraction: load,
			Usage:        types.ResourceUsage{CPU: 0.1 + 0.2*float64(i), Memory: 0.1 + 0.05*float64(i), IO: 0.02},
			Timestamp:    time.Date(2026, 8, 1, 11, 0, i, 0, time.UTC),
			Session:      "2f1c9c6a-0000-0000-0000-000000000001",
		})
	}
	return state
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := testModelState()
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)

	const tol = 1e-12
	assert.InDelta(t, want.Params.Midpoint, got.Params.Midpoint, tol)
	assert.InDelta(t, want.Params.Steepness, got.Params.Steepness, tol)
	assert.InDelta(t, want.Params.ScaleMin, got.Params.ScaleMin, tol)
	assert.InDelta(t, want.Params.ScaleMax, got.Params.ScaleMax, tol)
	assert.InDelta(t, want.Params.FitError, got.Params.FitError, tol)

	assert.Equal(t, want.Profile.PhysicalCores, got.Profile.PhysicalCores)
	assert.Equal(t, want.Profile.TotalMemory, got.Profile.TotalMemory)
	assert.Equal(t, want.WindowSize, got.WindowSize)

	require.Len(t, got.Samples, len(want.Samples))
	for i := range want.Samples {
		assert.Equal(t, want.Samples[i].LoadFraction, got.Samples[i].LoadFraction, "sample %d load", i)
		assert.Equal(t, want.Samples[i].Session, got.Samples[i].Session, "sample %d session", i)
		assert.True(t, got.Samples[i].Timestamp.Equal(want.Samples[i].Timestamp), "sample %d timestamp", i)
	}
}

func TestLoadSaveLoadEquivalence(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(testModelState()))
	first, err := s.Load()
	require.NoError(t, err)

	// Saving a loaded state and loading it again must reproduce the model.
	require.NoError(t, s.Save(first))
	second, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, first.Params, second.Params)
	assert.Len(t, second.Samples, len(first.Samples))
}

func TestLoadEmptyStore(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load()
	assert.ErrorIs(t, err, store.ErrNoState)
}

func TestSaveShrinksWindow(t *testing.T) {
	s := openTestStore(t)

	full := testModelState()
	require.NoError(t, s.Save(full))

	small := testModelState()
	small.Samples = small.Samples[:2]
	require.NoError(t, s.Save(small))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, got.Samples, 2, "orphans behind the shrunken window")
}

func TestSaveShrinkThenGrow(t *testing.T) {
	s := openTestStore(t)

	full := testModelState()
	require.NoError(t, s.Save(full))

	small := testModelState()
	small.Samples = small.Samples[:1]
	require.NoError(t, s.Save(small))

	// Growing the window again must overwrite cleanly, with the samples
	// in their original order and no leftovers from either prior save.
	require.NoError(t, s.Save(full))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got.Samples, len(full.Samples))
	for i := range full.Samples {
		assert.Equal(t, full.Samples[i].LoadFraction, got.Samples[i].LoadFraction, "sample %d load", i)
	}
}

func TestSaveKeepsWindowWithParams(t *testing.T) {
	s := openTestStore(t)

	want := testModelState()
	require.NoError(t, s.Save(want))
	require.NoError(t, s.Save(want))

	// Repeated saves must never leave parameters without their sample
	// window: a warm start from such a state would claim a fitted curve
	// it has no evidence for.
	got, err := s.Load()
	require.NoError(t, err)
	assert.False(t, got.Params.IsZero())
	assert.Len(t, got.Samples, len(want.Samples))
	assert.GreaterOrEqual(t, types.DistinctTiers(got.Samples), 2)
}
