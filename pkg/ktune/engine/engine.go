// Package engine turns a fitted efficiency curve plus live telemetry into
// concrete tuning recommendations. Everything here is pure computation
// over the supplied snapshot; the refiner owns all state mutation.
package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/jamesainslie/ktune/pkg/ktune/curve"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

const (
	// searchIterations bounds the ternary search over load.
	searchIterations = 48
	// boundIterations bounds the bisection for the feasible upper load.
	boundIterations = 32
)

// Tunable parameter names recommendations are produced for.
const (
	ParamBatchSize     = "batch_size"
	ParamWorkerCount   = "worker_count"
	ParamCacheFraction = "cache_fraction"
)

// Ceilings are the resource budgets a recommendation must respect. CPU and
// Memory are fractions of capacity; the Max fields cap the per-parameter
// suggested values.
type Ceilings struct {
	CPU              float64
	Memory           float64
	MaxBatchSize     int
	MaxWorkers       int
	MaxCacheFraction float64
}

// Recommend produces one recommendation per tunable parameter from the
// model snapshot, the latest live sample, and the resource ceilings.
//
// It fails with types.ErrInsufficientData below two distinct load tiers
// and with types.ErrNoFeasibleRecommendation when no load in [0, 1]
// satisfies the ceilings. No recommendation's confidence exceeds the
// curve confidence at the chosen load.
func Recommend(state *types.ModelState, live types.Sample, ceilings Ceilings) ([]types.Recommendation, error) {
	if state == nil || types.DistinctTiers(state.Samples) < 2 {
		return nil, fmt.Errorf("%w: need samples at two or more distinct load tiers", types.ErrInsufficientData)
	}
	if err := live.Validate(); err != nil {
		return nil, fmt.Errorf("live sample: %w", err)
	}

	tiers := memoryTiers(state.Samples)
	feasible := func(load float64) bool {
		return load <= ceilings.CPU && predictMemory(tiers, load) <= ceilings.Memory
	}
	if !feasible(0) {
		return nil, fmt.Errorf("%w: ceilings exclude even idle load", types.ErrNoFeasibleRecommendation)
	}

	hi := feasibleUpperBound(feasible)
	bestLoad := maximizeValue(state.Params, 0, hi)
	_, curveConf := curve.Evaluate(state.Params, state.Samples, bestLoad)

	assessment := Assess(live, state.Params)
	conf := clamp01(curveConf * assessment.StabilityRating)
	basis := len(state.Samples)

	recs := []types.Recommendation{
		{
			Parameter:    ParamBatchSize,
			Value:        float64(optimalBatch(assessment, ceilings.MaxBatchSize)),
			Confidence:   conf,
			BasisSamples: basis,
		},
		{
			Parameter:    ParamWorkerCount,
			Value:        float64(workerCount(bestLoad, state.Profile, ceilings.MaxWorkers)),
			Confidence:   conf,
			BasisSamples: basis,
		},
	}

	headroom := ceilings.Memory - predictMemory(tiers, bestLoad)
	if headroom > 0 {
		recs = append(recs, types.Recommendation{
			Parameter:    ParamCacheFraction,
			Value:        math.Min(ceilings.MaxCacheFraction, headroom),
			Confidence:   conf,
			BasisSamples: basis,
		})
	}
	return recs, nil
}

// feasibleUpperBound finds the largest feasible load in [0, 1] by
// bisection. The feasible set is an interval from zero because both
// ceilings tighten as load grows.
func feasibleUpperBound(feasible func(float64) bool) float64 {
	if feasible(1) {
		return 1
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < boundIterations; i++ {
		mid := (lo + hi) / 2
		if feasible(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// maximizeValue ternary-searches [lo, hi] for the load that maximizes the
// fitted curve. The sigmoid is monotone, so the iteration count is a
// bound, not a convergence requirement.
func maximizeValue(params types.CurveParameters, lo, hi float64) float64 {
	for i := 0; i < searchIterations; i++ {
		m1 := lo + (hi-lo)/3
		m2 := hi - (hi-lo)/3
		if params.Value(m1) < params.Value(m2) {
			lo = m1
		} else {
			hi = m2
		}
	}
	return (lo + hi) / 2
}

// workerCount scales logical core count by the target load.
func workerCount(load float64, profile types.HardwareProfile, maxWorkers int) int {
	cores := profile.LogicalCores
	if cores <= 0 {
		cores = 1
	}
	n := int(math.Round(load * float64(cores)))
	if n < 1 {
		n = 1
	}
	if maxWorkers > 0 && n > maxWorkers {
		n = maxWorkers
	}
	return n
}

// memTier is one averaged (load, memory) observation.
type memTier struct {
	load, memory float64
}

// memoryTiers averages memory usage per distinct load tier, sorted by load.
func memoryTiers(samples []types.Sample) []memTier {
	sorted := make([]types.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Validate() == nil {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LoadFraction < sorted[j].LoadFraction })

	var tiers []memTier
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].LoadFraction-sorted[i].LoadFraction < types.DistinctTierTolerance {
			j++
		}
		var load, memory float64
		for _, s := range sorted[i:j] {
			load += s.LoadFraction
			memory += s.Usage.Memory
		}
		n := float64(j - i)
		tiers = append(tiers, memTier{load: load / n, memory: memory / n})
		i = j
	}
	return tiers
}

// predictMemory interpolates expected memory usage at the given load from
// the observed tiers, holding flat beyond the sampled range.
func predictMemory(tiers []memTier, load float64) float64 {
	if len(tiers) == 0 {
		return 0
	}
	if load <= tiers[0].load {
		return tiers[0].memory
	}
	last := tiers[len(tiers)-1]
	if load >= last.load {
		return last.memory
	}
	for i := 1; i < len(tiers); i++ {
		if load <= tiers[i].load {
			a, b := tiers[i-1], tiers[i]
			t := (load - a.load) / (b.load - a.load)
			return a.memory + t*(b.memory-a.memory)
		}
	}
	return last.memory
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
