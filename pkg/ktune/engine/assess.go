package engine

import (
	"math"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// criticalLoad is the load-factor threshold where efficiency rolls off.
const criticalLoad = 8.0

// Assessment is the derived view of one live sample against the fitted
// model: a batch-sizing load factor, an efficiency score, a stability
// rating, and a workload classification.
type Assessment struct {
	// EfficiencyScore in (0, 1]: how efficiently the host is running at
	// the observed load.
	EfficiencyScore float64 `json:"efficiency_score"`
	// LoadFactor is the weighted load the batch sizing formula consumes.
	LoadFactor float64 `json:"load_factor"`
	// StabilityRating in [0.5, 1]: discounts sizing when the fit is poor.
	StabilityRating float64 `json:"stability_rating"`
	// Workload is the nearest baseline pattern label.
	Workload string `json:"workload"`
	// WorkloadConfidence in [0, 1]: how close the live sample sits to
	// the matched pattern relative to the others.
	WorkloadConfidence float64 `json:"workload_confidence"`
}

// Assess derives the live assessment from one sample and the current fit.
func Assess(live types.Sample, params types.CurveParameters) Assessment {
	base := live.Efficiency()

	// Load grows with observed efficiency demand, scaled by how busy the
	// CPU already is.
	complexity := 1 + math.Sqrt(clamp01(live.Usage.CPU))*0.025
	loadFactor := base * complexity * criticalLoad

	score := 1.0
	if base > 0 {
		score = 1 / (1 + math.Exp((loadFactor-criticalLoad)/base))
	}

	stability := 1 / (1 + 4*params.FitError)
	label, labelConf := classifyWorkload(live)

	return Assessment{
		EfficiencyScore:    clamp01(score),
		LoadFactor:         loadFactor,
		StabilityRating:    0.5 + 0.5*clamp01(stability),
		Workload:           label,
		WorkloadConfidence: labelConf,
	}
}

// optimalBatch sizes a work batch from the assessment: heavier load
// shrinks the theoretical maximum, a shaky fit discounts it further.
func optimalBatch(a Assessment, maxBatch int) int {
	if maxBatch <= 0 {
		maxBatch = 1
	}

	damp := math.Max(0.1, 1/(1+math.Exp((a.LoadFactor-criticalLoad)/4)))
	theoretical := float64(maxBatch)
	if a.LoadFactor > 0 {
		theoretical = criticalLoad / (a.LoadFactor * damp)
	}

	batch := int(theoretical * a.StabilityRating)
	if batch < 1 {
		batch = 1
	}
	if batch > maxBatch {
		batch = maxBatch
	}
	return batch
}

// baselinePattern is a named reference workload described by the
// efficiency it typically exhibits.
type baselinePattern struct {
	label      string
	efficiency float64
}

// baselinePatterns in increasing efficiency order. Order is fixed so
// classification is deterministic under ties.
var baselinePatterns = []baselinePattern{
	{label: "idle", efficiency: 0.016},
	{label: "media", efficiency: 0.025},
	{label: "light", efficiency: 0.078},
	{label: "heavy", efficiency: 0.449},
}

// classifyWorkload matches the live sample to the nearest baseline
// pattern by efficiency distance. Confidence is how much closer the best
// match is than the worst.
func classifyWorkload(live types.Sample) (string, float64) {
	eff := live.Efficiency()

	best := baselinePatterns[0]
	bestDist := math.Abs(best.efficiency - eff)
	worstDist := bestDist
	for _, p := range baselinePatterns[1:] {
		d := math.Abs(p.efficiency - eff)
		if d < bestDist {
			best, bestDist = p, d
		}
		if d > worstDist {
			worstDist = d
		}
	}

	if worstDist == 0 {
		return best.label, 1
	}
	return best.label, clamp01(1 - bestDist/worstDist)
}
