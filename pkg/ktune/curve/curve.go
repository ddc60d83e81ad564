// Package curve fits a bounded sigmoid efficiency model to sparse load
// samples and evaluates it with confidence bounds. The sigmoid family
//
//	efficiency(load) = scaleMin + (scaleMax-scaleMin) / (1 + exp(-steepness*(load-midpoint)))
//
// is a modeling hypothesis, not a derived property; if observed data later
// favors a different family, Fit is the single substitution point.
package curve

import (
	"math"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Confidence shaping constants.
const (
	// confDecay controls how quickly confidence falls off with distance
	// from the nearest sampled load tier.
	confDecay = 0.15

	// errWeight controls how strongly fit error suppresses confidence.
	errWeight = 4.0
)

// Evaluate returns the modeled efficiency at the given load along with a
// confidence score in [0, 1]. It never fails: extrapolation far outside
// the sampled range still returns a best-effort value, with confidence
// approaching zero.
//
// Confidence decreases monotonically with the distance between load and
// the nearest sampled tier, scaled down by the fit error.
func Evaluate(params types.CurveParameters, samples []types.Sample, load float64) (value, confidence float64) {
	value = params.Value(load)

	if len(samples) == 0 || params.IsZero() {
		return value, 0
	}

	dist := math.Inf(1)
	for _, s := range samples {
		if d := math.Abs(s.LoadFraction - load); d < dist {
			dist = d
		}
	}

	confidence = math.Exp(-dist/confDecay) / (1 + errWeight*params.FitError)
	if confidence > 1 {
		confidence = 1
	}
	return value, confidence
}

// tier is an averaged observation at one distinct load level.
type tier struct {
	load float64
	eff  float64
	n    int
}

// collapseTiers averages repeated samples at the same load tier so they
// are not treated as independent evidence. Invalid samples are skipped.
func collapseTiers(samples []types.Sample) []tier {
	var tiers []tier
	for _, s := range samples {
		if s.Validate() != nil {
			continue
		}
		merged := false
		for i := range tiers {
			if math.Abs(tiers[i].load-s.LoadFraction) < types.DistinctTierTolerance {
				t := &tiers[i]
				t.load = (t.load*float64(t.n) + s.LoadFraction) / float64(t.n+1)
				t.eff = (t.eff*float64(t.n) + s.Efficiency()) / float64(t.n+1)
				t.n++
				merged = true
				break
			}
		}
		if !merged {
			tiers = append(tiers, tier{load: s.LoadFraction, eff: s.Efficiency(), n: 1})
		}
	}
	return tiers
}

// rmse computes the root mean squared residual of the parameters over the
// full sample set.
func rmse(params types.CurveParameters, samples []types.Sample) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if s.Validate() != nil {
			continue
		}
		r := s.Efficiency() - params.Value(s.LoadFraction)
		sum += r * r
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
