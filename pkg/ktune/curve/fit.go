package curve

import (
	"fmt"
	"math"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Solver bounds.
const (
	// maxIterations bounds the damped descent loop.
	maxIterations = 250

	// convergeTolerance is the loss improvement below which the fit is
	// considered converged.
	convergeTolerance = 1e-9

	// divergeErrorFactor inflates the reported fit error when the solver
	// hits its iteration bound without converging.
	divergeErrorFactor = 1.5

	// minSteepness and maxSteepness clamp the transition sharpness.
	minSteepness = 0.5
	maxSteepness = 50

	// minScaleGap keeps the efficiency range open.
	minScaleGap = 0.01
)

// FitOptions seeds and bounds a fit.
type FitOptions struct {
	// ScaleMin and ScaleMax seed the efficiency range, typically from
	// hardware calibration. Zero values derive seeds from the data.
	ScaleMin float64
	ScaleMax float64
}

// Fit estimates sigmoid parameters from the sample set by minimizing
// squared residuals with a damped, step-adaptive descent bounded to a
// fixed iteration count. The iteration bound caps a fit at well under a
// millisecond of CPU time, so Fit takes no Context; cancellation happens
// at the call sites that loop over fits.
//
// Fails with types.ErrDegenerateFit when fewer than two distinct load
// tiers are present (the curve shape cannot be distinguished). When the
// solver hits its iteration bound it returns the last best estimate with
// an inflated fit error wrapped in types.ErrFitDidNotConverge rather than
// discarding the work.
func Fit(samples []types.Sample, opts FitOptions) (types.CurveParameters, error) {
	tiers := collapseTiers(samples)
	if len(tiers) < 2 {
		return types.CurveParameters{}, fmt.Errorf("%w: %d distinct tiers", types.ErrDegenerateFit, len(tiers))
	}

	params := initialGuess(tiers, opts)

	best := params
	bestLoss := loss(best, tiers)
	step := 0.05
	converged := false

	for i := 0; i < maxIterations; i++ {
		grad := gradient(best, tiers)
		cand := applyStep(best, grad, step)
		candLoss := loss(cand, tiers)

		if candLoss < bestLoss {
			if bestLoss-candLoss < convergeTolerance {
				best, bestLoss = cand, candLoss
				converged = true
				break
			}
			best, bestLoss = cand, candLoss
			step *= 1.2
		} else {
			step *= 0.5
			if step < 1e-12 {
				converged = true
				break
			}
		}
	}

	best.FitError = rmse(best, samples)

	if !converged {
		best.FitError *= divergeErrorFactor
		return best, fmt.Errorf("%w after %d iterations", types.ErrFitDidNotConverge, maxIterations)
	}

	return best, nil
}

// initialGuess seeds the solver from the observed efficiency range and the
// load at which efficiency crosses the middle of that range.
func initialGuess(tiers []tier, opts FitOptions) types.CurveParameters {
	minEff, maxEff := tiers[0].eff, tiers[0].eff
	for _, t := range tiers[1:] {
		minEff = math.Min(minEff, t.eff)
		maxEff = math.Max(maxEff, t.eff)
	}

	p := types.CurveParameters{
		ScaleMin:  minEff,
		ScaleMax:  maxEff,
		Midpoint:  0.5,
		Steepness: 8,
	}
	if opts.ScaleMin > 0 {
		p.ScaleMin = opts.ScaleMin
	}
	if opts.ScaleMax > 0 {
		p.ScaleMax = opts.ScaleMax
	}
	if p.ScaleMax-p.ScaleMin < minScaleGap {
		p.ScaleMax = p.ScaleMin + minScaleGap
	}

	// Seed the midpoint where the data crosses mid-range, interpolating
	// between the bracketing tiers.
	mid := (minEff + maxEff) / 2
	for i := 1; i < len(tiers); i++ {
		lo, hi := tiers[i-1], tiers[i]
		if (lo.eff-mid)*(hi.eff-mid) <= 0 && hi.eff != lo.eff {
			frac := (mid - lo.eff) / (hi.eff - lo.eff)
			p.Midpoint = lo.load + frac*(hi.load-lo.load)
			break
		}
	}

	return clampParams(p)
}

// loss is the sum of squared residuals over the collapsed tiers.
func loss(p types.CurveParameters, tiers []tier) float64 {
	var sum float64
	for _, t := range tiers {
		r := t.eff - p.Value(t.load)
		sum += r * r
	}
	return sum
}

// gradient computes the numerical gradient of the loss with respect to
// (midpoint, steepness, scaleMin, scaleMax).
func gradient(p types.CurveParameters, tiers []tier) [4]float64 {
	const h = 1e-6
	base := loss(p, tiers)

	var grad [4]float64
	for i := 0; i < 4; i++ {
		q := p
		switch i {
		case 0:
			q.Midpoint += h
		case 1:
			q.Steepness += h
		case 2:
			q.ScaleMin += h
		case 3:
			q.ScaleMax += h
		}
		grad[i] = (loss(q, tiers) - base) / h
	}
	return grad
}

// applyStep moves the parameters a scaled step against the gradient and
// clamps them back into their feasible ranges.
func applyStep(p types.CurveParameters, grad [4]float64, step float64) types.CurveParameters {
	// Normalize so the step size controls total movement regardless of
	// gradient magnitude.
	norm := math.Sqrt(grad[0]*grad[0] + grad[1]*grad[1] + grad[2]*grad[2] + grad[3]*grad[3])
	if norm == 0 {
		return p
	}
	scale := step / norm

	q := p
	q.Midpoint -= scale * grad[0]
	q.Steepness -= scale * grad[1] * 10 // steepness moves on a wider range
	q.ScaleMin -= scale * grad[2]
	q.ScaleMax -= scale * grad[3]
	return clampParams(q)
}

func clampParams(p types.CurveParameters) types.CurveParameters {
	p.Midpoint = math.Max(0, math.Min(1, p.Midpoint))
	p.Steepness = math.Max(minSteepness, math.Min(maxSteepness, p.Steepness))
	p.ScaleMin = math.Max(0, math.Min(1-minScaleGap, p.ScaleMin))
	p.ScaleMax = math.Max(p.ScaleMin+minScaleGap, math.Min(1, p.ScaleMax))
	return p
}
