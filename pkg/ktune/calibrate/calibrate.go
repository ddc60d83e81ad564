// Package calibrate derives hardware-specific scale factors so the
// universal efficiency curve shape applies consistently across
// heterogeneous hosts. It also detects the hardware profile those factors
// are derived from, using platform-specific queries behind build tags.
package calibrate

import (
	"fmt"
	"math"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Conservative fallback constants used when a capability field is unknown.
const (
	// fallbackScaleMin is the efficiency floor assumed at idle.
	fallbackScaleMin = 0.05

	// baseScaleMax is the efficiency ceiling for a single-core host.
	baseScaleMax = 0.60

	// coreScaleStep is the ceiling gain per doubling of physical cores.
	coreScaleStep = 0.05

	// smtBonus is the ceiling gain when SMT is available.
	smtBonus = 0.02

	// maxScaleMax caps the ceiling regardless of core count.
	maxScaleMax = 0.95

	// degradedScaleMax caps the ceiling when memory capacity is unknown.
	degradedScaleMax = 0.85
)

// Result holds the calibrated normalization bounds. Degraded is set when
// some capability fields were unknown and fallbacks were used; callers
// should treat the bounds as lower-confidence in that case.
type Result struct {
	ScaleMin float64
	ScaleMax float64
	Degraded bool
}

// Calibrate derives normalization bounds from a hardware profile. It is a
// pure function of the profile: the same profile always yields the same
// bounds. Core count scales the efficiency ceiling, not the curve shape.
//
// Returns types.ErrUnsupportedPlatform only when every required capability
// field is absent. Partially-known profiles calibrate with conservative
// fallbacks and a Degraded result.
func Calibrate(profile types.HardwareProfile) (Result, error) {
	if profile.PhysicalCores <= 0 && profile.LogicalCores <= 0 && profile.TotalMemory <= 0 {
		return Result{}, fmt.Errorf("%w: profile has no core or memory information", types.ErrUnsupportedPlatform)
	}

	res := Result{ScaleMin: fallbackScaleMin}

	cores := profile.PhysicalCores
	if cores <= 0 {
		// Logical count is a usable stand-in, at reduced confidence.
		cores = profile.LogicalCores
		res.Degraded = true
	}
	if cores <= 0 {
		cores = 1
		res.Degraded = true
	}

	res.ScaleMax = baseScaleMax + coreScaleStep*math.Log2(float64(cores))
	if profile.HasSMT() {
		res.ScaleMax += smtBonus
	}

	if profile.TotalMemory <= 0 {
		res.Degraded = true
		if res.ScaleMax > degradedScaleMax {
			res.ScaleMax = degradedScaleMax
		}
	}

	if res.ScaleMax > maxScaleMax {
		res.ScaleMax = maxScaleMax
	}
	if res.ScaleMax <= res.ScaleMin {
		res.ScaleMax = res.ScaleMin + coreScaleStep
	}

	return res, nil
}
