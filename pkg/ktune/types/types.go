// Package types provides core data types for the ktune resource optimizer.
// It defines the sampled operating points, the fitted curve parameters, the
// detected hardware profile, and the model state that ties them together,
// along with the shared error taxonomy used across the core packages.
package types

import (
	"fmt"
	"math"
	"time"
)

// DistinctTierTolerance is how far apart two load fractions must be to
// count as distinct load tiers. Samples closer than this are treated as
// repeated observations of the same tier.
const DistinctTierTolerance = 0.05

// ResourceUsage holds normalized resource usage observed at a load level.
// All fields are fractions in [0, 1] of the host's capacity.
type ResourceUsage struct {
	// CPU is the overall CPU utilization fraction.
	CPU float64 `json:"cpu"`

	// Memory is the memory pressure fraction (used / total).
	Memory float64 `json:"memory"`

	// IO is the IO busy fraction, when the platform reports it.
	IO float64 `json:"io"`
}

// Sample is one observed operating point: a load fraction paired with the
// resource usage measured at that load. Samples are immutable once recorded.
type Sample struct {
	// LoadFraction is the applied load as a fraction of maximum sustainable
	// load, strictly within [0, 1].
	LoadFraction float64 `json:"load_fraction"`

	// Usage is the resource usage observed at this load.
	Usage ResourceUsage `json:"usage"`

	// Timestamp records when the sample was taken.
	Timestamp time.Time `json:"timestamp"`

	// Session identifies the scan session that produced this sample,
	// empty for samples collected by the background refiner.
	Session string `json:"session,omitempty"`
}

// Validate checks the sample invariants. Samples with a load fraction
// outside [0, 1] are rejected, not clamped.
func (s Sample) Validate() error {
	if math.IsNaN(s.LoadFraction) || s.LoadFraction < 0 || s.LoadFraction > 1 {
		return fmt.Errorf("%w: load fraction %v outside [0, 1]", ErrInvalidSample, s.LoadFraction)
	}
	return nil
}

// Efficiency reduces the usage vector to a single efficiency score in
// [0, 1]. Higher CPU engagement with lower memory pressure scores higher.
// This is the quantity the sigmoid curve is fitted against.
func (s Sample) Efficiency() float64 {
	eff := s.Usage.CPU * (1 - s.Usage.Memory*0.5)
	if eff < 0 {
		return 0
	}
	if eff > 1 {
		return 1
	}
	return eff
}

// CurveParameters describes a fitted efficiency-vs-load sigmoid:
//
//	efficiency(load) = ScaleMin + (ScaleMax-ScaleMin) / (1 + exp(-Steepness*(load-Midpoint)))
//
// A CurveParameters value is never mutated after a fit; each refit
// produces a fresh value so prior fits stay inspectable.
type CurveParameters struct {
	// Midpoint is the load fraction at which efficiency crosses the
	// middle of its range.
	Midpoint float64 `json:"midpoint"`

	// Steepness controls how sharply efficiency transitions around the
	// midpoint.
	Steepness float64 `json:"steepness"`

	// ScaleMin is the lower efficiency bound.
	ScaleMin float64 `json:"scale_min"`

	// ScaleMax is the upper efficiency bound.
	ScaleMax float64 `json:"scale_max"`

	// FitError is the root mean squared residual of the fit over the
	// sample set it was computed from. Always recomputed on refit.
	FitError float64 `json:"fit_error"`
}

// Value evaluates the sigmoid at the given load fraction.
func (p CurveParameters) Value(load float64) float64 {
	return p.ScaleMin + (p.ScaleMax-p.ScaleMin)/(1+math.Exp(-p.Steepness*(load-p.Midpoint)))
}

// IsZero reports whether the parameters are unset (no fit has happened).
func (p CurveParameters) IsZero() bool {
	return p == CurveParameters{}
}

// HardwareProfile captures the host capabilities detected once at startup.
// The profile is read-only after creation; calibration derives curve scale
// factors from it.
type HardwareProfile struct {
	// PhysicalCores is the number of physical CPU cores.
	PhysicalCores int `json:"physical_cores"`

	// LogicalCores is the number of logical CPUs (including SMT threads).
	LogicalCores int `json:"logical_cores"`

	// TotalMemory is the total physical RAM in bytes.
	TotalMemory int64 `json:"total_memory"`

	// MinFrequencyMHz and MaxFrequencyMHz bound the CPU clock range.
	// Zero when the platform does not report frequencies.
	MinFrequencyMHz float64 `json:"min_frequency_mhz,omitempty"`
	MaxFrequencyMHz float64 `json:"max_frequency_mhz,omitempty"`

	// Caps holds additional detected capabilities keyed by name, such as
	// "smt" or "cache_l3_bytes". Values are bools or numbers.
	Caps map[string]any `json:"caps,omitempty"`
}

// HasSMT reports whether the host exposes more logical than physical cores.
func (h HardwareProfile) HasSMT() bool {
	return h.LogicalCores > h.PhysicalCores
}

// Recommendation is a proposed tuning value for one resource-related
// parameter. Recommendations are transient outputs: the core never
// persists them.
type Recommendation struct {
	// Parameter names the tunable this recommendation applies to, e.g.
	// "batch_size" or "worker_count".
	Parameter string `json:"parameter"`

	// Value is the suggested setting.
	Value float64 `json:"value"`

	// Confidence is in [0, 1] and never exceeds the confidence of the
	// curve parameters it was derived from.
	Confidence float64 `json:"confidence"`

	// BasisSamples is the number of samples the underlying model was
	// fitted on.
	BasisSamples int `json:"basis_samples"`
}

// ModelState aggregates the fitted curve, the hardware profile, and the
// bounded sample window. The refiner owns all writes; everyone else reads
// immutable snapshots obtained through Clone.
type ModelState struct {
	// Params is the current fitted curve. Zero until the first
	// successful fit.
	Params CurveParameters `json:"params"`

	// Profile is the hardware profile the scales were calibrated against.
	Profile HardwareProfile `json:"profile"`

	// Samples is the retained sample window, oldest first. Appends evict
	// the oldest entry once the window is full.
	Samples []Sample `json:"samples"`

	// WindowSize is the retention capacity of the sample window.
	WindowSize int `json:"window_size"`

	// UpdatedAt is when the state was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Append adds a sample to the window, evicting the oldest entry when the
// window is at capacity. Invalid samples are rejected.
func (m *ModelState) Append(s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if m.WindowSize > 0 && len(m.Samples) >= m.WindowSize {
		m.Samples = m.Samples[len(m.Samples)-m.WindowSize+1:]
	}
	m.Samples = append(m.Samples, s)
	m.UpdatedAt = s.Timestamp
	return nil
}

// Clone returns a deep copy suitable for handing to readers while the
// refiner keeps mutating the original.
func (m *ModelState) Clone() *ModelState {
	cp := *m
	cp.Samples = make([]Sample, len(m.Samples))
	copy(cp.Samples, m.Samples)
	if m.Profile.Caps != nil {
		cp.Profile.Caps = make(map[string]any, len(m.Profile.Caps))
		for k, v := range m.Profile.Caps {
			cp.Profile.Caps[k] = v
		}
	}
	return &cp
}

// DistinctTiers returns the number of distinct load tiers present in the
// sample set, where tiers closer than DistinctTierTolerance are merged.
func DistinctTiers(samples []Sample) int {
	var tiers []float64
	for _, s := range samples {
		found := false
		for _, t := range tiers {
			if math.Abs(s.LoadFraction-t) < DistinctTierTolerance {
				found = true
				break
			}
		}
		if !found {
			tiers = append(tiers, s.LoadFraction)
		}
	}
	return len(tiers)
}
