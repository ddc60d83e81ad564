package types

import "errors"

// Error taxonomy shared across the core packages. Callers distinguish
// failure kinds with errors.Is; failures never terminate the process.
var (
	// ErrInsufficientData indicates fewer than two samples spanning two
	// distinct load tiers were available for a fit or recommendation.
	ErrInsufficientData = errors.New("insufficient sample data")

	// ErrDegenerateFit indicates the sample set has near-zero variance in
	// load, so the curve shape cannot be distinguished.
	ErrDegenerateFit = errors.New("degenerate fit: samples do not span distinct load tiers")

	// ErrFitDidNotConverge indicates the solver hit its iteration bound.
	// The last best estimate is still returned with an inflated fit error.
	ErrFitDidNotConverge = errors.New("curve fit did not converge")

	// ErrUnsupportedPlatform indicates the hardware profile is missing
	// every capability field calibration needs.
	ErrUnsupportedPlatform = errors.New("unsupported platform: no usable capability fields")

	// ErrScanTierFailed indicates a quick-scan tier could not be sampled
	// after retrying. Samples from earlier tiers are still returned.
	ErrScanTierFailed = errors.New("scan tier failed")

	// ErrNoFeasibleRecommendation indicates every candidate setting
	// violated a supplied resource ceiling.
	ErrNoFeasibleRecommendation = errors.New("no feasible recommendation within resource ceilings")

	// ErrCollection indicates the sample collector failed or timed out.
	ErrCollection = errors.New("sample collection failed")

	// ErrInvalidSample indicates a sample violated its invariants.
	ErrInvalidSample = errors.New("invalid sample")
)
