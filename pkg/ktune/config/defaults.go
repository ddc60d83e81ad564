// Package config provides configuration management for ktune.
package config

import "time"

// Default configuration values for ktune.
const (
	// DefaultRefineInterval is how often the background refiner samples
	// live usage.
	DefaultRefineInterval = 30 * time.Second

	// DefaultWindowSize is the sample retention window capacity.
	DefaultWindowSize = 64

	// DefaultDegradeAfter is the number of consecutive sampling failures
	// before the refiner enters the degraded state.
	DefaultDegradeAfter = 3

	// DefaultDegradeFactor multiplies recommendation confidence while the
	// refiner is degraded.
	DefaultDegradeFactor = 0.5

	// DefaultCollectTimeout bounds a single sample collection call.
	DefaultCollectTimeout = 5 * time.Second

	// DefaultStabilizeWait is how long the quick scanner holds a load
	// tier before sampling it.
	DefaultStabilizeWait = 3 * time.Second

	// DefaultRetryBackoff is the wait before a failed tier is retried.
	DefaultRetryBackoff = 2 * time.Second

	// DefaultSaveInterval is how often the daemon persists model state.
	DefaultSaveInterval = 5 * time.Minute

	// DefaultCPUBudget is the CPU ceiling as a fraction of capacity that
	// recommendations must stay under.
	DefaultCPUBudget = 0.85

	// DefaultMemoryBudget is the memory ceiling as a fraction of total
	// RAM that recommendations must stay under.
	DefaultMemoryBudget = 0.75

	// DefaultMaxBatchSize caps the batch size recommendation.
	DefaultMaxBatchSize = 256

	// DefaultMaxWorkers caps the worker count recommendation.
	DefaultMaxWorkers = 64

	// DefaultMaxCacheFraction caps the cache sizing recommendation as a
	// fraction of total RAM.
	DefaultMaxCacheFraction = 0.25
)
