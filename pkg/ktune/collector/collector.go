// Package collector supplies raw resource usage observations. The core
// treats a Collector as a pull source: one call yields one sample, bounded
// by the caller's context deadline.
package collector

import (
	"context"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Collector produces one resource usage sample per call. Collect must
// return within the context deadline or report the failure; a timeout maps
// to types.ErrCollection.
//
// The returned sample's LoadFraction is the collector's estimate of the
// current load. Callers driving synthetic load (the quick scanner)
// overwrite it with the applied tier.
type Collector interface {
	Collect(ctx context.Context) (types.Sample, error)
}

// Func adapts a function to the Collector interface. Tests and dry-run
// scans use it to script deterministic sample sequences.
type Func func(ctx context.Context) (types.Sample, error)

// Collect calls f.
func (f Func) Collect(ctx context.Context) (types.Sample, error) {
	return f(ctx)
}
