package collector

import (
	"context"
	"sync"
	"time"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Stub is a deterministic collector for tests and dry-run scans. It maps
// an externally set load fraction through a fixed response shape, so two
// identical scans observe identical usage.
type Stub struct {
	mu   sync.Mutex
	load float64
	now  time.Time
}

// NewStub returns a stub observing zero load at the given start time.
func NewStub(start time.Time) *Stub {
	return &Stub{now: start}
}

// SetLoad sets the load fraction the next Collect observes.
func (s *Stub) SetLoad(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = fraction
}

// Collect returns a sample derived deterministically from the current
// load: CPU tracks the load with a fixed saturating response, memory and
// IO grow slowly with it. Each call advances the stub clock by one second.
func (s *Stub) Collect(ctx context.Context) (types.Sample, error) {
	if err := ctx.Err(); err != nil {
		return types.Sample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	load := s.load
	s.now = s.now.Add(time.Second)

	return types.Sample{
		LoadFraction: load,
		Usage: types.ResourceUsage{
			CPU:    0.05 + 0.9*load,
			Memory: 0.10 + 0.3*load,
			IO:     0.02 + 0.1*load,
		},
		Timestamp: s.now,
	}, nil
}
