// Package loadgen produces synthetic CPU load at a requested fraction of
// capacity. The quick scanner uses it to drive load tiers; a handle
// releases the load when the tier is done.
package loadgen

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidFraction indicates the requested load fraction is outside [0, 1].
var ErrInvalidFraction = fmt.Errorf("load fraction outside [0, 1]")

// Generator applies synthetic load at a requested fraction of capacity.
type Generator interface {
	// Apply starts generating load. The returned handle must be released
	// to stop it; cancelling the context also stops it.
	Apply(ctx context.Context, fraction float64) (Handle, error)
}

// Handle controls one applied load.
type Handle interface {
	// Release stops the load and waits for the workers to exit.
	// Releasing twice is safe.
	Release()
}

// dutyPeriod is the spin/sleep cycle length per worker.
const dutyPeriod = 100 * time.Millisecond

// DutyCycle generates CPU load by running one worker per logical CPU,
// each busy-spinning for the requested fraction of a fixed duty period.
// A rate limiter paces the cycles so load stays even across the period.
type DutyCycle struct {
	// Workers overrides the worker count. Zero means one per logical CPU.
	Workers int
}

// Apply starts the duty-cycle workers at the given fraction.
func (g *DutyCycle) Apply(ctx context.Context, fraction float64) (Handle, error) {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFraction, fraction)
	}

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &dutyHandle{cancel: cancel}

	if fraction == 0 {
		// Idle tier: nothing to generate, the handle is still valid.
		return h, nil
	}

	spin := time.Duration(fraction * float64(dutyPeriod))

	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			limiter := rate.NewLimiter(rate.Every(dutyPeriod), 1)
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				spinFor(ctx, spin)
			}
		}()
	}

	return h, nil
}

// spinFor burns CPU until the duration elapses or the context is done.
func spinFor(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		// Keep the loop busy without letting the compiler elide it.
		for i := 0; i < 1000; i++ {
			_ = math.Sqrt(float64(i))
		}
	}
}

type dutyHandle struct {
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	released sync.Once
}

// Release stops the workers and waits for them to exit.
func (h *dutyHandle) Release() {
	h.released.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
}
