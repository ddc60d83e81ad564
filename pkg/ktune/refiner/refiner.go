// Package refiner runs the background control loop: periodically sample
// live usage, refit the efficiency curve, and publish the updated model as
// an atomic snapshot. Readers never block on a refit in progress.
package refiner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/ktune/pkg/ktune/collector"
	"github.com/jamesainslie/ktune/pkg/ktune/curve"
	"github.com/jamesainslie/ktune/pkg/ktune/engine"
	"github.com/jamesainslie/ktune/pkg/ktune/logging"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// State is the refiner's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateRefitting
	StateApplied
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateRefitting:
		return "refitting"
	case StateApplied:
		return "applied"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Options configure the refinement loop.
type Options struct {
	// Interval between refinement ticks.
	Interval time.Duration
	// CollectTimeout bounds each live sample collection.
	CollectTimeout time.Duration
	// DegradeAfter is the consecutive sampling failures before the
	// refiner enters the degraded state.
	DegradeAfter int
	// DegradeFactor multiplies recommendation confidence while degraded.
	DegradeFactor float64
	// Fit carries the calibrated scale seeds for refits.
	Fit curve.FitOptions
}

// Refiner owns the model state. All writes go through it; readers take
// snapshots via Snapshot or Recommend.
type Refiner struct {
	opts      Options
	collector collector.Collector

	mu    sync.Mutex // serializes refit cycles and merges
	model *types.ModelState

	snapshot atomic.Pointer[types.ModelState]
	state    atomic.Int32
	failures atomic.Int32
	degraded atomic.Bool
}

// New returns a refiner seeded with the given model state. A warm start
// passes a persisted state; a cold start passes a state holding only the
// hardware profile and window size, to be filled by a quick scan merge.
func New(c collector.Collector, initial *types.ModelState, opts Options) *Refiner {
	r := &Refiner{opts: opts, collector: c, model: initial}
	r.snapshot.Store(initial.Clone())
	return r
}

// Snapshot returns the most recently published model state. It never
// blocks on a refit in progress.
func (r *Refiner) Snapshot() *types.ModelState {
	return r.snapshot.Load()
}

// State reports the current cycle state.
func (r *Refiner) State() State {
	return State(r.state.Load())
}

// Degraded reports whether repeated sampling failures have suspended
// refitting.
func (r *Refiner) Degraded() bool {
	return r.degraded.Load()
}

// Recommend produces recommendations from the latest published snapshot.
// While degraded, each confidence is multiplied by the degradation factor.
func (r *Refiner) Recommend(live types.Sample, ceilings engine.Ceilings) ([]types.Recommendation, error) {
	recs, err := engine.Recommend(r.Snapshot(), live, ceilings)
	if err != nil {
		return nil, err
	}
	if r.degraded.Load() {
		for i := range recs {
			recs[i].Confidence *= r.opts.DegradeFactor
		}
	}
	return recs, nil
}

// MergeScan folds quick scan samples into the model and refits. Used for
// cold starts and operator-triggered rescans.
func (r *Refiner) MergeScan(samples []types.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		if err := r.model.Append(s); err != nil {
			return err
		}
	}
	return r.refitLocked(true)
}

// Run drives the refinement loop until the context is cancelled.
func (r *Refiner) Run(ctx context.Context) error {
	log := logging.Get("refiner")
	log.Info("refinement loop starting", "interval", r.opts.Interval)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("refinement loop stopping")
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// cycle runs one Sampling/Refitting/Applied pass. Failures never
// propagate: the previous good model stays in effect.
func (r *Refiner) cycle(ctx context.Context) {
	log := logging.Get("refiner")

	r.mu.Lock()
	defer r.mu.Unlock()

	r.setState(StateSampling)
	sample, err := r.collectOnce(ctx)
	if err != nil {
		n := r.failures.Add(1)
		if int(n) >= r.opts.DegradeAfter && !r.degraded.Load() {
			r.degraded.Store(true)
			log.Warn("entering degraded operation", "consecutive_failures", n)
		}
		r.settle()
		log.Debug("live sample failed", "error", err, "consecutive_failures", n)
		return
	}

	r.failures.Store(0)
	if r.degraded.CompareAndSwap(true, false) {
		log.Info("sample succeeded, leaving degraded operation")
	}

	r.setState(StateRefitting)
	if err := r.model.Append(sample); err != nil {
		r.settle()
		log.Debug("live sample rejected", "error", err)
		return
	}

	if err := r.refitLocked(false); err != nil {
		r.settle()
		log.Debug("refit kept previous parameters", "error", err)
		return
	}

	r.setState(StateApplied)
	r.settle()
}

// refitLocked refits the curve over the current window and publishes a
// fresh snapshot. The caller holds r.mu. On a failed fit the previous
// parameters stay in effect; the window still grows, so the new samples
// are published for readers either way. A cold-start merge sets adoptBest
// to accept a non-converged fit's last best estimate, which beats having
// no parameters at all; the background cycle does not.
func (r *Refiner) refitLocked(adoptBest bool) error {
	params, err := curve.Fit(r.model.Samples, r.opts.Fit)
	if err != nil && !(adoptBest && errors.Is(err, types.ErrFitDidNotConverge)) {
		r.snapshot.Store(r.model.Clone())
		return err
	}

	r.model.Params = params
	r.model.UpdatedAt = time.Now()
	r.snapshot.Store(r.model.Clone())
	return nil
}

func (r *Refiner) collectOnce(ctx context.Context) (types.Sample, error) {
	cctx, cancel := context.WithTimeout(ctx, r.opts.CollectTimeout)
	defer cancel()
	return r.collector.Collect(cctx)
}

func (r *Refiner) setState(s State) {
	r.state.Store(int32(s))
}

// settle parks the state machine between ticks: degraded if flagged,
// otherwise idle.
func (r *Refiner) settle() {
	if r.degraded.Load() {
		r.setState(StateDegraded)
	} else {
		r.setState(StateIdle)
	}
}
