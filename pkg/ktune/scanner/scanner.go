// Package scanner runs the quick scan: a minimal four-tier sampling
// protocol that drives synthetic load at increasing fractions and records
// one usage sample per tier. Scans are serialized so two cannot interleave
// their load tiers.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/ktune/pkg/ktune/collector"
	"github.com/jamesainslie/ktune/pkg/ktune/loadgen"
	"github.com/jamesainslie/ktune/pkg/ktune/logging"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// scanTiers are the load fractions driven, in increasing order. Full load
// is never driven so the scan cannot destabilize the host.
var scanTiers = []float64{0, 0.25, 0.50, 0.75}

// TierRecord captures how one tier went.
type TierRecord struct {
	Fraction string        `json:"fraction"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
}

// Result is one scan session: the samples collected plus per-tier timing.
// On a tier failure the samples collected before it are still present.
type Result struct {
	Session    uuid.UUID      `json:"session"`
	Samples    []types.Sample `json:"samples"`
	Tiers      []TierRecord   `json:"tiers"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Scanner drives the quick scan protocol.
type Scanner struct {
	collector collector.Collector
	generator loadgen.Generator

	// StabilizeWait is how long to hold each tier before sampling.
	StabilizeWait time.Duration
	// CollectTimeout bounds each collector call.
	CollectTimeout time.Duration
	// RetryBackoff is the wait before the single retry of a failed tier.
	RetryBackoff time.Duration

	scanning chan struct{}
}

// New returns a scanner with the given collector and load generator.
func New(c collector.Collector, g loadgen.Generator, stabilize, collectTimeout, backoff time.Duration) *Scanner {
	return &Scanner{
		collector:      c,
		generator:      g,
		StabilizeWait:  stabilize,
		CollectTimeout: collectTimeout,
		RetryBackoff:   backoff,
		scanning:       make(chan struct{}, 1),
	}
}

// ErrScanInProgress indicates another scan holds the scan slot.
var ErrScanInProgress = fmt.Errorf("scan already in progress")

// Run executes one quick scan. A failed tier is skipped and the remaining
// tiers still run: a partial scan is usable at lower confidence, and a
// later tier can succeed where an earlier one did not. Cancellation is
// honored between tiers; the load generator is always released before Run
// returns.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	select {
	case s.scanning <- struct{}{}:
		defer func() { <-s.scanning }()
	default:
		return Result{}, ErrScanInProgress
	}

	log := logging.Get("scanner")
	res := Result{
		Session:   uuid.New(),
		StartedAt: time.Now(),
	}
	log.Info("quick scan starting", "session", res.Session, "tiers", len(scanTiers))

	var tierErrs []error
	for _, tier := range scanTiers {
		if err := ctx.Err(); err != nil {
			res.FinishedAt = time.Now()
			return res, err
		}

		sample, rec, err := s.runTier(ctx, tier)
		res.Tiers = append(res.Tiers, rec)
		if err != nil {
			if !errors.Is(err, types.ErrScanTierFailed) {
				// Cancellation mid-tier ends the scan outright.
				res.FinishedAt = time.Now()
				return res, err
			}
			log.Warn("scan tier failed, skipping", "session", res.Session, "tier", tier, "error", err)
			tierErrs = append(tierErrs, fmt.Errorf("tier %.2f: %w", tier, err))
			continue
		}

		sample.Session = res.Session.String()
		res.Samples = append(res.Samples, sample)
		log.Debug("tier sampled", "tier", tier, "cpu", sample.Usage.CPU, "attempts", rec.Attempts)
	}

	res.FinishedAt = time.Now()
	if len(tierErrs) > 0 {
		return res, errors.Join(tierErrs...)
	}
	log.Info("quick scan complete", "session", res.Session,
		"samples", len(res.Samples), "elapsed", res.FinishedAt.Sub(res.StartedAt))
	return res, nil
}

// runTier applies one load tier, waits for stabilization, and collects a
// single sample, retrying once on a collector error.
func (s *Scanner) runTier(ctx context.Context, tier float64) (types.Sample, TierRecord, error) {
	rec := TierRecord{Fraction: fmt.Sprintf("%.2f", tier)}
	start := time.Now()
	defer func() { rec.Duration = time.Since(start) }()

	handle, err := s.generator.Apply(ctx, tier)
	if err != nil {
		return types.Sample{}, rec, fmt.Errorf("%w: apply load: %v", types.ErrScanTierFailed, err)
	}
	defer handle.Release()

	if err := sleepCtx(ctx, s.StabilizeWait); err != nil {
		return types.Sample{}, rec, err
	}

	var sample types.Sample
	var collectErr error
	for attempt := 1; attempt <= 2; attempt++ {
		rec.Attempts = attempt
		sample, collectErr = s.collectOnce(ctx)
		if collectErr == nil {
			break
		}
		if attempt == 1 {
			if err := sleepCtx(ctx, s.RetryBackoff); err != nil {
				return types.Sample{}, rec, err
			}
		}
	}
	if collectErr != nil {
		return types.Sample{}, rec, fmt.Errorf("%w: %v", types.ErrScanTierFailed, collectErr)
	}

	// The applied tier is authoritative for where on the curve this
	// sample sits, whatever the collector's own load estimate says.
	sample.LoadFraction = tier
	if err := sample.Validate(); err != nil {
		return types.Sample{}, rec, fmt.Errorf("%w: %v", types.ErrScanTierFailed, err)
	}
	return sample, rec, nil
}

func (s *Scanner) collectOnce(ctx context.Context) (types.Sample, error) {
	cctx, cancel := context.WithTimeout(ctx, s.CollectTimeout)
	defer cancel()
	return s.collector.Collect(cctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
