// Package daemon runs the background tuning service: the refinement loop,
// the config watcher, and periodic persistence of the model state.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/ktune/pkg/daemon/watcher"
	"github.com/jamesainslie/ktune/pkg/ktune/config"
	"github.com/jamesainslie/ktune/pkg/ktune/engine"
	"github.com/jamesainslie/ktune/pkg/ktune/logging"
	"github.com/jamesainslie/ktune/pkg/ktune/refiner"
	"github.com/jamesainslie/ktune/pkg/ktune/store"
	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Service supervises the daemon's long-running tasks and serves
// recommendations from the refiner's latest snapshot.
type Service struct {
	refiner      *refiner.Refiner
	store        *store.Store // nil disables persistence
	watcher      *watcher.Watcher
	statusPath   string
	saveInterval time.Duration
	startTime    time.Time

	mu       sync.RWMutex
	ceilings engine.Ceilings
}

// NewService creates the daemon service around a running refiner.
func NewService(r *refiner.Refiner, s *store.Store, cfg *config.Config) *Service {
	return &Service{
		refiner:      r,
		store:        s,
		saveInterval: cfg.Daemon.SaveInterval,
		startTime:    time.Now(),
		ceilings:     CeilingsFrom(cfg.Budget),
	}
}

// CeilingsFrom maps the budget configuration onto engine ceilings.
func CeilingsFrom(b config.BudgetConfig) engine.Ceilings {
	return engine.Ceilings{
		CPU:              b.CPU,
		Memory:           b.Memory,
		MaxBatchSize:     b.MaxBatchSize,
		MaxWorkers:       b.MaxWorkers,
		MaxCacheFraction: b.MaxCacheFraction,
	}
}

// SetWatcher attaches a config watcher to run alongside the service.
func (s *Service) SetWatcher(w *watcher.Watcher) {
	s.watcher = w
}

// SetStatusPath enables periodic status file updates at the given path.
func (s *Service) SetStatusPath(path string) {
	s.statusPath = path
}

// Ceilings returns the current resource ceilings.
func (s *Service) Ceilings() engine.Ceilings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ceilings
}

// Reload re-reads the configuration and applies the hot-reloadable
// settings. Settings that require a restart keep their startup values.
func (s *Service) Reload() {
	log := logging.Get("daemon")

	cfg, err := config.Load()
	if err != nil {
		log.Warn("config reload failed, keeping current settings", "error", err)
		return
	}

	s.mu.Lock()
	s.ceilings = CeilingsFrom(cfg.Budget)
	s.mu.Unlock()
	log.Info("resource ceilings reloaded",
		"cpu", cfg.Budget.CPU, "memory", cfg.Budget.Memory)
}

// Recommend serves recommendations from the latest published model.
func (s *Service) Recommend(live types.Sample) ([]types.Recommendation, error) {
	return s.refiner.Recommend(live, s.Ceilings())
}

// Run supervises the refinement loop, the config watcher, and the
// periodic saver until the context is cancelled, then flushes state.
func (s *Service) Run(ctx context.Context) error {
	log := logging.Get("daemon")
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.refiner.Run(gctx)
	})

	if s.watcher != nil {
		g.Go(func() error {
			return s.watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		return s.saveLoop(gctx)
	})

	err := g.Wait()

	if s.store != nil {
		if saveErr := s.store.Save(s.refiner.Snapshot()); saveErr != nil {
			log.Error("final state save failed", "error", saveErr)
		} else {
			log.Info("model state saved on shutdown")
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// saveLoop periodically persists the model snapshot and refreshes the
// status file, so a crash loses at most one interval of refinement.
func (s *Service) saveLoop(ctx context.Context) error {
	log := logging.Get("daemon")

	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.store != nil {
				if err := s.store.Save(s.refiner.Snapshot()); err != nil {
					log.Warn("periodic state save failed", "error", err)
				}
			}
			if s.statusPath != "" {
				if err := WriteStatus(s.statusPath, s.Status()); err != nil {
					log.Warn("status file update failed", "error", err)
				}
			}
		}
	}
}
