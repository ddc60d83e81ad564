// Package watcher watches the configuration file and signals the daemon
// to reload tunable settings without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/ktune/pkg/ktune/logging"
)

// debounceWindow coalesces the burst of events an editor save produces.
const debounceWindow = 250 * time.Millisecond

// Watcher invokes a callback when the watched config file changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	onChange func()
}

// New watches the given config file. The parent directory is watched
// rather than the file itself, because editors replace files by rename
// and the old inode's watch would go stale.
func New(configPath string, onChange func()) (*Watcher, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{fsw: fsw, path: abs, onChange: onChange}, nil
}

// Run dispatches change events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.Get("watcher")
	defer w.fsw.Close()

	var pending *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounceWindow)
				fire = pending.C
			} else {
				pending.Reset(debounceWindow)
			}

		case <-fire:
			pending = nil
			fire = nil
			log.Info("configuration changed, reloading", "path", w.path)
			w.onChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", "error", err)
		}
	}
}
