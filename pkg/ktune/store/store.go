// Package store provides Badger DB-backed persistence for the model
// state, so the daemon can warm-start from the last fitted curve instead
// of rerunning a cold-start scan.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/ktune/pkg/ktune/types"
)

// Key prefixes for different data types
const (
	prefixSample = "s:" // Sample window, ordered by sequence
	prefixMeta   = "m:" // Curve parameters, profile, window bookkeeping
)

const (
	keyParams  = prefixMeta + "params"
	keyProfile = prefixMeta + "profile"
	keyWindow  = prefixMeta + "window"
	keyUpdated = prefixMeta + "updated"
)

// ErrNoState indicates the store holds no persisted model.
var ErrNoState = errors.New("no persisted model state")

// Store is model state storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the persisted model state with the given snapshot. All
// writes and deletes go through one batch, so a failed save leaves the
// previously persisted state intact.
func (s *Store) Save(state *types.ModelState) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	meta := map[string]any{
		keyParams:  state.Params,
		keyProfile: state.Profile,
		keyWindow:  state.WindowSize,
		keyUpdated: state.UpdatedAt,
	}
	for key, value := range meta {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		if err := wb.Set([]byte(key), data); err != nil {
			return err
		}
	}

	for i, sample := range state.Samples {
		data, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("marshal sample %d: %w", i, err)
		}
		key := fmt.Sprintf("%s%012d", prefixSample, i)
		if err := wb.Set([]byte(key), data); err != nil {
			return err
		}
	}

	// A shrunken window must not leave orphans from a previously larger
	// one behind the new samples.
	stale, err := s.staleSampleKeys(len(state.Samples))
	if err != nil {
		return fmt.Errorf("scan stale samples: %w", err)
	}
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}

	return wb.Flush()
}

// staleSampleKeys returns the persisted sample keys at indices >= from.
// Sample keys are zero-padded, so lexicographic iteration order matches
// index order.
func (s *Store) staleSampleKeys(from int) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixSample)
		start := []byte(fmt.Sprintf("%s%012d", prefixSample, from))
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Load reads the persisted model state. It fails with ErrNoState when the
// store has never been saved to.
func (s *Store) Load() (*types.ModelState, error) {
	state := &types.ModelState{}

	err := s.db.View(func(txn *badger.Txn) error {
		if err := readJSON(txn, keyParams, &state.Params); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoState
			}
			return err
		}
		if err := readJSON(txn, keyProfile, &state.Profile); err != nil {
			return err
		}
		if err := readJSON(txn, keyWindow, &state.WindowSize); err != nil {
			return err
		}
		var updated time.Time
		if err := readJSON(txn, keyUpdated, &updated); err == nil {
			state.UpdatedAt = updated
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixSample)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sample types.Sample
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			})
			if err != nil {
				return fmt.Errorf("decode sample %s: %w", it.Item().Key(), err)
			}
			state.Samples = append(state.Samples, sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}

func readJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
