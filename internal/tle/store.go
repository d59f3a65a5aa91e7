package tle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// snapshot pairs a dataset with its catalog-number index.
type snapshot struct {
	ds    *TLEDataset
	index map[int]int
}

// Store provides thread-safe access to the current TLE dataset.
type Store struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex // serializes fetch operations
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *TLEDataset {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	return snap.ds
}

// Set atomically replaces the current dataset. The first entry wins when a
// catalog number appears more than once.
func (s *Store) Set(ds *TLEDataset) {
	index := make(map[int]int, len(ds.Satellites))
	for i, e := range ds.Satellites {
		if _, ok := index[e.NORADID]; !ok {
			index[e.NORADID] = i
		}
	}
	s.current.Store(&snapshot{ds: ds, index: index})
}

// Lookup returns the entry for a catalog number.
func (s *Store) Lookup(noradID int) (TLEEntry, error) {
	snap := s.current.Load()
	if snap == nil {
		return TLEEntry{}, fmt.Errorf("%w: %w", ErrNoDataset, ErrNotFound)
	}
	i, ok := snap.index[noradID]
	if !ok {
		return TLEEntry{}, fmt.Errorf("NORAD %d: %w", noradID, ErrNotFound)
	}
	return snap.ds.Satellites[i], nil
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.Get()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock acquires the fetch mutex for serializing fetch operations.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the fetch mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
