package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"checkrelay/src/contracts"
	"checkrelay/src/logger"
)

// MemoryStore is a thread-safe in-memory implementation of Store.
// Used for single-process mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	log       logger.Logger
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		log:       logger.NewSilentLogger(),
	}
}

// SetLogger replaces the store's logger. Silent by default.
func (s *MemoryStore) SetLogger(log logger.Logger) {
	s.log = log
}

// Replace swaps the snapshot under key and returns the previous records.
func (s *MemoryStore) Replace(ctx context.Context, key string, records []contracts.JobRecord) ([]contracts.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous []contracts.JobRecord
	if snap, ok := s.snapshots[key]; ok {
		previous = snap.Records
	}

	s.snapshots[key] = Snapshot{
		Key:       key,
		Records:   copyRecords(records),
		UpdatedAt: time.Now(),
	}

	// The previous slice is detached from the map now, safe to hand out.
	return previous, nil
}

// Update merges records into the stored snapshot by job id.
func (s *MemoryStore) Update(ctx context.Context, key string, records []contracts.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[key]
	if !ok {
		// Build was forgotten while a pass was running. Nothing to merge.
		s.log.Debug("[Store] Update for %s skipped, no snapshot", key)
		return nil
	}

	snap.Records = mergeRecords(snap.Records, records)
	snap.UpdatedAt = time.Now()
	s.snapshots[key] = snap

	return nil
}

// Get returns the snapshot records for key, nil when absent.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]contracts.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[key]
	if !ok {
		return nil, nil
	}

	// Return a copy
	return copyRecords(snap.Records), nil
}

// List returns all stored snapshots ordered by key.
func (s *MemoryStore) List(ctx context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snap.Records = copyRecords(snap.Records)
		snapshots = append(snapshots, snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Key < snapshots[j].Key
	})

	return snapshots, nil
}

// Delete removes the snapshot for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, key)
	return nil
}

// Close closes the store (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

func copyRecords(records []contracts.JobRecord) []contracts.JobRecord {
	if records == nil {
		return nil
	}
	out := make([]contracts.JobRecord, len(records))
	copy(out, records)
	return out
}
