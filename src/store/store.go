// Package store defines the interface for persisting build snapshots.
package store

import (
	"context"
	"time"

	"checkrelay/src/contracts"
)

// Snapshot is the stored state for one build key.
type Snapshot struct {
	Key       string
	Records   []contracts.JobRecord
	UpdatedAt time.Time
}

// Store defines the interface for persisting per-build job snapshots.
type Store interface {
	// Replace swaps the snapshot under key for records and returns the
	// previous records, nil when the build was not seen before
	Replace(ctx context.Context, key string, records []contracts.JobRecord) ([]contracts.JobRecord, error)

	// Update merges records into the existing snapshot by job id.
	// Updating a key with no snapshot is a no-op.
	Update(ctx context.Context, key string, records []contracts.JobRecord) error

	// Get returns the snapshot records for key, nil when absent
	Get(ctx context.Context, key string) ([]contracts.JobRecord, error)

	// List returns all stored snapshots ordered by key
	List(ctx context.Context) ([]Snapshot, error)

	// Delete removes the snapshot for key
	Delete(ctx context.Context, key string) error

	// Close closes the store connection
	Close() error
}

// mergeRecords merges updates into base by job id. Records for jobs
// already present overwrite them, new jobs are appended.
func mergeRecords(base, updates []contracts.JobRecord) []contracts.JobRecord {
	merged := make([]contracts.JobRecord, len(base))
	copy(merged, base)

	for _, rec := range updates {
		replaced := false
		for i := range merged {
			if merged[i].JobID == rec.JobID {
				merged[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, rec)
		}
	}

	return merged
}
