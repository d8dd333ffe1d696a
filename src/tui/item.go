package tui

import (
	"fmt"

	"checkrelay/src/reconcile"
	"checkrelay/src/store"
)

// Item represents one tracked build in the dashboard list. It wraps the
// stored snapshot and implements bubbles/list.Item.
type Item struct {
	Snapshot store.Snapshot
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Snapshot.Key }

// Title returns the primary text for the item (required by list.Item).
func (i Item) Title() string { return i.Snapshot.Key }

// Description returns the secondary text for the item (required by list.Item).
func (i Item) Description() string {
	return fmt.Sprintf("%d jobs", len(i.Snapshot.Records))
}

// Progress buckets the snapshot's records by derived check status.
func (i Item) Progress() (queued, running, completed int) {
	for _, rec := range i.Snapshot.Records {
		switch reconcile.CheckStatus(rec.State) {
		case reconcile.StatusCompleted:
			completed++
		case reconcile.StatusInProgress:
			running++
		default:
			queued++
		}
	}
	return queued, running, completed
}

// Failed reports whether any record concluded in failure. Jobs allowed to
// fail do not count.
func (i Item) Failed() bool {
	for _, rec := range i.Snapshot.Records {
		if reconcile.CheckConclusion(rec) == reconcile.ConclusionFailure {
			return true
		}
	}
	return false
}

// Settled reports whether every record has completed.
func (i Item) Settled() bool {
	for _, rec := range i.Snapshot.Records {
		if reconcile.CheckStatus(rec.State) != reconcile.StatusCompleted {
			return false
		}
	}
	return len(i.Snapshot.Records) > 0
}
