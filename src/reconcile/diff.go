// Package reconcile computes and applies the check-run operations that bring
// GitHub in line with the provider's job states.
package reconcile

import (
	"strconv"

	"checkrelay/src/checks"
	"checkrelay/src/contracts"
)

// Check run statuses derived from provider job states.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Check run conclusions derived from completed provider states.
const (
	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionNeutral   = "neutral"
	ConclusionCancelled = "cancelled"
)

// Plan is the set of operations one reconciliation pass must apply.
type Plan struct {
	// Create holds records with no check run behind them yet.
	Create []contracts.JobRecord
	// Update holds records whose derived status or name changed, each
	// carrying the check run id discovered in an earlier cycle.
	Update []contracts.JobRecord
}

// Empty reports whether the plan contains no operations.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0
}

// Diff compares the previously stored records against the freshly fetched
// ones and produces the operations to apply. A previous record only counts
// as a match when it carries a check run id; otherwise its create failed (or
// never ran) and the current record is created again. Records present only
// in previous are dropped implicitly; the provider's job list is
// authoritative and no synthetic removal is emitted.
func Diff(previous, current []contracts.JobRecord) Plan {
	prevByID := make(map[int64]contracts.JobRecord, len(previous))
	for _, rec := range previous {
		prevByID[rec.JobID] = rec
	}

	var plan Plan
	for _, rec := range current {
		prev, ok := prevByID[rec.JobID]
		if !ok || prev.CheckRunID == 0 {
			plan.Create = append(plan.Create, rec)
			continue
		}
		if CheckStatus(prev.State) == CheckStatus(rec.State) && prev.Name == rec.Name {
			continue
		}
		rec.CheckRunID = prev.CheckRunID
		plan.Update = append(plan.Update, rec)
	}
	return plan
}

// CheckStatus buckets a provider job state into the three check run
// statuses.
func CheckStatus(state string) string {
	switch state {
	case "passed", "failed", "errored", "canceled":
		return StatusCompleted
	case "started":
		return StatusInProgress
	default:
		return StatusQueued
	}
}

// CheckConclusion derives the conclusion for a completed record. It returns
// the empty string for records that are not completed yet.
func CheckConclusion(rec contracts.JobRecord) string {
	switch rec.State {
	case "passed":
		return ConclusionSuccess
	case "failed":
		if rec.IgnoreFailure {
			return ConclusionNeutral
		}
		return ConclusionFailure
	case "canceled":
		return ConclusionCancelled
	case "errored":
		return ConclusionNeutral
	default:
		if CheckStatus(rec.State) == StatusCompleted {
			return ConclusionNeutral
		}
		return ""
	}
}

// Recover synthesizes a previous snapshot from check runs that already exist
// on the head commit, matched to current records by external id. It lets a
// fresh process adopt runs it created before a restart instead of posting
// duplicates.
func Recover(existing []checks.Run, current []contracts.JobRecord) []contracts.JobRecord {
	runsByExternalID := make(map[string]checks.Run, len(existing))
	for _, run := range existing {
		if run.ExternalID != "" {
			runsByExternalID[run.ExternalID] = run
		}
	}

	var previous []contracts.JobRecord
	for _, rec := range current {
		run, ok := runsByExternalID[strconv.FormatInt(rec.JobID, 10)]
		if !ok {
			continue
		}
		previous = append(previous, contracts.JobRecord{
			JobID:      rec.JobID,
			Name:       run.Name,
			State:      stateForRun(run),
			URL:        run.DetailsURL,
			CheckRunID: run.ID,
		})
	}
	return previous
}

// stateForRun maps a check run back to a provider state in the matching
// status bucket. Only the bucket matters for diffing, so completed runs with
// an unrecognized conclusion land on "errored".
func stateForRun(run checks.Run) string {
	if run.Status != StatusCompleted {
		if run.Status == StatusInProgress {
			return "started"
		}
		return "created"
	}
	switch run.Conclusion {
	case ConclusionSuccess:
		return "passed"
	case ConclusionFailure:
		return "failed"
	case ConclusionCancelled:
		return "canceled"
	default:
		return "errored"
	}
}
