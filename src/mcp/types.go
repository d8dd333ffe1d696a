// Package mcp exposes the relay's build memory over the Model Context
// Protocol so operator tooling can inspect and repair it.
package mcp

import (
	"time"

	"checkrelay/src/contracts"
	"checkrelay/src/reconcile"
	"checkrelay/src/store"
)

// BuildSummary is one row of the list_builds response.
type BuildSummary struct {
	Key       string         `json:"key"`
	Jobs      int            `json:"jobs"`
	States    map[string]int `json:"states"`
	Settled   bool           `json:"settled"`
	UpdatedAt string         `json:"updated_at"`
}

// BuildDetail is the get_build response.
type BuildDetail struct {
	Key       string      `json:"key"`
	UpdatedAt string      `json:"updated_at,omitempty"`
	Records   []JobDetail `json:"records"`
}

// JobDetail is a stored record augmented with its derived check state.
type JobDetail struct {
	JobID      int64  `json:"job_id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
	CheckRunID int64  `json:"check_run_id,omitempty"`
	URL        string `json:"url,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// Summarize condenses a snapshot into a list_builds row.
func Summarize(snap store.Snapshot) BuildSummary {
	states := make(map[string]int)
	settled := len(snap.Records) > 0

	for _, rec := range snap.Records {
		states[rec.State]++
		if reconcile.CheckStatus(rec.State) != reconcile.StatusCompleted {
			settled = false
		}
	}

	return BuildSummary{
		Key:       snap.Key,
		Jobs:      len(snap.Records),
		States:    states,
		Settled:   settled,
		UpdatedAt: snap.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Detail expands a snapshot into the get_build response. UpdatedAt is
// omitted when the snapshot carries no timestamp.
func Detail(snap store.Snapshot) BuildDetail {
	records := make([]JobDetail, 0, len(snap.Records))
	for _, rec := range snap.Records {
		records = append(records, detailRecord(rec))
	}

	detail := BuildDetail{
		Key:     snap.Key,
		Records: records,
	}
	if !snap.UpdatedAt.IsZero() {
		detail.UpdatedAt = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return detail
}

func detailRecord(rec contracts.JobRecord) JobDetail {
	detail := JobDetail{
		JobID:      rec.JobID,
		Name:       rec.Name,
		State:      rec.State,
		Status:     reconcile.CheckStatus(rec.State),
		Conclusion: reconcile.CheckConclusion(rec),
		CheckRunID: rec.CheckRunID,
		URL:        rec.URL,
	}
	if !rec.StartedAt.IsZero() {
		detail.StartedAt = rec.StartedAt.UTC().Format(time.RFC3339)
	}
	if !rec.FinishedAt.IsZero() {
		detail.FinishedAt = rec.FinishedAt.UTC().Format(time.RFC3339)
	}
	return detail
}
