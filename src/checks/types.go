package checks

import (
	"encoding/json"
	"time"
)

// RunRequest is the body for creating or updating a check run. Zero-valued
// fields stay off the wire so updates only touch what they mention.
type RunRequest struct {
	Name       string `json:"name,omitempty"`
	HeadSHA    string `json:"head_sha,omitempty"`
	HeadBranch string `json:"head_branch,omitempty"`
	DetailsURL string `json:"details_url,omitempty"`
	// ExternalID carries the provider job id for cross-referencing.
	ExternalID  string     `json:"external_id,omitempty"`
	Status      string     `json:"status,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Conclusion  string     `json:"conclusion,omitempty"`
	// Output is passed through verbatim as produced by the job's log block.
	Output json.RawMessage `json:"output,omitempty"`
}

// Run is a check run as returned by the API.
type Run struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadSHA    string `json:"head_sha"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	ExternalID string `json:"external_id"`
	DetailsURL string `json:"details_url"`
	App        App    `json:"app"`
}

// App identifies the GitHub App a run was issued by.
type App struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// listRunsResponse is the API response for listing check runs on a commit.
type listRunsResponse struct {
	TotalCount int   `json:"total_count"`
	CheckRuns  []Run `json:"check_runs"`
}
