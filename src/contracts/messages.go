// Package contracts defines the shared types exchanged between the webhook
// intake, the broker, and the relay agents.
package contracts

import (
	"fmt"
	"time"
)

// BuildInfo identifies one provider build and the repository it belongs to.
// It is derived once per webhook event and passed through the pipeline
// unchanged.
type BuildInfo struct {
	// Provider domain hosting the build (e.g. "travis-ci.com").
	Domain string `json:"domain"`
	// Numeric build identifier, unique within a domain.
	ID int64 `json:"id"`
	// Repository owner (user or organization).
	Owner string `json:"owner"`
	// Repository name.
	Repo string `json:"repo"`
	// Commit SHA the check runs attach to.
	HeadSHA string `json:"head_sha"`
	// Source branch of the pull request. Empty when the provider omits it.
	HeadBranch string `json:"head_branch,omitempty"`
}

// Key returns the identity used for per-build serialization, broker
// partitioning, and snapshot storage. Builds from different domains never
// collide even when their numeric ids do.
func (b BuildInfo) Key() string {
	return fmt.Sprintf("%s/%d", b.Domain, b.ID)
}

// Slug returns the "owner/repo" form used in provider and GitHub URLs.
func (b BuildInfo) Slug() string {
	return b.Owner + "/" + b.Repo
}

// JobRecord is the canonical snapshot of one labeled provider job. Records
// are rebuilt wholesale from the provider on every fetch; CheckRunID is the
// only field annotated after the fact.
type JobRecord struct {
	// Provider job identifier, the diff key.
	JobID int64 `json:"job_id"`
	// Check name taken from the job's label.
	Name string `json:"name"`
	// Raw provider state (e.g. "created", "started", "passed").
	State string `json:"state"`
	// Time the job started. Falls back to the fetch time while the provider
	// has not reported one.
	StartedAt time.Time `json:"started_at"`
	// Time the job finished. Zero while the job is still running.
	FinishedAt time.Time `json:"finished_at"`
	// True when the provider marks the job as allowed to fail.
	IgnoreFailure bool `json:"ignore_failure"`
	// Link to the job on the provider, used as the check details URL.
	URL string `json:"url"`
	// GitHub check run backing this job. Zero until a create succeeds.
	CheckRunID int64 `json:"check_run_id,omitempty"`
}

// BuildEvent is the broker message produced by the webhook intake for every
// well-formed provider notification.
// Published to: checkrelay.builds
// Key: BuildInfo.Key()
type BuildEvent struct {
	Build BuildInfo `json:"build"`
	// Intake-assigned id for correlating log lines across processes.
	DeliveryID string `json:"delivery_id"`
	// Time the intake accepted the event.
	ReceivedAt time.Time `json:"received_at"`
}

// TopicBuilds carries build events from the webhook intake to the relay
// agents. Keyed by build so one agent instance owns each build.
const TopicBuilds = "checkrelay.builds"
