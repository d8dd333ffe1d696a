package travis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"checkrelay/src/contracts"
	"checkrelay/src/logger"
)

// labelPattern recognizes the env token marking a job as check-tracked.
// The value may be double-quoted, single-quoted, or a bare token.
var labelPattern = regexp.MustCompile(`CHECK_NAME=(?:"([^"]*)"|'([^']*)'|(\S+))`)

// ErrNotPullRequest marks builds whose trigger is not a pull request. They
// carry no checks and are skipped without touching stored state.
var ErrNotPullRequest = errors.New("build not triggered by a pull request")

// Source turns provider builds into canonical job records.
type Source struct {
	client *Client
	log    logger.Logger
	now    func() time.Time
}

// NewSource creates a Source backed by the given client.
func NewSource(client *Client, log logger.Logger) *Source {
	return &Source{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Jobs fetches the build and returns records for its labeled jobs, in
// provider order. Unlabeled jobs are excluded without comment; non
// pull-request builds return ErrNotPullRequest.
func (s *Source) Jobs(ctx context.Context, info contracts.BuildInfo) ([]contracts.JobRecord, error) {
	build, err := s.client.GetBuild(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching build %s: %w", info.Key(), err)
	}

	if build.EventType != "pull_request" {
		return nil, fmt.Errorf("%w: build %s has event type %q", ErrNotPullRequest, info.Key(), build.EventType)
	}

	var records []contracts.JobRecord
	for _, job := range build.Jobs {
		name, ok := checkLabel(string(job.Config.Env))
		if !ok {
			continue
		}
		started := job.StartedAt
		if started.IsZero() {
			// The provider reports no start time until a worker picks the
			// job up. The fetch time keeps the check's clock plausible.
			started = s.now()
		}
		records = append(records, contracts.JobRecord{
			JobID:         job.ID,
			Name:          name,
			State:         job.State,
			StartedAt:     started,
			FinishedAt:    job.FinishedAt,
			IgnoreFailure: job.AllowFailure,
			URL:           jobURL(info, job.ID),
		})
	}
	s.log.Debug("build %s: %d of %d jobs labeled", info.Key(), len(records), len(build.Jobs))

	return records, nil
}

// checkLabel extracts the check name from a job's env configuration.
// Accepted forms: CHECK_NAME=lint, CHECK_NAME="unit tests",
// CHECK_NAME='unit tests'. Quotes are stripped; an empty value does not
// count as a label.
func checkLabel(env string) (string, bool) {
	m := labelPattern.FindStringSubmatch(env)
	if m == nil {
		return "", false
	}
	for _, group := range m[1:] {
		if group != "" {
			return group, true
		}
	}
	return "", false
}

func jobURL(info contracts.BuildInfo, jobID int64) string {
	return fmt.Sprintf("https://%s/%s/jobs/%d", info.Domain, info.Slug(), jobID)
}
