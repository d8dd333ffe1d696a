package reconcile

import (
	"context"
	"encoding/json"
	"strconv"

	"golang.org/x/sync/errgroup"

	"checkrelay/src/checks"
	"checkrelay/src/contracts"
	"checkrelay/src/logger"
)

// CheckWriter is the slice of the checks client the publisher needs.
type CheckWriter interface {
	CreateRun(ctx context.Context, owner, repo string, run checks.RunRequest) (int64, error)
	UpdateRun(ctx context.Context, owner, repo string, runID int64, run checks.RunRequest) error
}

// OutputFetcher retrieves the optional structured output for a completed
// job. Implemented by logscan.Fetcher.
type OutputFetcher interface {
	Output(ctx context.Context, jobID int64) (json.RawMessage, error)
}

// Publisher executes a reconciliation plan against the checks API.
type Publisher struct {
	checks CheckWriter
	output OutputFetcher
	log    logger.Logger
}

// NewPublisher creates a Publisher. output may be nil, in which case
// completed checks are published without structured output.
func NewPublisher(checks CheckWriter, output OutputFetcher, log logger.Logger) *Publisher {
	return &Publisher{
		checks: checks,
		output: output,
		log:    log,
	}
}

// Apply runs every operation in the plan concurrently and returns the
// records whose check run id is known afterwards: successful creates plus
// every update. One operation's failure is logged and never cancels or
// blocks a sibling operation. Failed creates are left out of the result so
// the record stays untracked and the next cycle retries the create.
func (p *Publisher) Apply(ctx context.Context, info contracts.BuildInfo, plan Plan) []contracts.JobRecord {
	created := make([]contracts.JobRecord, len(plan.Create))
	updated := make([]contracts.JobRecord, len(plan.Update))

	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range plan.Create {
		g.Go(func() error {
			req := p.buildRequest(gctx, info, rec, true)
			id, err := p.checks.CreateRun(gctx, info.Owner, info.Repo, req)
			if err != nil {
				p.log.Error("build %s: creating check %q for job %d: %v", info.Key(), rec.Name, rec.JobID, err)
				// Non-fatal for the pass; slot i stays zero.
				return nil
			}
			rec.CheckRunID = id
			created[i] = rec
			return nil
		})
	}
	for i, rec := range plan.Update {
		g.Go(func() error {
			req := p.buildRequest(gctx, info, rec, false)
			if err := p.checks.UpdateRun(gctx, info.Owner, info.Repo, rec.CheckRunID, req); err != nil {
				p.log.Error("build %s: updating check %q (run %d): %v", info.Key(), rec.Name, rec.CheckRunID, err)
			}
			// The run id stays known whether or not this update landed.
			updated[i] = rec
			return nil
		})
	}
	g.Wait()

	done := make([]contracts.JobRecord, 0, len(created)+len(updated))
	for _, rec := range created {
		if rec.CheckRunID != 0 {
			done = append(done, rec)
		}
	}
	done = append(done, updated...)
	return done
}

// buildRequest assembles the wire payload for one record. Creates carry the
// commit identity and cross-references; completed records additionally get
// a conclusion, the completion time when known, and the job's fenced log
// output. Output retrieval failures degrade to publishing without output.
func (p *Publisher) buildRequest(ctx context.Context, info contracts.BuildInfo, rec contracts.JobRecord, create bool) checks.RunRequest {
	req := checks.RunRequest{
		Name:   rec.Name,
		Status: CheckStatus(rec.State),
	}
	if create {
		req.HeadSHA = info.HeadSHA
		req.HeadBranch = info.HeadBranch
		req.DetailsURL = rec.URL
		req.ExternalID = strconv.FormatInt(rec.JobID, 10)
	}
	if !rec.StartedAt.IsZero() {
		started := rec.StartedAt
		req.StartedAt = &started
	}
	if req.Status != StatusCompleted {
		return req
	}

	req.Conclusion = CheckConclusion(rec)
	if !rec.FinishedAt.IsZero() {
		completed := rec.FinishedAt
		req.CompletedAt = &completed
	}
	if p.output != nil {
		raw, err := p.output.Output(ctx, rec.JobID)
		switch {
		case err != nil:
			p.log.Error("build %s: no output for job %d: %v", info.Key(), rec.JobID, err)
		case raw != nil:
			req.Output = raw
		}
	}
	return req
}
