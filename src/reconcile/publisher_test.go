package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkrelay/src/checks"
	"checkrelay/src/contracts"
	"checkrelay/src/logger"
)

// fakeChecks records requests and fails on demand. Safe for the publisher's
// concurrent calls.
type fakeChecks struct {
	mu         sync.Mutex
	nextID     int64
	created    map[string]checks.RunRequest // by name
	updated    map[int64]checks.RunRequest  // by run id
	failCreate map[string]bool
	failUpdate map[int64]bool
}

func newFakeChecks() *fakeChecks {
	return &fakeChecks{
		nextID:     500,
		created:    make(map[string]checks.RunRequest),
		updated:    make(map[int64]checks.RunRequest),
		failCreate: make(map[string]bool),
		failUpdate: make(map[int64]bool),
	}
}

func (f *fakeChecks) CreateRun(ctx context.Context, owner, repo string, run checks.RunRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate[run.Name] {
		return 0, errors.New("422 from API")
	}
	f.nextID++
	f.created[run.Name] = run
	return f.nextID, nil
}

func (f *fakeChecks) UpdateRun(ctx context.Context, owner, repo string, runID int64, run checks.RunRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate[runID] {
		return errors.New("403 from API")
	}
	f.updated[runID] = run
	return nil
}

// fakeOutput serves canned log blocks keyed by job id.
type fakeOutput struct {
	mu     sync.Mutex
	blocks map[int64]json.RawMessage
	errs   map[int64]error
	calls  []int64
}

func (f *fakeOutput) Output(ctx context.Context, jobID int64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	if err, ok := f.errs[jobID]; ok {
		return nil, err
	}
	return f.blocks[jobID], nil
}

func buildInfo() contracts.BuildInfo {
	return contracts.BuildInfo{
		Domain:     "travis-ci.com",
		ID:         123,
		Owner:      "acme",
		Repo:       "rocket",
		HeadSHA:    "abc123",
		HeadBranch: "feature/turbo",
	}
}

func TestPublisherApply(t *testing.T) {
	fc := newFakeChecks()
	fo := &fakeOutput{blocks: map[int64]json.RawMessage{
		1: json.RawMessage(`{"title":"Lint","summary":"clean"}`),
	}}
	p := NewPublisher(fc, fo, logger.NewSilentLogger())

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(5 * time.Minute)
	plan := Plan{
		Create: []contracts.JobRecord{
			{JobID: 1, Name: "lint", State: "passed", StartedAt: started, FinishedAt: finished, URL: "https://travis-ci.com/acme/rocket/jobs/1"},
			{JobID: 2, Name: "tests", State: "started", StartedAt: started},
		},
		Update: []contracts.JobRecord{
			{JobID: 3, Name: "docs", State: "failed", IgnoreFailure: true, StartedAt: started, FinishedAt: finished, CheckRunID: 400},
		},
	}

	done := p.Apply(context.Background(), buildInfo(), plan)

	if len(done) != 3 {
		t.Fatalf("len(done) = %d, want 3", len(done))
	}

	lint, ok := fc.created["lint"]
	if !ok {
		t.Fatal("lint check was not created")
	}
	if lint.HeadSHA != "abc123" {
		t.Errorf("lint head_sha = %q, want abc123", lint.HeadSHA)
	}
	if lint.HeadBranch != "feature/turbo" {
		t.Errorf("lint head_branch = %q, want feature/turbo", lint.HeadBranch)
	}
	if lint.ExternalID != "1" {
		t.Errorf("lint external_id = %q, want 1", lint.ExternalID)
	}
	if lint.Status != StatusCompleted {
		t.Errorf("lint status = %q, want completed", lint.Status)
	}
	if lint.Conclusion != ConclusionSuccess {
		t.Errorf("lint conclusion = %q, want success", lint.Conclusion)
	}
	if lint.CompletedAt == nil || !lint.CompletedAt.Equal(finished) {
		t.Errorf("lint completed_at = %v, want %v", lint.CompletedAt, finished)
	}
	if string(lint.Output) != `{"title":"Lint","summary":"clean"}` {
		t.Errorf("lint output = %s, want the fenced block", lint.Output)
	}

	tests, ok := fc.created["tests"]
	if !ok {
		t.Fatal("tests check was not created")
	}
	if tests.Status != StatusInProgress {
		t.Errorf("tests status = %q, want in_progress", tests.Status)
	}
	if tests.Conclusion != "" {
		t.Errorf("tests conclusion = %q, want empty", tests.Conclusion)
	}
	if tests.Output != nil {
		t.Errorf("tests output = %s, want none", tests.Output)
	}

	docs, ok := fc.updated[400]
	if !ok {
		t.Fatal("docs check was not updated")
	}
	if docs.Conclusion != ConclusionNeutral {
		t.Errorf("docs conclusion = %q, want neutral (failure ignored)", docs.Conclusion)
	}
	if docs.HeadSHA != "" {
		t.Errorf("docs head_sha = %q, updates must not carry commit identity", docs.HeadSHA)
	}

	// Returned records carry annotations back exactly once apiece.
	byJob := make(map[int64]contracts.JobRecord)
	for _, r := range done {
		byJob[r.JobID] = r
	}
	if byJob[1].CheckRunID == 0 || byJob[2].CheckRunID == 0 {
		t.Errorf("created records not annotated: %+v", done)
	}
	if byJob[3].CheckRunID != 400 {
		t.Errorf("updated record run id = %d, want 400", byJob[3].CheckRunID)
	}
}

func TestPublisherCreateFailureIsolated(t *testing.T) {
	fc := newFakeChecks()
	fc.failCreate["lint"] = true
	p := NewPublisher(fc, nil, logger.NewSilentLogger())

	plan := Plan{
		Create: []contracts.JobRecord{
			{JobID: 1, Name: "lint", State: "started"},
			{JobID: 2, Name: "tests", State: "started"},
		},
		Update: []contracts.JobRecord{
			{JobID: 3, Name: "docs", State: "started", CheckRunID: 400},
		},
	}

	done := p.Apply(context.Background(), buildInfo(), plan)

	if _, ok := fc.created["tests"]; !ok {
		t.Error("sibling create did not run after lint create failed")
	}
	if _, ok := fc.updated[400]; !ok {
		t.Error("sibling update did not run after lint create failed")
	}

	for _, r := range done {
		if r.JobID == 1 {
			t.Errorf("failed create must stay untracked, got %+v", r)
		}
	}
	if len(done) != 2 {
		t.Errorf("len(done) = %d, want 2", len(done))
	}
}

func TestPublisherUpdateFailureKeepsRunID(t *testing.T) {
	fc := newFakeChecks()
	fc.failUpdate[400] = true
	p := NewPublisher(fc, nil, logger.NewSilentLogger())

	plan := Plan{
		Update: []contracts.JobRecord{
			{JobID: 3, Name: "docs", State: "passed", CheckRunID: 400},
		},
	}

	done := p.Apply(context.Background(), buildInfo(), plan)
	if len(done) != 1 {
		t.Fatalf("len(done) = %d, want 1", len(done))
	}
	if done[0].CheckRunID != 400 {
		t.Errorf("CheckRunID = %d, want 400 preserved through the failure", done[0].CheckRunID)
	}
}

func TestPublisherOutputFailureDoesNotBlockPublish(t *testing.T) {
	fc := newFakeChecks()
	fo := &fakeOutput{errs: map[int64]error{1: fmt.Errorf("giving up after 10 attempts")}}
	p := NewPublisher(fc, fo, logger.NewSilentLogger())

	plan := Plan{
		Create: []contracts.JobRecord{
			{JobID: 1, Name: "lint", State: "passed"},
		},
	}

	done := p.Apply(context.Background(), buildInfo(), plan)
	if len(done) != 1 {
		t.Fatalf("len(done) = %d, want 1", len(done))
	}

	lint := fc.created["lint"]
	if lint.Output != nil {
		t.Errorf("output = %s, want none after fetch failure", lint.Output)
	}
	if lint.Conclusion != ConclusionSuccess {
		t.Errorf("conclusion = %q, want success regardless of output failure", lint.Conclusion)
	}
}

func TestPublisherFetchesOutputOnlyForCompleted(t *testing.T) {
	fc := newFakeChecks()
	fo := &fakeOutput{}
	p := NewPublisher(fc, fo, logger.NewSilentLogger())

	plan := Plan{
		Create: []contracts.JobRecord{
			{JobID: 1, Name: "lint", State: "passed"},
			{JobID: 2, Name: "tests", State: "started"},
			{JobID: 3, Name: "docs", State: "created"},
		},
	}

	p.Apply(context.Background(), buildInfo(), plan)

	if len(fo.calls) != 1 || fo.calls[0] != 1 {
		t.Errorf("output fetched for jobs %v, want [1]", fo.calls)
	}
}
