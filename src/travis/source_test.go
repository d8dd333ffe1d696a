package travis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkrelay/src/contracts"
	"checkrelay/src/logger"
)

func TestCheckLabel(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		want     string
		wantOK   bool
	}{
		{
			name:   "bare token",
			env:    "GOARCH=amd64 CHECK_NAME=lint FOO=1",
			want:   "lint",
			wantOK: true,
		},
		{
			name:   "double quoted",
			env:    `CHECK_NAME="unit tests"`,
			want:   "unit tests",
			wantOK: true,
		},
		{
			name:   "single quoted",
			env:    `CHECK_NAME='integration suite' DEBUG=1`,
			want:   "integration suite",
			wantOK: true,
		},
		{
			name:   "no label",
			env:    "GOARCH=amd64 CI=true",
			wantOK: false,
		},
		{
			name:   "empty env",
			env:    "",
			wantOK: false,
		},
		{
			name:   "empty quoted value",
			env:    `CHECK_NAME=""`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := checkLabel(tt.env)
			if ok != tt.wantOK {
				t.Fatalf("checkLabel(%q) ok = %v, want %v", tt.env, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("checkLabel(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func testBuildInfo() contracts.BuildInfo {
	return contracts.BuildInfo{
		Domain:  "travis-ci.com",
		ID:      123,
		Owner:   "acme",
		Repo:    "rocket",
		HeadSHA: "abc123",
	}
}

func TestSource_Jobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": 123,
			"state": "started",
			"event_type": "pull_request",
			"jobs": [
				{
					"id": 1001,
					"state": "passed",
					"started_at": "2026-03-01T10:00:00Z",
					"finished_at": "2026-03-01T10:05:00Z",
					"allow_failure": false,
					"config": {"env": "CHECK_NAME=lint"}
				},
				{
					"id": 1002,
					"state": "started",
					"started_at": null,
					"finished_at": null,
					"allow_failure": true,
					"config": {"env": "CHECK_NAME=\"unit tests\""}
				},
				{
					"id": 1003,
					"state": "started",
					"started_at": "2026-03-01T10:01:00Z",
					"finished_at": null,
					"allow_failure": false,
					"config": {"env": "NOT_TRACKED=1"}
				}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient("api.travis-ci.com", "")
	client.baseURL = server.URL
	source := NewSource(client, logger.NewSilentLogger())
	fetchTime := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	source.now = func() time.Time { return fetchTime }

	records, err := source.Jobs(context.Background(), testBuildInfo())
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2 (unlabeled job excluded)", len(records))
	}

	first := records[0]
	if first.JobID != 1001 {
		t.Errorf("JobID = %d, want 1001", first.JobID)
	}
	if first.Name != "lint" {
		t.Errorf("Name = %q, want lint", first.Name)
	}
	if first.State != "passed" {
		t.Errorf("State = %q, want passed", first.State)
	}
	if first.IgnoreFailure {
		t.Error("IgnoreFailure = true, want false")
	}
	if first.URL != "https://travis-ci.com/acme/rocket/jobs/1001" {
		t.Errorf("URL = %q, want provider job URL", first.URL)
	}
	if first.CheckRunID != 0 {
		t.Errorf("CheckRunID = %d, want 0", first.CheckRunID)
	}

	second := records[1]
	if second.Name != "unit tests" {
		t.Errorf("Name = %q, want quoted label stripped", second.Name)
	}
	if !second.IgnoreFailure {
		t.Error("IgnoreFailure = false, want true")
	}
	if !second.StartedAt.Equal(fetchTime) {
		t.Errorf("StartedAt = %v, want fetch time fallback %v", second.StartedAt, fetchTime)
	}
	if !second.FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero", second.FinishedAt)
	}
}

func TestSource_Jobs_NotPullRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 123, "state": "started", "event_type": "push", "jobs": []}`))
	}))
	defer server.Close()

	client := NewClient("api.travis-ci.com", "")
	client.baseURL = server.URL
	source := NewSource(client, logger.NewSilentLogger())

	_, err := source.Jobs(context.Background(), testBuildInfo())
	if !errors.Is(err, ErrNotPullRequest) {
		t.Fatalf("Jobs() error = %v, want ErrNotPullRequest", err)
	}
}

func TestSource_Jobs_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("api.travis-ci.com", "")
	client.baseURL = server.URL
	source := NewSource(client, logger.NewSilentLogger())

	_, err := source.Jobs(context.Background(), testBuildInfo())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, ErrNotPullRequest) {
		t.Error("provider failure must not be classified as a skipped trigger")
	}
}

func TestSource_Jobs_NoLabeledJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": 123,
			"state": "started",
			"event_type": "pull_request",
			"jobs": [
				{"id": 1, "state": "started", "config": {"env": "PLAIN=1"}}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient("api.travis-ci.com", "")
	client.baseURL = server.URL
	source := NewSource(client, logger.NewSilentLogger())

	records, err := source.Jobs(context.Background(), testBuildInfo())
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}
