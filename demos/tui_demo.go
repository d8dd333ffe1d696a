// Demo program to showcase the checkrelay dashboard with a realistic
// spread of build states.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"checkrelay/src/contracts"
	"checkrelay/src/store"
	"checkrelay/src/tui"
)

func main() {
	fmt.Println("Seeding sample build data...")

	st := store.NewMemoryStore()
	builds := generateSampleData()
	for key, records := range builds {
		if _, err := st.Replace(context.Background(), key, records); err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding store: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Loaded %d builds.\n", len(builds))
	fmt.Println("Launching dashboard...")
	time.Sleep(500 * time.Millisecond) // Brief pause for effect

	if err := tui.Start(st); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}

func generateSampleData() map[string][]contracts.JobRecord {
	now := time.Now()
	jobURL := func(id int64) string {
		return fmt.Sprintf("https://app.travis-ci.com/github/acme/platform/jobs/%d", id)
	}

	return map[string][]contracts.JobRecord{
		// A matrix build mid-flight: two done, two running, one queued.
		"travis-ci.com/81501": {
			{JobID: 815011, Name: "unit-tests-linux", State: "passed",
				StartedAt: now.Add(-12 * time.Minute), FinishedAt: now.Add(-4 * time.Minute),
				URL: jobURL(815011), CheckRunID: 9001},
			{JobID: 815012, Name: "unit-tests-macos", State: "passed",
				StartedAt: now.Add(-12 * time.Minute), FinishedAt: now.Add(-3 * time.Minute),
				URL: jobURL(815012), CheckRunID: 9002},
			{JobID: 815013, Name: "integration-postgres", State: "started",
				StartedAt: now.Add(-9 * time.Minute),
				URL:       jobURL(815013), CheckRunID: 9003},
			{JobID: 815014, Name: "integration-redis", State: "started",
				StartedAt: now.Add(-9 * time.Minute),
				URL:       jobURL(815014), CheckRunID: 9004},
			{JobID: 815015, Name: "e2e-chrome", State: "created",
				StartedAt: now.Add(-9 * time.Minute),
				URL:       jobURL(815015)},
		},

		// A red build: one hard failure, one failure the build tolerates.
		"travis-ci.com/81497": {
			{JobID: 814971, Name: "unit-tests-linux", State: "failed",
				StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2 * time.Hour).Add(6 * time.Minute),
				URL: jobURL(814971), CheckRunID: 8801},
			{JobID: 814972, Name: "lint-nightly-go", State: "failed", IgnoreFailure: true,
				StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2 * time.Hour).Add(2 * time.Minute),
				URL: jobURL(814972), CheckRunID: 8802},
			{JobID: 814973, Name: "docs-build", State: "passed",
				StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2 * time.Hour).Add(3 * time.Minute),
				URL: jobURL(814973), CheckRunID: 8803},
		},

		// A settled green build from yesterday.
		"travis-ci.com/81460": {
			{JobID: 814601, Name: "unit-tests-linux", State: "passed",
				StartedAt: now.Add(-26 * time.Hour), FinishedAt: now.Add(-26 * time.Hour).Add(7 * time.Minute),
				URL: jobURL(814601), CheckRunID: 8501},
			{JobID: 814602, Name: "e2e-chrome", State: "passed",
				StartedAt: now.Add(-26 * time.Hour), FinishedAt: now.Add(-26 * time.Hour).Add(14 * time.Minute),
				URL: jobURL(814602), CheckRunID: 8502},
		},

		// A build whose event just arrived: no checks published yet.
		"travis-ci.com/81502": {
			{JobID: 815021, Name: "unit-tests-linux", State: "created",
				StartedAt: now, URL: jobURL(815021)},
			{JobID: 815022, Name: "security-scan", State: "created",
				StartedAt: now, URL: jobURL(815022)},
		},
	}
}
