package logscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"checkrelay/src/logger"
)

// Defaults for Fetcher when the corresponding field is zero.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultAttempts = 10
	DefaultBackoff  = 3 * time.Second
)

// LogSource opens the raw log stream for one provider job.
type LogSource interface {
	JobLog(ctx context.Context, jobID int64) (io.ReadCloser, error)
}

// Fetcher extracts fenced output from job logs, retrying streams that end
// before the provider has finished writing them. Retries use a fixed backoff
// and apply only to incomplete streams; parse failures surface immediately.
type Fetcher struct {
	Source LogSource
	Log    logger.Logger

	// Timeout bounds one attempt, from opening the stream to the scan
	// outcome.
	Timeout time.Duration
	// Attempts bounds the total number of attempts per job.
	Attempts int
	// Backoff is the fixed sleep between attempts.
	Backoff time.Duration
}

// NewFetcher returns a Fetcher with the default timeout, attempt bound, and
// backoff.
func NewFetcher(source LogSource, log logger.Logger) *Fetcher {
	return &Fetcher{
		Source:   source,
		Log:      log,
		Timeout:  DefaultTimeout,
		Attempts: DefaultAttempts,
		Backoff:  DefaultBackoff,
	}
}

// Output returns the job's fenced block payload, or nil when the finished
// log contains none. Exhausting the attempt bound returns a job-scoped error
// wrapping ErrIncomplete.
func (f *Fetcher) Output(ctx context.Context, jobID int64) (json.RawMessage, error) {
	attempts := f.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := f.attempt(ctx, jobID)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, ErrIncomplete) {
			return nil, fmt.Errorf("job %d: %w", jobID, err)
		}
		f.Log.Debug("job %d log incomplete on attempt %d/%d: %v", jobID, attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(f.backoff()):
		case <-ctx.Done():
			return nil, fmt.Errorf("job %d: %w: %v", jobID, ErrIncomplete, ctx.Err())
		}
	}
	return nil, fmt.Errorf("job %d: giving up after %d attempts: %w", jobID, attempts, ErrIncomplete)
}

// attempt opens the stream and runs one scan under the per-attempt timeout.
// Errors opening the stream count as an incomplete attempt: the provider
// serves logs with transient failures while a build is in flight.
func (f *Fetcher) attempt(ctx context.Context, jobID int64) (json.RawMessage, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc, err := f.Source.JobLog(actx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: opening log: %v", ErrIncomplete, err)
	}
	defer rc.Close()
	return Extract(actx, rc)
}

func (f *Fetcher) backoff() time.Duration {
	if f.Backoff <= 0 {
		return DefaultBackoff
	}
	return f.Backoff
}
