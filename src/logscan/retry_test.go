package logscan

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"checkrelay/src/logger"
)

const (
	completeLog = "---output\n{\"ok\":true}\n---\nDone. Your build exited with 0.\n"
	runningLog  = "$ make test\nstill running\n"
	finishedLog = "$ make test\nok\nDone. Your build exited with 0.\n"
)

// stubSource serves a scripted sequence of log streams, one per call.
type stubSource struct {
	bodies []string
	errs   []error
	calls  int
}

func (s *stubSource) JobLog(ctx context.Context, jobID int64) (io.ReadCloser, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.bodies) {
		i = len(s.bodies) - 1
	}
	return io.NopCloser(strings.NewReader(s.bodies[i])), nil
}

func testFetcher(src LogSource, attempts int) *Fetcher {
	return &Fetcher{
		Source:   src,
		Log:      logger.NewSilentLogger(),
		Timeout:  time.Second,
		Attempts: attempts,
		Backoff:  time.Millisecond,
	}
}

func TestFetcherRetriesIncompleteStream(t *testing.T) {
	src := &stubSource{bodies: []string{runningLog, runningLog, completeLog}}
	f := testFetcher(src, 10)

	got, err := f.Output(context.Background(), 42)
	if err != nil {
		t.Fatalf("Output() unexpected error: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("Output() = %q, want %q", got, `{"ok":true}`)
	}
	if src.calls != 3 {
		t.Errorf("source called %d times, want 3", src.calls)
	}
}

func TestFetcherNoBlockInFinishedLog(t *testing.T) {
	src := &stubSource{bodies: []string{finishedLog}}
	f := testFetcher(src, 10)

	got, err := f.Output(context.Background(), 42)
	if err != nil {
		t.Fatalf("Output() unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Output() = %q, want nil", got)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

func TestFetcherDoesNotRetryParseFailure(t *testing.T) {
	src := &stubSource{bodies: []string{"---output\nnot json\n---\n"}}
	f := testFetcher(src, 10)

	_, err := f.Output(context.Background(), 42)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Output() error = %v, want *ParseError", err)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

func TestFetcherRetriesOpenFailure(t *testing.T) {
	src := &stubSource{
		bodies: []string{finishedLog, finishedLog},
		errs:   []error{errors.New("502 bad gateway"), nil},
	}
	f := testFetcher(src, 10)

	got, err := f.Output(context.Background(), 42)
	if err != nil {
		t.Fatalf("Output() unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Output() = %q, want nil", got)
	}
	if src.calls != 2 {
		t.Errorf("source called %d times, want 2", src.calls)
	}
}

func TestFetcherGivesUpAfterAttemptBound(t *testing.T) {
	src := &stubSource{bodies: []string{runningLog}}
	f := testFetcher(src, 3)

	_, err := f.Output(context.Background(), 42)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Output() error = %v, want ErrIncomplete", err)
	}
	if src.calls != 3 {
		t.Errorf("source called %d times, want 3", src.calls)
	}
}

func TestFetcherStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &stubSource{bodies: []string{runningLog}}
	f := testFetcher(src, 10)
	f.Backoff = time.Minute
	cancel()

	_, err := f.Output(ctx, 42)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Output() error = %v, want ErrIncomplete", err)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}
