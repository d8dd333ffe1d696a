// Package logscan extracts the fenced output block a labeled job may print
// into its build log. A block is opened by a line reading "---output", closed
// by a line reading "---", and carries a JSON payload in between. Logs are
// read while the build may still be running, so a stream that ends before a
// conclusive outcome is reported as incomplete and retried by Fetcher.
package logscan

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	openFence  = "---output"
	closeFence = "---"

	// Log lines can be enormous (bundler output, stack traces). One line
	// above this size aborts the scan as incomplete rather than OOMing.
	maxLineBytes = 1024 * 1024
)

// finishedMarker is the provider's end-of-log line. Seeing it while still
// scanning means the build finished without emitting a block.
var finishedMarker = regexp.MustCompile(`^Done\. Your build exited with \d+`)

// ErrIncomplete reports a log stream that ended, errored, or timed out
// before the scan reached a conclusive outcome. The log is still being
// written in that case, so the caller may retry.
var ErrIncomplete = errors.New("log stream incomplete")

// ParseError reports a completed output block whose payload was not valid
// JSON. Re-reading the stream would yield the same payload, so it is never
// retried.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON in output block: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type scanState int

const (
	// stateScanning is the initial state, before the opening fence.
	stateScanning scanState = iota
	// stateInBlock accumulates payload lines until the closing fence.
	stateInBlock
	// stateComplete means a closing fence was seen; the payload is final.
	stateComplete
	// stateFinished means the provider's end-of-log marker was seen while
	// still scanning; no block is coming.
	stateFinished
)

// machine is the per-extraction parser. A machine value covers a single pass
// over one log stream and is never reused.
type machine struct {
	st    scanState
	lines []string
}

// feed consumes one raw log line and reports whether the machine reached a
// terminal state. Terminal machines ignore any further input.
func (m *machine) feed(raw string) bool {
	line := strings.TrimSpace(CleanLine(raw))
	switch m.st {
	case stateScanning:
		if line == openFence {
			m.st = stateInBlock
			return false
		}
		if finishedMarker.MatchString(line) {
			m.st = stateFinished
			return true
		}
	case stateInBlock:
		if line == closeFence {
			m.st = stateComplete
			return true
		}
		m.lines = append(m.lines, line)
	}
	return false
}

// result maps the machine state at end of input to the extraction outcome.
func (m *machine) result() (json.RawMessage, error) {
	switch m.st {
	case stateComplete:
		payload := strings.Join(m.lines, "")
		var v interface{}
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, &ParseError{Err: err}
		}
		return json.RawMessage(payload), nil
	case stateFinished:
		return nil, nil
	default:
		return nil, ErrIncomplete
	}
}

// Extract runs the fence scan over one log stream. It returns the raw JSON
// payload of the first completed block, (nil, nil) when the finished log
// contains no block, ErrIncomplete when the stream ended early, or a
// *ParseError for a malformed payload.
//
// The context bounds the attempt: cancellation between lines stops the scan,
// and callers are expected to derive the stream itself from the same context
// so a blocked read is also cut short.
func Extract(ctx context.Context, r io.Reader) (json.RawMessage, error) {
	m := &machine{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if m.feed(sc.Text()) {
			return m.result()
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	// Clean end of input: only a terminal state yields a result.
	return m.result()
}
