package logscan

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// Provider control markers: travis_fold:start:worker_info,
	// travis_time:end:0a1b2c3d:start=...,duration=...
	providerMarker = regexp.MustCompile(`travis_(?:fold|time):(?:start|end):\S*`)
)

// CleanLine strips provider control markers, ANSI escape sequences, and
// carriage returns from one raw log line. Fence matching and payload
// accumulation both operate on cleaned lines only.
func CleanLine(s string) string {
	s = providerMarker.ReplaceAllString(s, "")
	s = ansi.Strip(s)
	return strings.ReplaceAll(s, "\r", "")
}
