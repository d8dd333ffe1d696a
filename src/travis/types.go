package travis

import (
	"encoding/json"
	"strings"
	"time"
)

// Build is a provider build with its jobs embedded.
type Build struct {
	ID                int64  `json:"id"`
	State             string `json:"state"`
	EventType         string `json:"event_type"`
	PullRequestNumber int    `json:"pull_request_number"`
	Jobs              []Job  `json:"jobs"`
}

// Job is one job within a build.
type Job struct {
	ID           int64     `json:"id"`
	State        string    `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	AllowFailure bool      `json:"allow_failure"`
	Config       JobConfig `json:"config"`
}

// JobConfig is the subset of a job's configuration the relay inspects.
type JobConfig struct {
	Name string    `json:"name"`
	Env  envString `json:"env"`
}

// envString tolerates the env field arriving as a string or a list of
// strings, which varies with matrix expansion. Shapes carrying no usable
// text decode to the empty string.
type envString string

func (e *envString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = envString(s)
	case '[':
		var parts []string
		if err := json.Unmarshal(data, &parts); err == nil {
			*e = envString(strings.Join(parts, " "))
		}
	}
	return nil
}
