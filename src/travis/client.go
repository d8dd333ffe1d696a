// Package travis provides a client for the Travis CI v3 API and turns
// provider builds into the relay's canonical job records.
package travis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiVersion = "3"

// Client is a Travis CI API client.
type Client struct {
	token      string
	httpClient *http.Client
	logClient  *http.Client
	baseURL    string
}

// NewClient creates a client for the given API host (e.g. "api.travis-ci.com").
// The token may be empty for repositories with public build access.
func NewClient(host, token string) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Log streams are read while a build is still writing them, so the
		// log client carries no overall timeout. The request context bounds
		// each read instead.
		logClient: &http.Client{},
		baseURL:   "https://" + host,
	}
}

// GetBuild fetches a build and its jobs, including each job's config.
func (c *Client) GetBuild(ctx context.Context, buildID int64) (*Build, error) {
	url := fmt.Sprintf("%s/build/%d?include=job.config", c.baseURL, buildID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Travis API error %d: %s", resp.StatusCode, string(body))
	}

	var build Build
	if err := json.NewDecoder(resp.Body).Decode(&build); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &build, nil
}

// JobLog opens the raw text log for a job. The stream may end mid-write
// while the job is still running; retry policy belongs to the caller.
func (c *Client) JobLog(ctx context.Context, jobID int64) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/job/%d/log.txt", c.baseURL, jobID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.logClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("Travis API error %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Travis-API-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
}
