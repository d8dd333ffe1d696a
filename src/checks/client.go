// Package checks provides a client for the GitHub Checks API.
package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a GitHub Checks API client.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Checks API client. The token must authorize
// checks:write on the target repositories.
func NewClient(token string) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: "https://api.github.com",
	}
}

// CreateRun creates a check run on the repository and returns its id.
func (c *Client) CreateRun(ctx context.Context, owner, repo string, run RunRequest) (int64, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs", c.baseURL, owner, repo)

	resp, err := c.send(ctx, "POST", url, run)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return created.ID, nil
}

// UpdateRun patches an existing check run.
func (c *Client) UpdateRun(ctx context.Context, owner, repo string, runID int64, run RunRequest) error {
	url := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d", c.baseURL, owner, repo, runID)

	resp, err := c.send(ctx, "PATCH", url, run)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// ListRunsForRef returns the check runs attached to a commit (handles
// pagination). A nonzero appID narrows the listing to runs issued by that
// GitHub App.
func (c *Client) ListRunsForRef(ctx context.Context, owner, repo, ref string, appID int64) ([]Run, error) {
	var allRuns []Run
	page := 1
	perPage := 100 // GitHub's max per page

	for {
		url := fmt.Sprintf("%s/repos/%s/%s/commits/%s/check-runs?per_page=%d&page=%d",
			c.baseURL, owner, repo, ref, perPage, page)
		if appID != 0 {
			url += fmt.Sprintf("&app_id=%d", appID)
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
		}

		var listResp listRunsResponse
		if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body.Close()

		allRuns = append(allRuns, listResp.CheckRuns...)

		if len(allRuns) >= listResp.TotalCount || len(listResp.CheckRuns) < perPage {
			break
		}

		page++
	}

	return allRuns, nil
}

func (c *Client) send(ctx context.Context, method, url string, run RunRequest) (*http.Response, error) {
	payload, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
