// Package feed fetches job postings from the external recruiting feed.
//
// The provider is flaky: it sometimes answers with HTML error pages, wrong
// content types, or transient 5xx. Fetch retries those with exponential
// backoff and classifies terminal failures so the operator UI can tell a
// timeout from a dead endpoint.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
)

// OutageKind classifies a feed provider outage.
type OutageKind string

const (
	OutageTimeout  OutageKind = "timeout"
	OutageHTMLPage OutageKind = "html_error_page"
	OutageBadJSON  OutageKind = "malformed_json"
	OutageHTTP     OutageKind = "http_error"
	OutageNetwork  OutageKind = "network_error"
)

// OutageError is a terminal feed failure after retries were exhausted. It is
// user-visible: Message is safe to render, Detail carries the technical part.
type OutageError struct {
	Kind    OutageKind
	Status  int
	Message string
	Detail  string
}

func (e *OutageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Client fetches jobs from the external feed.
type Client struct {
	cfg        config.FeedConfig
	httpClient *http.Client
}

// NewClient creates a feed client.
func NewClient(cfg config.FeedConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Fetch retrieves the current job list with retry logic. Only 5xx responses
// and network/timeout errors are retried; anything else fails immediately.
func (c *Client) Fetch(ctx context.Context) ([]models.ExternalJob, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		jobs, retryable, err := c.fetchOnce(ctx)
		if err == nil {
			return jobs, nil
		}
		lastErr = err

		if !retryable || attempt == c.cfg.MaxRetries {
			break
		}

		waitTime := backoff(attempt, c.cfg.MaxBackoff)
		log.Printf("[feed] attempt %d/%d failed: %v — retrying in %s", attempt, c.cfg.MaxRetries, err, waitTime)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return nil, lastErr
}

// fetchOnce performs a single fetch attempt with the per-attempt timeout.
func (c *Client) fetchOnce(ctx context.Context) (jobs []models.ExternalJob, retryable bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; JobSync/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return nil, true, &OutageError{
				Kind:    OutageTimeout,
				Message: "Request timeout - the external API took too long to respond",
			}
		}
		return nil, true, &OutageError{
			Kind:    OutageNetwork,
			Message: "Failed to reach the external API",
			Detail:  err.Error(),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &OutageError{
			Kind:    OutageNetwork,
			Message: "Failed to read the external API response",
			Detail:  err.Error(),
		}
	}

	if resp.StatusCode != http.StatusOK {
		outage := &OutageError{
			Kind:    OutageHTTP,
			Status:  resp.StatusCode,
			Message: friendlyHTTPMessage(resp.StatusCode),
			Detail:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
		// Only server-side errors are worth another attempt.
		return nil, resp.StatusCode >= 500, outage
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		text := string(body)
		if strings.Contains(text, "<!DOCTYPE") || strings.Contains(text, "<html") {
			return nil, false, &OutageError{
				Kind:    OutageHTMLPage,
				Status:  resp.StatusCode,
				Message: "The external API returned an HTML error page instead of JSON. The API server may be down or experiencing issues.",
			}
		}
		// Content type may simply be wrong; fall through and try to parse.
	}

	jobs, err = parseJobs(body)
	if err != nil {
		return nil, false, &OutageError{
			Kind:    OutageBadJSON,
			Status:  resp.StatusCode,
			Message: "The external API returned an invalid response format",
			Detail:  truncate(string(body), 500),
		}
	}
	return jobs, false, nil
}

// parseJobs accepts a bare array, an object with one of jobs/data/items
// holding the array, or a single object (wrapped as a one-element list).
func parseJobs(data []byte) ([]models.ExternalJob, error) {
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	switch v := payload.(type) {
	case []interface{}:
		return toJobs(v), nil
	case map[string]interface{}:
		for _, key := range []string{"jobs", "data", "items"} {
			if arr, ok := v[key].([]interface{}); ok {
				return toJobs(arr), nil
			}
		}
		return []models.ExternalJob{models.ExternalJob(v)}, nil
	default:
		return nil, fmt.Errorf("response is neither an array nor an object")
	}
}

func toJobs(raw []interface{}) []models.ExternalJob {
	jobs := make([]models.ExternalJob, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]interface{}); ok {
			jobs = append(jobs, models.ExternalJob(m))
		}
	}
	return jobs
}

// backoff doubles per attempt starting at one second, capped at max.
func backoff(attempt int, max time.Duration) time.Duration {
	wait := time.Duration(1<<uint(attempt-1)) * time.Second
	if wait > max {
		wait = max
	}
	return wait
}

func friendlyHTTPMessage(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "The API endpoint was not found. Please check if the API URL is correct."
	case status == http.StatusForbidden:
		return "Access forbidden. The API may require authentication or have access restrictions."
	case status >= 500:
		return "The external API server is experiencing issues. We tried multiple times but the server is still returning errors. Please try again later."
	default:
		return fmt.Sprintf("The external API returned an error (%d).", status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
