/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package transcribe is a client for the external speech-to-text and
// PII-detection provider. The provider is asynchronous: a submitted job is
// polled until it reports done, then its payload is mapped to the redact
// package's word and match types.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dialcoach/dialcoach/httpclient"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/redact"
)

// JobStatus reported by the provider.
type JobStatus string

// Job statuses.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Result is the transcription payload of a finished job.
type Result struct {
	Language     string         `json:"language"`
	Words        []redact.Word  `json:"words"`
	Matches      []redact.Match `json:"piiMatches"`
	RedactedText string         `json:"redactedText"`
}

// Job is the provider's view of one transcription job.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
	Result *Result   `json:"result,omitempty"`
}

// ProviderError is a non-2xx answer from the provider API.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("transcription provider responded with %d: %s", e.StatusCode, e.Body)
}

// Client calls the provider API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       log.FieldLogger
}

// NewClient creates a provider client from the configuration.
func NewClient(cfg *Config, logger log.FieldLogger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcription provider base URL is not configured")
	}
	httpClient, err := httpclient.New(httpclient.Opts{
		RateLimit:    cfg.RateLimit,
		AuthProvider: httpclient.StaticToken(cfg.APIKey),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("new HTTP client: %w", err)
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   httpClient,
		pollInterval: time.Duration(cfg.PollInterval),
		pollTimeout:  time.Duration(cfg.PollTimeout),
		logger:       logger,
	}, nil
}

// SubmitJob asks the provider to transcribe the audio at the given URL
// (a pre-signed object storage link) and returns the created job.
func (c *Client) SubmitJob(ctx context.Context, audioURL string) (*Job, error) {
	reqBody, err := json.Marshal(struct {
		AudioURL  string `json:"audioUrl"`
		DetectPII bool   `json:"detectPii"`
	}{AudioURL: audioURL, DetectPII: true})
	if err != nil {
		return nil, fmt.Errorf("marshal job request: %w", err)
	}

	var job Job
	if err = c.doJSON(ctx, http.MethodPost, "/v1/jobs", bytes.NewReader(reqBody), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.doJSON(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitForResult polls a job until it is done or failed.
// The poll loop stops on context cancellation or after the configured timeout.
func (c *Client) WaitForResult(ctx context.Context, jobID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case JobStatusDone:
			if job.Result == nil {
				return nil, fmt.Errorf("job %s is done but has no result", jobID)
			}
			return job.Result, nil
		case JobStatusFailed:
			return nil, fmt.Errorf("job %s failed: %s", jobID, job.Error)
		}

		c.logger.Debug("transcription job not finished yet",
			log.String("job_id", jobID), log.String("status", string(job.Status)))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
