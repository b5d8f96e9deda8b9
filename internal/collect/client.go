// Package collect wraps the data-collection provider: triggering a dataset
// collection for a pair of profile URLs and polling its snapshot until the
// collected records are available.
package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/icebreaker/internal/apperr"
)

const (
	defaultBaseURL      = "https://api.brightdata.com"
	defaultTimeout      = 60 * time.Second
	defaultPollInterval = 12 * time.Second
	defaultMaxAttempts  = 10
	maxResponseSize     = 32 << 20 // 32MB

	// RequiredRefs is the number of profiles the dataset schema compares.
	RequiredRefs = 2
)

type Config struct {
	BaseURL       string
	Token         string
	DatasetID     string
	IncludeErrors bool
	PollInterval  time.Duration
	MaxAttempts   int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the collection provider's dataset API.
type Client struct {
	baseURL       string
	token         string
	datasetID     string
	includeErrors bool
	interval      time.Duration
	maxAttempts   int
	httpClient    *http.Client
	logger        *slog.Logger

	// sleep waits between polls; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		datasetID:     cfg.DatasetID,
		includeErrors: cfg.IncludeErrors,
		interval:      cfg.PollInterval,
		maxAttempts:   cfg.MaxAttempts,
		httpClient:    cfg.HTTPClient,
		logger:        cfg.Logger,
		sleep:         sleepCtx,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.interval <= 0 {
		c.interval = defaultPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ValidateRefs checks that refs holds exactly two absolute http(s) URLs.
func ValidateRefs(refs []ProfileRef) error {
	if len(refs) != RequiredRefs {
		return apperr.InvalidInput("collect.submit", "exactly %d profile URLs are required, got %d", RequiredRefs, len(refs))
	}
	for i, r := range refs {
		raw := strings.TrimSpace(r.URL)
		if raw == "" {
			return apperr.InvalidInput("collect.submit", "profile URL %d is empty", i+1)
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperr.InvalidInput("collect.submit", "profile URL %d is not a valid http(s) URL: %q", i+1, raw)
		}
	}
	return nil
}

// Submit triggers a collection job and returns its job identifier.
func (c *Client) Submit(ctx context.Context, refs []ProfileRef) (string, error) {
	if err := ValidateRefs(refs); err != nil {
		return "", err
	}

	payload := make([]ProfileRef, len(refs))
	for i, r := range refs {
		payload[i] = ProfileRef{URL: strings.TrimSpace(r.URL)}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling trigger payload: %w", err)
	}

	q := url.Values{}
	q.Set("dataset_id", c.datasetID)
	if c.includeErrors {
		q.Set("include_errors", "true")
	}
	endpoint := c.baseURL + "/datasets/v3/trigger?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperr.Unavailable("collect.submit", fmt.Errorf("creating request: %w", err))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Unavailable("collect.submit", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", apperr.Unavailable("collect.submit", fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperr.Unavailable("collect.submit", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody)))
	}

	var tr triggerResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", apperr.Unavailable("collect.submit", fmt.Errorf("decoding response: %w", err))
	}
	if tr.SnapshotID == "" {
		return "", apperr.Unavailable("collect.submit", fmt.Errorf("response carried no snapshot_id: %s", truncate(respBody)))
	}

	c.logger.Info("collection triggered", "job_id", tr.SnapshotID, "refs", len(refs))
	return tr.SnapshotID, nil
}

// Status polls the provider once.
func (c *Client) Status(ctx context.Context, jobID string) (Snapshot, error) {
	if strings.TrimSpace(jobID) == "" {
		return Snapshot{}, apperr.InvalidInput("collect.status", "job id is required")
	}
	endpoint := c.baseURL + "/datasets/v3/snapshot/" + url.PathEscape(jobID) + "?format=json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, apperr.Unavailable("collect.status", fmt.Errorf("creating request: %w", err))
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, apperr.Unavailable("collect.status", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Snapshot{}, apperr.Unavailable("collect.status", fmt.Errorf("reading response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Snapshot{}, apperr.Unavailable("collect.status", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body)))
	}
	if !json.Valid(body) {
		return Snapshot{}, apperr.Unavailable("collect.status", fmt.Errorf("response is not valid JSON"))
	}

	return classify(body), nil
}

// classify derives the job status from a snapshot response. Collected
// records come back as a JSON array; pending and failed snapshots come back
// as an object with a status field.
func classify(body []byte) Snapshot {
	snap := Snapshot{Status: StatusReady, Payload: json.RawMessage(body)}

	var sb statusBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return snap
	}
	switch strings.ToLower(sb.Status) {
	case "running", "building", "collecting", "starting", "scheduled":
		snap.Status = StatusRunning
	case "failed", "error":
		snap.Status = StatusFailed
	}
	snap.Message = sb.Message
	if snap.Message == "" {
		snap.Message = sb.Error
	}
	return snap
}

// PollUntilReady polls the job at a fixed interval until the provider
// stops reporting it as running, or the attempt ceiling is reached. Transport
// failures abort immediately.
func (c *Client) PollUntilReady(ctx context.Context, jobID string) ([]byte, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		snap, err := c.Status(ctx, jobID)
		if err != nil {
			c.logger.Warn("snapshot poll failed", "job_id", jobID, "attempt", attempt, "error", err)
			return nil, err
		}

		switch snap.Status {
		case StatusReady:
			c.logger.Info("snapshot ready", "job_id", jobID, "attempt", attempt, "bytes", len(snap.Payload))
			return snap.Payload, nil
		case StatusFailed:
			msg := snap.Message
			if msg == "" {
				msg = "provider reported failure"
			}
			return nil, apperr.Unavailable("collect.poll", fmt.Errorf("collection job %s failed: %s", jobID, msg))
		}

		if attempt == c.maxAttempts {
			break
		}
		c.logger.Info("snapshot still running",
			"job_id", jobID,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"retry_in", c.interval,
		)
		if err := c.sleep(ctx, c.interval); err != nil {
			return nil, apperr.Unavailable("collect.poll", err)
		}
	}

	return nil, apperr.New(apperr.ErrTimeout, "collect.poll",
		"snapshot %s not ready after %d attempts", jobID, c.maxAttempts)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
