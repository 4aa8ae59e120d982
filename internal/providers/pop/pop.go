// Package pop implements the multi-step optimization-provider adapter
// (spec §4.3.1): three submit/poll task cycles chained into one merged
// response. This is the hardest adapter C3 defines — everything else
// in internal/providers is a thin wrapper over internal/integration.
package pop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cast"

	"github.com/seoasis/contentforge/internal/integration"
)

// Config tunes the poll loop; spec §6 names both knobs per-process,
// not per-call.
type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client wraps an integration.Client configured for the optimization
// provider's base URL and apiKey-in-body credential placement.
type Client struct {
	http   *integration.Client
	apiKey string
	cfg    Config
	logger *slog.Logger
}

// New builds a pop Client. apiKey is placed in the request body under
// "apiKey" on every task-creating POST, per spec §4.2's
// credential-placement note; the GET /task/{id} polls carry no body.
func New(http *integration.Client, apiKey string, cfg Config, logger *slog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: http, apiKey: apiKey, cfg: cfg, logger: logger}
}

// Available reports whether the adapter is configured.
func (c *Client) Available() bool { return c.http != nil && c.apiKey != "" }

// taskStatus is a status string returned by GET /task/{id}.
type taskStatus string

const (
	taskSuccess taskStatus = "success"
	taskFailure taskStatus = "failure"
)

// Fetch runs the three-step chain and returns the merged response plus
// the task id from step 1, per spec §4.3.1's return contract.
func (c *Client) Fetch(ctx context.Context, keyword, url string) (map[string]any, string, error) {
	termsResp, taskID1, err := c.runStep(ctx, "get-terms", map[string]any{
		"keyword": keyword,
		"url":     url,
	})
	if err != nil {
		return nil, "", fmt.Errorf("get-terms step: %w", err)
	}

	// Steps 2 and 3 overwrite "variations" with differently shaped
	// objects; preserve step 1's value first.
	merged := map[string]any{}
	for k, v := range termsResp {
		merged[k] = v
	}
	merged["_keyword_variations"] = termsResp["variations"]

	reportResp, _, err := c.runStep(ctx, "create-report", map[string]any{
		"prepareId":  termsResp["prepareId"],
		"variations": termsResp["variations"],
		"lsaPhrases": termsResp["lsaPhrases"],
	})
	if err != nil {
		return nil, "", fmt.Errorf("create-report step: %w", err)
	}
	for k, v := range reportResp {
		merged[k] = v
	}
	if report, ok := reportResp["report"].(map[string]any); ok {
		for k, v := range report {
			merged[k] = v
		}
	}

	reportID := reportResp["reportId"]
	recsResp, _, err := c.runStep(ctx, "get-custom-recommendations", map[string]any{
		"reportId": reportID,
	})
	if err != nil {
		// Step 3 failing is logged and merging proceeds without it.
		c.logger.Warn("optimization provider recommendations step failed, continuing without it",
			slog.String("keyword", keyword), slog.Any("error", err))
	} else {
		for k, v := range recsResp {
			merged[k] = v
		}
		if recs, ok := recsResp["recommendations"].(map[string]any); ok {
			for k, v := range recs {
				merged[k] = v
			}
		}
	}

	return merged, taskID1, nil
}

// runStep submits one task and polls it to completion, returning the
// poll response body and the submitted task id.
func (c *Client) runStep(ctx context.Context, endpoint string, body map[string]any) (map[string]any, string, error) {
	withKey := map[string]any{"apiKey": c.apiKey}
	for k, v := range body {
		withKey[k] = v
	}

	submitResp, err := c.http.Request(ctx, "POST", "/"+endpoint, withKey, nil)
	if err != nil {
		return nil, "", err
	}
	taskID := cast.ToString(submitResp["task_id"])
	if taskID == "" {
		return nil, "", fmt.Errorf("%s: response missing task_id", endpoint)
	}

	result, err := c.poll(ctx, taskID)
	if err != nil {
		return nil, taskID, err
	}
	return result, taskID, nil
}

// poll queries the task status endpoint at cfg.PollInterval until it
// reports success or failure, or the total poll timeout elapses.
func (c *Client) poll(ctx context.Context, taskID string) (map[string]any, error) {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		resp, err := c.http.Request(ctx, "GET", "/task/"+taskID, nil, integration.TargetInfo{"task_id": taskID})
		if err != nil {
			return nil, err
		}
		switch taskStatus(cast.ToString(resp["status"])) {
		case taskSuccess:
			return resp, nil
		case taskFailure:
			return nil, fmt.Errorf("task %s failed: %v", taskID, resp["error"])
		}

		if time.Now().After(deadline) {
			return nil, &integration.Error{
				Kind:    integration.KindTimeout,
				Message: fmt.Sprintf("task %s did not complete within poll timeout", taskID),
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
