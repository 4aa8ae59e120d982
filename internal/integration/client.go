// Package integration implements the typed HTTP integration client
// shared by every provider adapter (C3): retry with exponential
// backoff, rate-limit honoring, circuit-breaker gating, credential
// masking, and per-call structured + Prometheus telemetry.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seoasis/contentforge/internal/breaker"
	"github.com/seoasis/contentforge/internal/telemetry"
)

// Config is the per-provider tuning spec §6 names.
type Config struct {
	Name             string
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

// TargetInfo carries optional contextual labels for logs, e.g. the
// target URL being crawled or an item count — spec §4.2 inputs.
type TargetInfo map[string]any

// Client is a typed wrapper over net/http implementing spec §4.2's
// per-call algorithm exactly.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	retries int
	delay   time.Duration
	breaker *breaker.Breaker
	logger  *slog.Logger
	metrics *telemetry.ProviderMetrics
}

// New builds a Client for one provider.
func New(cfg Config, logger *slog.Logger, metrics *telemetry.ProviderMetrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retries: cfg.MaxRetries,
		delay:   retryDelay,
		breaker: breaker.New(breaker.Config{
			Name:             cfg.Name,
			FailureThreshold: cfg.FailureThreshold,
			RecoveryTimeout:  cfg.RecoveryTimeout,
		}, logger),
		logger:  logger,
		metrics: metrics,
	}
}

// RequestOption adjusts the headers of one Request; adapters add
// Authorization via WithAuth.
type RequestOption func(*requestOpts)

type requestOpts struct {
	headers map[string]string
}

// WithAuth sets a bearer Authorization header.
func WithAuth(token string) RequestOption {
	return func(o *requestOpts) {
		o.headers["Authorization"] = "Bearer " + token
	}
}

// WithHeader sets an arbitrary header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOpts) {
		o.headers[key] = value
	}
}

// Request implements spec §4.2. body, if non-nil, is JSON-marshalled.
// The returned map is the parsed JSON object on 2xx; on error the
// error value is always *Error.
func (c *Client) Request(ctx context.Context, method, endpoint string, body map[string]any, target TargetInfo, opts ...RequestOption) (map[string]any, error) {
	if !c.breaker.CanExecute() {
		return nil, circuitOpenErr()
	}

	o := &requestOpts{headers: map[string]string{"Content-Type": "application/json"}}
	for _, opt := range opts {
		opt(o)
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindValidationError, Message: "failed to marshal request body", Cause: err}
		}
	}

	maxAttempts := c.retries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		maskedHeaders, maskedBody := Mask(o.headers, body)
		c.logger.Info("integration call start",
			slog.String("provider", c.name),
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.Any("headers", maskedHeaders),
			slog.Any("body", maskedBody),
			slog.Any("target", target),
		)

		resp, respBody, requestID, callErr := c.do(ctx, method, endpoint, bodyBytes, o.headers)
		durationMs := time.Since(start).Milliseconds()

		if callErr != nil {
			retriable := true
			var outcome *Error
			if ctx.Err() != nil || isTimeout(callErr) {
				outcome = timeoutErr(callErr)
			} else {
				outcome = transportErr(callErr)
			}
			c.breaker.RecordFailure()
			c.logCallEnd(method, endpoint, attempt, durationMs, 0, requestID, outcome.Kind)
			c.recordMetrics(method, endpoint, 0, durationMs, retriable)
			if attempt < maxAttempts-1 {
				if !c.sleep(ctx, backoff(c.delay, attempt)) {
					return nil, outcome
				}
				continue
			}
			return nil, outcome
		}

		status := resp.StatusCode
		c.logCallEnd(method, endpoint, attempt, durationMs, status, requestID, "")
		c.recordMetrics(method, endpoint, status, durationMs, status >= 500 || status == 429)

		switch {
		case status == 429:
			c.breaker.RecordFailure()
			retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After"))
			if attempt < maxAttempts-1 && ok && retryAfter <= 60 {
				if !c.sleep(ctx, time.Duration(retryAfter)*time.Second) {
					return nil, rateLimitedErr(retryAfter)
				}
				continue
			}
			return nil, rateLimitedErr(retryAfter)

		case status == 401 || status == 403:
			c.breaker.RecordFailure()
			return nil, authFailedErr(status)

		case status >= 500:
			c.breaker.RecordFailure()
			if attempt < maxAttempts-1 {
				if !c.sleep(ctx, backoff(c.delay, attempt)) {
					return nil, serverErr(status)
				}
				continue
			}
			return nil, serverErr(status)

		case status >= 400:
			return nil, clientErr(status, TruncateBody(respBody, 2048))

		default: // 2xx
			c.breaker.RecordSuccess()
			return parseJSONObject(respBody)
		}
	}

	return nil, serverErr(0)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, headers map[string]string) (*http.Response, string, string, error) {
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, "", "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	requestID := resp.Header.Get("X-Request-Id")
	return resp, string(b), requestID, nil
}

func (c *Client) logCallEnd(method, endpoint string, attempt int, durationMs int64, status int, requestID string, errKind Kind) {
	attrs := []any{
		slog.String("provider", c.name),
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("attempt", attempt),
		slog.Int64("duration_ms", durationMs),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("status", status))
	}
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if errKind != "" {
		attrs = append(attrs, slog.String("error_kind", string(errKind)))
		c.logger.Warn("integration call end", attrs...)
		return
	}
	c.logger.Info("integration call end", attrs...)
}

func (c *Client) recordMetrics(method, endpoint string, status int, durationMs int64, retried bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.Observe(c.name, method, endpoint, status, durationMs, retried)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt))
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

// parseRetryAfter accepts a number of seconds; an HTTP-date value is
// treated as absent per spec §4.2's edge case.
func parseRetryAfter(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseJSONObject returns an empty object for an empty body, per
// spec §4.2's edge case.
func parseJSONObject(body string) (map[string]any, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, &Error{Kind: KindValidationError, Message: fmt.Sprintf("response is not a JSON object: %v", err), Body: TruncateBody(trimmed, 2048)}
	}
	return out, nil
}
