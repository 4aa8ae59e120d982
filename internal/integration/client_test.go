package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, maxRetries int) *Client {
	t.Helper()
	return New(Config{
		Name:       "test",
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	}, nil, nil)
}

func TestRequest_SuccessReturnsParsedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	out, err := c.Request(context.Background(), http.MethodGet, "/thing", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("expected ok=true, got %v", out)
	}
}

func TestRequest_EmptyBodyReturnsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	out, err := c.Request(context.Background(), http.MethodGet, "/empty", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty object, got %v", out)
	}
}

func TestRequest_ServerErrorRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	_, err := c.Request(context.Background(), http.MethodGet, "/flaky", nil, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindServer {
		t.Fatalf("expected KindServer, got %#v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts (initial + 2 retries), got %d", got)
	}
}

func TestRequest_ClientErrorDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad input"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.Request(context.Background(), http.MethodPost, "/validate", map[string]any{"x": 1}, nil)
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindClient {
		t.Fatalf("expected KindClient, got %#v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt for a 4xx, got %d", got)
	}
}

func TestRequest_AuthFailureDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "/secure", nil, nil)
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindAuthFailed {
		t.Fatalf("expected KindAuthFailed, got %#v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt for 401, got %d", got)
	}
}

func TestRequest_CircuitOpensThenRecoversAfterTimeout(t *testing.T) {
	var calls int32
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{
		Name:             "test-circuit",
		BaseURL:          srv.URL,
		Timeout:          2 * time.Second,
		MaxRetries:       0,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	}, nil, nil)

	// First call fails and trips the breaker open.
	if _, err := c.Request(context.Background(), http.MethodGet, "/thing", nil, nil); err == nil {
		t.Fatalf("expected first call to fail")
	}

	// While open, the gate rejects the call before it ever reaches the server.
	_, err := c.Request(context.Background(), http.MethodGet, "/thing", nil, nil)
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindCircuitOpen {
		t.Fatalf("expected KindCircuitOpen while breaker is open, got %#v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected the gated call to never reach the server, got %d calls", got)
	}

	// After recovery_timeout elapses, the next call must be admitted as the
	// half-open trial and succeed, closing the breaker.
	time.Sleep(15 * time.Millisecond)
	fail.Store(false)

	out, err := c.Request(context.Background(), http.MethodGet, "/thing", nil, nil)
	if err != nil {
		t.Fatalf("expected trial call to be admitted and succeed, got %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("expected ok=true, got %v", out)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly 2 calls to reach the server, got %d", got)
	}
}

func TestRequest_RateLimitedWithShortRetryAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	out, err := c.Request(context.Background(), http.MethodGet, "/limited", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("expected success after retry, got %v", out)
	}
}

func TestRequest_RateLimitedWithLongRetryAfterFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.Request(context.Background(), http.MethodGet, "/limited", nil, nil)
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %#v", err)
	}
	if ierr.RetryAfter != 3600 {
		t.Fatalf("expected retry_after echoed, got %d", ierr.RetryAfter)
	}
}

func TestMask_RedactsAuthorizationAndAPIKey(t *testing.T) {
	headers, body := Mask(
		map[string]string{"Authorization": "Bearer sk-1234567890abcdef", "Content-Type": "application/json"},
		map[string]any{"apiKey": "sk-1234567890abcdef", "keyword": "shoes"},
	)
	if headers["Authorization"] == "Bearer sk-1234567890abcdef" {
		t.Fatalf("expected Authorization header to be masked")
	}
	if body["apiKey"] == "sk-1234567890abcdef" {
		t.Fatalf("expected apiKey field to be masked")
	}
	if body["keyword"] != "shoes" {
		t.Fatalf("expected unrelated fields to pass through untouched")
	}
}
