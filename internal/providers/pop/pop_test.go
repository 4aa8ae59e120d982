package pop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/seoasis/contentforge/internal/integration"
)

// fakeProvider simulates the optimization provider's three task
// endpoints, each succeeding on the first poll.
type fakeProvider struct {
	mu    sync.Mutex
	tasks map[string]map[string]any
	seq   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{tasks: map[string]map[string]any{}}
}

func (f *fakeProvider) nextTaskID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return "task-" + string(rune('0'+f.seq))
}

func (f *fakeProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/get-terms":
			id := f.nextTaskID()
			f.mu.Lock()
			f.tasks[id] = map[string]any{
				"status":     "success",
				"lsaPhrases": []any{map[string]any{"phrase": "running shoes"}},
				"variations": []any{"run shoes", "jogging shoes"},
				"prepareId":  "prep-1",
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"task_id": id})

		case r.URL.Path == "/create-report":
			id := f.nextTaskID()
			f.mu.Lock()
			f.tasks[id] = map[string]any{
				"status": "success",
				"report": map[string]any{"pageScore": 82.5},
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"task_id": id, "reportId": "report-1"})

		case r.URL.Path == "/get-custom-recommendations":
			id := f.nextTaskID()
			f.mu.Lock()
			f.tasks[id] = map[string]any{
				"status":          "success",
				"recommendations": map[string]any{"wordCountTarget": 1200},
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"task_id": id})

		default:
			// GET /task/{id}
			id := r.URL.Path[len("/task/"):]
			f.mu.Lock()
			resp, ok := f.tasks[id]
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(resp)
		}
	}
}

func TestFetch_MergesThreeStepsAndPreservesVariations(t *testing.T) {
	fp := newFakeProvider()
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	httpClient := integration.New(integration.Config{
		Name:       "pop",
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 0,
	}, nil, nil)

	c := New(httpClient, "test-key", Config{PollInterval: time.Millisecond, PollTimeout: time.Second}, nil)

	merged, taskID, err := c.Fetch(context.Background(), "running shoes", "https://example.com/shoes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID == "" {
		t.Fatalf("expected a task id from step 1")
	}
	if merged["pageScore"] != 82.5 {
		t.Fatalf("expected flattened report fields, got %v", merged)
	}
	if merged["wordCountTarget"] != float64(1200) {
		t.Fatalf("expected flattened recommendations fields, got %v", merged)
	}
	preserved, ok := merged["_keyword_variations"].([]any)
	if !ok || len(preserved) != 2 {
		t.Fatalf("expected step 1 variations preserved under _keyword_variations, got %v", merged["_keyword_variations"])
	}
}

func TestFetch_RecommendationsFailureStillReturnsMergedResponse(t *testing.T) {
	fp := newFakeProvider()
	mux := http.NewServeMux()
	mux.HandleFunc("/get-custom-recommendations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/", fp.handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpClient := integration.New(integration.Config{
		Name:       "pop",
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 0,
	}, nil, nil)

	c := New(httpClient, "test-key", Config{PollInterval: time.Millisecond, PollTimeout: time.Second}, nil)

	merged, _, err := c.Fetch(context.Background(), "running shoes", "https://example.com/shoes")
	if err != nil {
		t.Fatalf("step 3 failure should not fail the whole flow: %v", err)
	}
	if merged["pageScore"] != 82.5 {
		t.Fatalf("expected step 2 fields present despite step 3 failure, got %v", merged)
	}
	if _, present := merged["wordCountTarget"]; present {
		t.Fatalf("did not expect recommendations fields when step 3 failed")
	}
}

func TestPoll_TimesOutWhenTaskNeverCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "pending"})
	}))
	defer srv.Close()

	httpClient := integration.New(integration.Config{
		Name:    "pop",
		BaseURL: srv.URL,
		Timeout: time.Second,
	}, nil, nil)

	c := New(httpClient, "test-key", Config{PollInterval: 2 * time.Millisecond, PollTimeout: 10 * time.Millisecond}, nil)
	_, err := c.poll(context.Background(), "stuck-task")
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	ierr, ok := err.(*integration.Error)
	if !ok || ierr.Kind != integration.KindTimeout {
		t.Fatalf("expected KindTimeout, got %#v", err)
	}
}
