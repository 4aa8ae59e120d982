package brief_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoasis/contentforge/internal/brief"
	"github.com/seoasis/contentforge/internal/integration"
	"github.com/seoasis/contentforge/internal/providers/pop"
	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/internal/store/memory"
)

func TestFetch_CachedReturnsExistingWithoutOutboundCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	st := memory.New()
	pageID := uuid.New()
	st.SeedContentBrief(&store.ContentBrief{PageID: pageID, Keyword: "shoes"})

	client := integration.New(integration.Config{Name: "pop", BaseURL: srv.URL}, nil, nil)
	popClient := pop.New(client, "key", pop.Config{}, nil)
	orch := brief.New(popClient, st, nil)

	out := orch.Fetch(context.Background(), pageID, "shoes", "https://example.com", false)
	require.NoError(t, out.Error())
	assert.True(t, out.Value().Cached)
	assert.Equal(t, 0, calls)
}

func TestFetch_RunsFullFlowAndUpserts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/get-terms":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "t1"})
		case "/create-report":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "t2", "reportId": "r1"})
		case "/get-custom-recommendations":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "t3"})
		case "/task/t1":
			json.NewEncoder(w).Encode(map[string]any{
				"status":     "success",
				"lsaPhrases": []any{map[string]any{"phrase": "running shoes"}},
				"variations": []any{"jogging shoes"},
				"prepareId":  "prep-1",
			})
		case "/task/t2":
			json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"report": map[string]any{"pageScore": 90.0},
			})
		case "/task/t3":
			json.NewEncoder(w).Encode(map[string]any{
				"status":          "success",
				"recommendations": map[string]any{"wordCount": 1200},
			})
		}
	}))
	defer srv.Close()

	st := memory.New()
	pageID := uuid.New()

	client := integration.New(integration.Config{Name: "pop", BaseURL: srv.URL, MaxRetries: 0}, nil, nil)
	popClient := pop.New(client, "key", pop.Config{}, nil)
	orch := brief.New(popClient, st, nil)

	out := orch.Fetch(context.Background(), pageID, "running shoes", "https://example.com/shoes", false)
	require.NoError(t, out.Error())
	assert.False(t, out.Value().Cached)
	require.NotNil(t, out.Value().Brief)
	assert.Equal(t, []string{"jogging shoes"}, out.Value().Brief.RelatedSearches)
	assert.Equal(t, "t1", out.Value().Brief.PopTaskID)

	err := store.WithSession(context.Background(), st, func(sess store.Session) error {
		b, err := sess.GetContentBrief(context.Background(), pageID)
		require.NoError(t, err)
		assert.Equal(t, "running shoes", b.Keyword)
		return nil
	})
	require.NoError(t, err)
}

func TestFetch_SecondCallIsCachedWithNoProviderRequests(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/get-terms":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "t1"})
		case "/create-report":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "t2", "reportId": "r1"})
		case "/get-custom-recommendations":
			json.NewEncoder(w).Encode(map[string]any{"task_id": "t3"})
		case "/task/t1":
			json.NewEncoder(w).Encode(map[string]any{"status": "success", "prepareId": "p"})
		case "/task/t2":
			json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		case "/task/t3":
			json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		}
	}))
	defer srv.Close()

	st := memory.New()
	pageID := uuid.New()
	client := integration.New(integration.Config{Name: "pop", BaseURL: srv.URL}, nil, nil)
	popClient := pop.New(client, "key", pop.Config{}, nil)
	orch := brief.New(popClient, st, nil)

	first := orch.Fetch(context.Background(), pageID, "shoes", "https://example.com", false)
	require.NoError(t, first.Error())
	firstCalls := calls

	second := orch.Fetch(context.Background(), pageID, "shoes", "https://example.com", false)
	require.NoError(t, second.Error())
	assert.Equal(t, firstCalls, calls)
	assert.True(t, second.Value().Cached)
	assert.Equal(t, first.Value().Brief.PageID, second.Value().Brief.PageID)
}
