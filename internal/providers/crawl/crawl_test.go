package crawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoasis/contentforge/internal/integration"
)

func TestCrawl_Fallback_PlainGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	c := New(nil, 0)
	assert.False(t, c.Available())

	page, err := c.Crawl(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, page.StatusCode)
	assert.Contains(t, page.HTML, "hi")
	assert.Equal(t, "text/html", page.ContentType)
}

func TestCrawl_Provider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"html":         "<p>x</p>",
			"markdown":     "x",
			"content_type": "text/html",
			"status_code":  200,
		})
	}))
	defer srv.Close()

	httpClient := integration.New(integration.Config{Name: "crawl", BaseURL: srv.URL}, nil, nil)
	c := New(httpClient, 0)
	assert.True(t, c.Available())

	page, err := c.Crawl(context.Background(), "https://example.com", Options{"render_js": true})
	require.NoError(t, err)
	assert.Equal(t, "x", page.Markdown)
}

func TestCrawlMany_Fallback_PartialFailureTolerated(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ok.Close()

	c := New(nil, 4)
	pages, err := c.CrawlMany(context.Background(), []string{ok.URL, "http://127.0.0.1:0/nope"}, nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0].HTML, "ok")
	assert.Equal(t, "", pages[1].HTML)
}

func TestCrawlMany_Provider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{"url": "a", "html": "<a/>"},
				map[string]any{"url": "b", "html": "<b/>"},
			},
		})
	}))
	defer srv.Close()

	httpClient := integration.New(integration.Config{Name: "crawl", BaseURL: srv.URL}, nil, nil)
	c := New(httpClient, 0)

	pages, err := c.CrawlMany(context.Background(), []string{"a", "b"}, nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "a", pages[0].URL)
}
