// Package crawl implements the Crawl4AI-style adapter (spec §4.3.2):
// crawl one URL or many, falling back to a plain HTTP GET (HTML only,
// no derived markdown) when the provider is not configured.
package crawl

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/panjf2000/ants/v2"

	"github.com/seoasis/contentforge/internal/integration"
	xsync "github.com/seoasis/contentforge/pkg/sync"
)

// Page is one crawl result.
type Page struct {
	URL         string
	HTML        string
	Markdown    string
	ContentType string
	StatusCode  int
}

// Options tunes a crawl call (e.g. render JS, wait selectors);
// forwarded verbatim to the provider.
type Options map[string]any

// Client wraps an integration.Client configured for the crawl
// provider, with a plain-HTTP fallback when unconfigured.
type Client struct {
	http        *integration.Client
	fallback    *http.Client
	parallelism int
}

// New builds a crawl Client. http may be nil, in which case every
// call falls back to a direct HTTP GET. parallelism bounds
// CrawlMany's concurrent fan-out; values <= 0 default to 8.
func New(httpClient *integration.Client, parallelism int) *Client {
	if parallelism <= 0 {
		parallelism = 8
	}
	return &Client{http: httpClient, fallback: &http.Client{}, parallelism: parallelism}
}

// Available reports whether the dedicated crawl provider is configured.
func (c *Client) Available() bool { return c.http != nil }

// Crawl fetches one URL, via the provider if configured, otherwise a
// plain HTTP GET.
func (c *Client) Crawl(ctx context.Context, url string, opts Options) (Page, error) {
	if c.http == nil {
		return c.plainGet(ctx, url)
	}
	body := map[string]any{"url": url}
	for k, v := range opts {
		body[k] = v
	}
	resp, err := c.http.Request(ctx, "POST", "/crawl", body, integration.TargetInfo{"url": url})
	if err != nil {
		return Page{}, err
	}
	return parseCrawlResponse(url, resp), nil
}

// CrawlMany batches URLs into a single request body containing the
// list, per spec §4.3.2. When falling back to plain HTTP, each URL is
// fetched independently, concurrently, bounded by c.parallelism.
func (c *Client) CrawlMany(ctx context.Context, urls []string, opts Options) ([]Page, error) {
	if c.http == nil {
		return c.crawlManyFallback(ctx, urls)
	}
	body := map[string]any{"urls": urls}
	for k, v := range opts {
		body[k] = v
	}
	resp, err := c.http.Request(ctx, "POST", "/crawl", body, integration.TargetInfo{"url_count": len(urls)})
	if err != nil {
		return nil, err
	}
	raw, _ := resp["results"].([]any)
	pages := make([]Page, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		url, _ := m["url"].(string)
		pages = append(pages, parseCrawlResponse(url, m))
	}
	return pages, nil
}

// crawlManyFallback fans fetches out across a bounded ants worker pool
// rather than one goroutine per URL, so a large sitemap batch doesn't
// spike goroutine count the way an unbounded errgroup would.
func (c *Client) crawlManyFallback(ctx context.Context, urls []string) ([]Page, error) {
	results := make([]Page, len(urls))

	antsPool, err := ants.NewPool(c.parallelism)
	if err != nil {
		return nil, err
	}
	defer antsPool.Release()
	pool := xsync.PoolOfAnts(antsPool)

	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			p, err := c.plainGet(ctx, u)
			if err != nil {
				return // partial failure tolerated; leave zero Page
			}
			results[i] = p
		}); err != nil {
			wg.Done()
		}
	}
	wg.Wait()
	return results, nil
}

func (c *Client) plainGet(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := c.fallback.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(b).String()
	}

	return Page{
		URL:         url,
		HTML:        string(b),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}, nil
}

func parseCrawlResponse(url string, resp map[string]any) Page {
	asString := func(v any) string {
		s, _ := v.(string)
		return s
	}
	return Page{
		URL:         url,
		HTML:        asString(resp["html"]),
		Markdown:    asString(resp["markdown"]),
		ContentType: asString(resp["content_type"]),
		StatusCode:  int(asFloat(resp["status_code"])),
	}
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
