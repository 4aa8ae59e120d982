// Package keywordvolume implements the keyword-volume adapter (spec
// §4.3.2): batch-capped search volume lookups with concurrent gather
// for oversized lists.
package keywordvolume

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/seoasis/contentforge/internal/integration"
)

// maxBatchSize is the provider's documented per-call cap.
const maxBatchSize = 100

// KeywordData is one entry of a keyword-volume response.
type KeywordData struct {
	Keyword     string
	Volume      int
	CPC         float64
	Competition float64
}

// Client wraps an integration.Client configured for the keyword-volume
// provider.
type Client struct {
	http        *integration.Client
	apiKey      string
	parallelism int
}

// New builds a keywordvolume Client. parallelism bounds concurrent
// batch calls issued by GetKeywordDataBatch; values <= 0 default to 4.
func New(http *integration.Client, apiKey string, parallelism int) *Client {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Client{http: http, apiKey: apiKey, parallelism: parallelism}
}

// Available reports whether the adapter is configured.
func (c *Client) Available() bool { return c.http != nil && c.apiKey != "" }

// GetKeywordData fetches volume data for up to maxBatchSize keywords
// in a single call.
func (c *Client) GetKeywordData(ctx context.Context, keywords []string, country, currency, dataSource string) ([]KeywordData, error) {
	if len(keywords) > maxBatchSize {
		return nil, fmt.Errorf("keywordvolume: batch of %d exceeds max size %d", len(keywords), maxBatchSize)
	}
	resp, err := c.http.Request(ctx, "POST", "/keyword-data", map[string]any{
		"keywords":    keywords,
		"country":     country,
		"currency":    currency,
		"data_source": dataSource,
	}, integration.TargetInfo{"keyword_count": len(keywords)}, integration.WithAuth(c.apiKey))
	if err != nil {
		return nil, err
	}
	return parseKeywordData(resp), nil
}

// GetKeywordDataBatch splits keywords into maxBatchSize-sized chunks
// and gathers them concurrently, bounded by c.parallelism.
func (c *Client) GetKeywordDataBatch(ctx context.Context, keywords []string, country, currency, dataSource string) ([]KeywordData, error) {
	chunks := chunk(keywords, maxBatchSize)
	results := make([][]KeywordData, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			data, err := c.GetKeywordData(ctx, ch, country, currency, dataSource)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []KeywordData
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func parseKeywordData(resp map[string]any) []KeywordData {
	raw, _ := resp["keywords"].([]any)
	out := make([]KeywordData, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, KeywordData{
			Keyword:     cast.ToString(m["keyword"]),
			Volume:      cast.ToInt(m["volume"]),
			CPC:         cast.ToFloat64(m["cpc"]),
			Competition: cast.ToFloat64(m["competition"]),
		})
	}
	return out
}
