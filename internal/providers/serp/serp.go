// Package serp implements the search-SERP adapter (spec §4.3.2):
// keyword search results tagged with the caller's search keyword, an
// optional subreddit filter and time range, and a related-questions
// (People Also Ask) call feeding ContentBrief.RelatedQuestions.
package serp

import (
	"context"

	"github.com/spf13/cast"

	"github.com/seoasis/contentforge/internal/integration"
)

// Result is one SERP result, tagged with the keyword that produced it.
type Result struct {
	SearchKeyword string
	Title         string
	URL           string
	Snippet       string
	Position      int
	Source        string // "organic", "reddit", etc.
}

// SearchOptions narrows a Search call.
type SearchOptions struct {
	Subreddits []string
	TimeRange  string // e.g. "day", "week", "month", "year"
	Limit      int
}

// Client wraps an integration.Client configured for the SERP provider.
type Client struct {
	http   *integration.Client
	apiKey string
}

// New builds a serp Client.
func New(http *integration.Client, apiKey string) *Client {
	return &Client{http: http, apiKey: apiKey}
}

// Available reports whether the adapter is configured.
func (c *Client) Available() bool { return c.http != nil && c.apiKey != "" }

// Search runs a keyword SERP lookup, optionally restricted to a set of
// subreddits (reddit_discovery) and/or a recency window.
func (c *Client) Search(ctx context.Context, keyword string, opts SearchOptions) ([]Result, error) {
	body := map[string]any{"keyword": keyword}
	if len(opts.Subreddits) > 0 {
		body["subreddits"] = opts.Subreddits
	}
	if opts.TimeRange != "" {
		body["time_range"] = opts.TimeRange
	}
	if opts.Limit > 0 {
		body["limit"] = opts.Limit
	}

	resp, err := c.http.Request(ctx, "GET", "/search", body, integration.TargetInfo{"keyword": keyword}, integration.WithAuth(c.apiKey))
	if err != nil {
		return nil, err
	}
	return parseResults(keyword, resp), nil
}

// RelatedQuestions fetches the People-Also-Ask style question list for
// a keyword, used to enrich ContentBrief.RelatedQuestions beyond what
// the optimization provider returns.
func (c *Client) RelatedQuestions(ctx context.Context, keyword string) ([]string, error) {
	resp, err := c.http.Request(ctx, "GET", "/related-questions", map[string]any{
		"keyword": keyword,
	}, integration.TargetInfo{"keyword": keyword}, integration.WithAuth(c.apiKey))
	if err != nil {
		return nil, err
	}

	raw, _ := resp["questions"].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if q := cast.ToString(v["question"]); q != "" {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func parseResults(keyword string, resp map[string]any) []Result {
	raw, _ := resp["results"].([]any)
	out := make([]Result, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		source := cast.ToString(m["source"])
		if source == "" {
			source = "organic"
		}
		position := cast.ToInt(m["position"])
		if position == 0 {
			position = i + 1
		}
		out = append(out, Result{
			SearchKeyword: keyword,
			Title:         cast.ToString(m["title"]),
			URL:           cast.ToString(m["url"]),
			Snippet:       cast.ToString(m["snippet"]),
			Position:      position,
			Source:        source,
		})
	}
	return out
}
