// Package nlp implements the NLP-entity adapter (spec §4.3.2).
package nlp

import (
	"context"

	"github.com/spf13/cast"

	"github.com/seoasis/contentforge/internal/integration"
)

// Entity is one extracted entity.
type Entity struct {
	Name     string
	Type     string
	Salience float64
	Mentions int
	Metadata map[string]any
}

// Client wraps an integration.Client configured for the NLP provider.
type Client struct {
	http   *integration.Client
	apiKey string
}

// New builds an nlp Client.
func New(http *integration.Client, apiKey string) *Client {
	return &Client{http: http, apiKey: apiKey}
}

// Available reports whether the adapter is configured.
func (c *Client) Available() bool { return c.http != nil && c.apiKey != "" }

// Entities extracts named entities from text.
func (c *Client) Entities(ctx context.Context, text string) ([]Entity, error) {
	resp, err := c.http.Request(ctx, "POST", "/entities", map[string]any{
		"text": text,
	}, nil, integration.WithAuth(c.apiKey))
	if err != nil {
		return nil, err
	}

	raw, _ := resp["entities"].([]any)
	out := make([]Entity, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		metadata, _ := m["metadata"].(map[string]any)
		out = append(out, Entity{
			Name:     cast.ToString(m["name"]),
			Type:     cast.ToString(m["type"]),
			Salience: cast.ToFloat64(m["salience"]),
			Mentions: cast.ToInt(m["mentions"]),
			Metadata: metadata,
		})
	}
	return out, nil
}
