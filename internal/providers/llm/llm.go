// Package llm implements the LLM-completion adapter (spec §4.3.2): a
// thin typed wrapper over internal/integration plus the JSON-fence
// extraction helper every C9/C10 consumer needs to parse a completion
// back into structured data.
package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/spf13/cast"

	"github.com/seoasis/contentforge/internal/integration"
)

// CompletionResult is the adapter's return shape per spec §4.3.2.
type CompletionResult struct {
	Success      bool
	Text         string
	InputTokens  int
	OutputTokens int
	Error        string
}

// Client wraps an integration.Client configured for the LLM
// provider's chat-completion endpoint.
type Client struct {
	http      *integration.Client
	model     string
	apiKey    string
	endpoint  string
	estimator *tiktoken.Tiktoken
}

// New builds an llm Client. endpoint is the completion path relative
// to http's base URL, e.g. "/v1/chat/completions".
func New(http *integration.Client, apiKey, model, endpoint string) *Client {
	// cl100k_base is a reasonable universal estimator when the
	// provider's response omits usage counts; a miss here only means
	// a slightly wrong estimate, never a failed call.
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Client{http: http, apiKey: apiKey, model: model, endpoint: endpoint, estimator: enc}
}

// Available reports whether the adapter is configured.
func (c *Client) Available() bool { return c.http != nil && c.apiKey != "" }

// Complete issues one chat completion. systemPrompt may be empty.
func (c *Client) Complete(ctx context.Context, userPrompt, systemPrompt string, maxTokens int, temperature float64) CompletionResult {
	messages := []map[string]any{}
	if systemPrompt != "" {
		messages = append(messages, map[string]any{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]any{"role": "user", "content": userPrompt})

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	resp, err := c.http.Request(ctx, "POST", c.endpoint, body, nil, integration.WithAuth(c.apiKey))
	if err != nil {
		return CompletionResult{Success: false, Error: err.Error()}
	}

	text := extractText(resp)
	inputTokens, outputTokens := c.tokenCounts(resp, userPrompt, systemPrompt, text)
	return CompletionResult{
		Success:      true,
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
}

// extractText pulls the completion text out of an OpenAI-shaped
// response, falling back to a flat "text" field.
func extractText(resp map[string]any) string {
	if choices, ok := resp["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				return cast.ToString(msg["content"])
			}
			if text, ok := choice["text"]; ok {
				return cast.ToString(text)
			}
		}
	}
	return cast.ToString(resp["text"])
}

func (c *Client) tokenCounts(resp map[string]any, userPrompt, systemPrompt, text string) (int, int) {
	if usage, ok := resp["usage"].(map[string]any); ok {
		in := cast.ToInt(usage["prompt_tokens"])
		out := cast.ToInt(usage["completion_tokens"])
		if in > 0 || out > 0 {
			return in, out
		}
	}
	return c.estimate(userPrompt + systemPrompt), c.estimate(text)
}

func (c *Client) estimate(s string) int {
	if c.estimator == nil || s == "" {
		return 0
	}
	return len(c.estimator.Encode(s, nil, nil))
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON strips a markdown fenced code block, if present, and
// returns the inner text trimmed. If no fence is found the input is
// returned trimmed unchanged.
func ExtractJSON(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
