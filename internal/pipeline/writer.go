package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seoasis/contentforge/internal/providers/llm"
	"github.com/seoasis/contentforge/internal/store"
)

// writerSystemPrompt instructs the LLM writer to return the four
// content fields as a single JSON object.
const writerSystemPrompt = `You are an SEO copywriter. Given a keyword, a URL, and a content
brief, write on-page copy. Respond with a single JSON object only, no
prose outside it, with keys: page_title, meta_description,
top_description, bottom_description. All values are plain strings,
top_description and bottom_description may contain simple HTML tags.`

// writerResult is the writer's JSON response shape.
type writerResult struct {
	PageTitle         string `json:"page_title"`
	MetaDescription   string `json:"meta_description"`
	TopDescription    string `json:"top_description"`
	BottomDescription string `json:"bottom_description"`
}

// buildWriterPrompt renders the keyword, URL, brief, and an optional
// brand-config competitor enrichment into one user prompt for the
// writer step (spec §4.9's "writing" state).
func buildWriterPrompt(keyword, url string, brief *store.ContentBrief, brand *store.BrandConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Keyword: %s\nURL: %s\n", keyword, url)

	if brief != nil {
		if brief.WordCountTarget > 0 {
			fmt.Fprintf(&b, "Target word count: %d (min %d, max %d)\n", brief.WordCountTarget, brief.WordCountMin, brief.WordCountMax)
		}
		if len(brief.LSITerms) > 0 {
			terms := make([]string, 0, len(brief.LSITerms))
			for _, t := range brief.LSITerms {
				terms = append(terms, t.Phrase)
			}
			fmt.Fprintf(&b, "LSI terms to include: %s\n", strings.Join(terms, ", "))
		}
		if len(brief.HeadingTargets) > 0 {
			fmt.Fprintf(&b, "Suggested headings: %d\n", len(brief.HeadingTargets))
		}
		if len(brief.RelatedQuestions) > 0 {
			fmt.Fprintf(&b, "Questions to address: %s\n", strings.Join(brief.RelatedQuestions, "; "))
		}
		if len(brief.Competitors) > 0 {
			urls := make([]string, 0, len(brief.Competitors))
			for _, c := range brief.Competitors {
				urls = append(urls, c.URL)
			}
			fmt.Fprintf(&b, "Competitor pages: %s\n", strings.Join(urls, ", "))
		}
	} else {
		b.WriteString("No content brief available; write from the keyword and URL alone.\n")
	}

	if brand != nil && brand.BrandName != "" {
		fmt.Fprintf(&b, "Brand: %s\n", brand.BrandName)
	}

	return b.String()
}

// runWriter issues the writer completion and parses its response. A
// non-success CompletionResult or unparseable response is surfaced as
// an error; the caller maps that to the "writing" → "failed"
// transition (spec §4.9).
func runWriter(ctx context.Context, llmClient *llm.Client, keyword, url string, brief *store.ContentBrief, brand *store.BrandConfig) (writerResult, llm.CompletionResult, error) {
	prompt := buildWriterPrompt(keyword, url, brief, brand)
	res := llmClient.Complete(ctx, prompt, writerSystemPrompt, 3000, 0.4)
	if !res.Success {
		return writerResult{}, res, fmt.Errorf("writer completion failed: %s", res.Error)
	}

	var parsed writerResult
	if err := json.Unmarshal([]byte(llm.ExtractJSON(res.Text)), &parsed); err != nil {
		return writerResult{}, res, fmt.Errorf("writer response parse: %w", err)
	}
	if parsed.PageTitle == "" && parsed.TopDescription == "" {
		return writerResult{}, res, fmt.Errorf("writer response missing content fields")
	}
	return parsed, res, nil
}
