// Package quality implements C6: a deterministic rule engine run
// synchronously over a PageContent and brand config, producing
// store.QAResults. Every rule is pure aside from the final write of
// qa_results; running it twice on unchanged input yields identical
// Issues.
package quality

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/pkg/sets"
)

// Issue type constants, used as QAIssue.Type.
const (
	IssueTier1AIWord    = "tier1_ai_word"
	IssueBannedPhrase   = "banned_phrase"
	IssueLengthBound    = "length_bound"
	IssueUnbalancedHTML = "unbalanced_html"
)

// tier1Tropes is the minimum word list from spec §4.6. Lookups are
// case-insensitive.
var tier1Tropes = sets.NewHashSet[string](16)

func init() {
	for _, w := range []string{
		"delve", "unleash", "harness", "realm", "game-changer",
		"navigate", "landscape", "unlock",
	} {
		tier1Tropes.Add(w)
	}
}

// contentFields names the four PageContent text fields word_count and
// the trope/banned-phrase checks scan, in a fixed order so issue
// ordering is deterministic.
func contentFields(c *store.PageContent) []struct {
	name string
	text string
} {
	return []struct {
		name string
		text string
	}{
		{"page_title", c.PageTitle},
		{"meta_description", c.MetaDescription},
		{"top_description", c.TopDescription},
		{"bottom_description", c.BottomDescription},
	}
}

// BrandRules is the subset of BrandConfig.V2Schema the checker reads:
// a banned-vocabulary list and word-count bounds.
type BrandRules struct {
	BannedPhrases []string
	MinWordCount  int
	MaxWordCount  int
}

// RulesFromConfig decodes the opaque BrandConfig.V2Schema blob into
// typed BrandRules at the component boundary, per §9's design note.
func RulesFromConfig(cfg *store.BrandConfig) BrandRules {
	var rules BrandRules
	if cfg == nil || cfg.V2Schema == nil {
		return rules
	}
	vocab, _ := cfg.V2Schema["vocabulary"].(map[string]any)
	if vocab != nil {
		if banned, ok := vocab["banned"].([]any); ok {
			for _, v := range banned {
				if s, ok := v.(string); ok {
					rules.BannedPhrases = append(rules.BannedPhrases, s)
				}
			}
		}
	}
	if minLen, ok := cfg.V2Schema["min_word_count"]; ok {
		rules.MinWordCount = toInt(minLen)
	}
	if maxLen, ok := cfg.V2Schema["max_word_count"]; ok {
		rules.MaxWordCount = toInt(maxLen)
	}
	return rules
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes HTML tags, used both by the word-count invariant
// (spec §3 invariant 4) and by the checks below.
func StripHTML(s string) string {
	return htmlTagPattern.ReplaceAllString(s, " ")
}

// WordCount sums whitespace-separated tokens across the four content
// fields after HTML-tag stripping, per spec §3 invariant 4.
func WordCount(c *store.PageContent) int {
	total := 0
	for _, f := range contentFields(c) {
		total += len(strings.Fields(StripHTML(f.text)))
	}
	return total
}

// Run executes every deterministic check and writes c.QAResults. It is
// idempotent apart from the CheckedAt timestamp.
func Run(c *store.PageContent, rules BrandRules) {
	var issues []store.QAIssue

	issues = append(issues, checkTier1Tropes(c)...)
	issues = append(issues, checkBannedPhrases(c, rules.BannedPhrases)...)
	issues = append(issues, checkLengthBounds(c, rules)...)
	issues = append(issues, checkHTMLBalance(c)...)

	c.QAResults = &store.QAResults{
		Passed:    len(issues) == 0,
		Issues:    issues,
		CheckedAt: time.Now().UTC(),
	}
}

func checkTier1Tropes(c *store.PageContent) []store.QAIssue {
	var issues []store.QAIssue
	for _, f := range contentFields(c) {
		lower := strings.ToLower(f.text)
		for _, word := range slices.Sorted(tier1Tropes.Iter()) {
			if idx := strings.Index(lower, word); idx >= 0 {
				issues = append(issues, store.QAIssue{
					Type:    IssueTier1AIWord,
					Field:   f.name,
					Excerpt: excerpt(f.text, idx, len(word)),
					RuleID:  "tier1_ai_word:" + word,
				})
			}
		}
	}
	return issues
}

func checkBannedPhrases(c *store.PageContent, banned []string) []store.QAIssue {
	if len(banned) == 0 {
		return nil
	}
	var issues []store.QAIssue
	for _, f := range contentFields(c) {
		lower := strings.ToLower(f.text)
		for _, phrase := range banned {
			p := strings.ToLower(strings.TrimSpace(phrase))
			if p == "" {
				continue
			}
			if idx := strings.Index(lower, p); idx >= 0 {
				issues = append(issues, store.QAIssue{
					Type:    IssueBannedPhrase,
					Field:   f.name,
					Excerpt: excerpt(f.text, idx, len(p)),
					RuleID:  "banned_phrase:" + p,
				})
			}
		}
	}
	return issues
}

func checkLengthBounds(c *store.PageContent, rules BrandRules) []store.QAIssue {
	var issues []store.QAIssue
	wc := WordCount(c)
	if rules.MinWordCount > 0 && wc < rules.MinWordCount {
		issues = append(issues, store.QAIssue{
			Type:    IssueLengthBound,
			Field:   "word_count",
			Excerpt: "below minimum",
			RuleID:  "length_bound:min",
		})
	}
	if rules.MaxWordCount > 0 && wc > rules.MaxWordCount {
		issues = append(issues, store.QAIssue{
			Type:    IssueLengthBound,
			Field:   "word_count",
			Excerpt: "above maximum",
			RuleID:  "length_bound:max",
		})
	}
	return issues
}

var htmlOpenTag = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)[^>/]*>`)
var htmlCloseTag = regexp.MustCompile(`</([a-zA-Z][a-zA-Z0-9]*)>`)
var htmlSelfClosing = sets.NewHashSet[string](8)

func init() {
	for _, t := range []string{"br", "hr", "img"} {
		htmlSelfClosing.Add(t)
	}
}

// checkHTMLBalance verifies open/close tag balance in the two
// description fields per spec §4.6. meta_description is plain text;
// top_description and bottom_description are the two HTML-bearing
// body fields.
func checkHTMLBalance(c *store.PageContent) []store.QAIssue {
	var issues []store.QAIssue
	for _, f := range []struct{ name, text string }{
		{"top_description", c.TopDescription},
		{"bottom_description", c.BottomDescription},
	} {
		if !htmlBalanced(f.text) {
			issues = append(issues, store.QAIssue{
				Type:    IssueUnbalancedHTML,
				Field:   f.name,
				Excerpt: excerpt(f.text, 0, min(len(f.text), 60)),
				RuleID:  "unbalanced_html",
			})
		}
	}
	return issues
}

func htmlBalanced(s string) bool {
	counts := map[string]int{}
	for _, m := range htmlOpenTag.FindAllStringSubmatch(s, -1) {
		tag := strings.ToLower(m[1])
		if htmlSelfClosing.Contains(tag) {
			continue
		}
		counts[tag]++
	}
	for _, m := range htmlCloseTag.FindAllStringSubmatch(s, -1) {
		counts[strings.ToLower(m[1])]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func excerpt(s string, idx, n int) string {
	start := idx
	if start < 0 {
		start = 0
	}
	end := start + n
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		start = end
	}
	return s[start:end]
}
