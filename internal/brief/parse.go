package brief

import (
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/seoasis/contentforge/internal/store"
)

// ParseResponse implements spec §4.8 step 3: parse the pop-merged
// response into ContentBrief fields.
func ParseResponse(pageID uuid.UUID, keyword string, merged map[string]any) *store.ContentBrief {
	b := &store.ContentBrief{
		PageID:  pageID,
		Keyword: keyword,
	}
	b.LSITerms = parseLSITerms(merged["lsaPhrases"])
	b.RelatedSearches = parseRelatedSearches(merged)
	b.Competitors = parseCompetitors(merged["competitors"])
	b.RelatedQuestions = parseRelatedQuestions(merged["relatedQuestions"])
	b.HeadingTargets = dedupeHeadingTargets(parseHeadingTargets(merged))
	b.KeywordTargets = parseKeywordTargets(merged)
	b.WordCountTarget = cast.ToInt(merged["wordCount"])
	b.WordCountMin, b.WordCountMax = parseWordCountBounds(merged, b.Competitors, b.WordCountTarget)
	b.PageScoreTarget = parsePageScoreTarget(merged, b.Competitors)

	raw := make(map[string]any, len(merged))
	for k, v := range merged {
		raw[k] = v
	}
	b.RawResponse = raw
	return b
}

// parseLSITerms takes lsaPhrases objects verbatim with defaults, per
// spec §4.8.
func parseLSITerms(v any) []store.LSITerm {
	var out []store.LSITerm
	for _, item := range asAnySlice(v) {
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, store.LSITerm{
			Phrase:       cast.ToString(m["phrase"]),
			Weight:       cast.ToFloat64(orDefault(m["weight"], 0)),
			AverageCount: cast.ToFloat64(orDefault(m["averageCount"], 0)),
			TargetCount:  cast.ToFloat64(orDefault(m["targetCount"], 0)),
		})
	}
	return out
}

func orDefault(v any, def any) any {
	if v == nil {
		return def
	}
	return v
}

// parseRelatedSearches prefers the preserved _keyword_variations field
// (step 1's "variations" before it was overwritten); falls back to
// relatedSearches[].query. Per spec §9's open question: prefer
// non-empty preserved variations, else fall back — so an empty (but
// present) preserved slice still falls through to relatedSearches.
func parseRelatedSearches(merged map[string]any) []string {
	if variations := stringSliceOf(merged["_keyword_variations"]); len(variations) > 0 {
		return variations
	}
	var out []string
	for _, item := range asAnySlice(merged["relatedSearches"]) {
		if m := asMap(item); m != nil {
			if q := cast.ToString(m["query"]); q != "" {
				out = append(out, q)
			}
			continue
		}
		if s := cast.ToString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringSliceOf(v any) []string {
	var out []string
	for _, item := range asAnySlice(v) {
		if s := cast.ToString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseCompetitors(v any) []store.Competitor {
	var out []store.Competitor
	for _, item := range asAnySlice(v) {
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, store.Competitor{
			URL:       cast.ToString(m["url"]),
			Title:     cast.ToString(m["title"]),
			H2Texts:   stringSliceOf(m["h2Texts"]),
			H3Texts:   stringSliceOf(m["h3Texts"]),
			PageScore: cast.ToFloat64(m["pageScore"]),
			WordCount: cast.ToInt(m["wordCount"]),
		})
	}
	return out
}

func parseRelatedQuestions(v any) []string {
	var out []string
	for _, item := range asAnySlice(v) {
		if m := asMap(item); m != nil {
			if q := cast.ToString(m["question"]); q != "" {
				out = append(out, q)
				continue
			}
		}
		if s := cast.ToString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseHeadingTargets accepts both an object-with-inner-object shape
// ({"headingTargets": {"recommendations": [...]}}) and a flat array
// shape ({"headingTargets": [...]}), per spec §4.8.
func parseHeadingTargets(merged map[string]any) []store.HeadingTarget {
	raw := merged["headingTargets"]
	var items []any
	if m := asMap(raw); m != nil {
		items = asAnySlice(m["recommendations"])
	} else {
		items = asAnySlice(raw)
	}

	var out []store.HeadingTarget
	for _, item := range items {
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, store.HeadingTarget{
			Tag:    cast.ToString(m["tag"]),
			Target: cast.ToString(m["target"]),
			Min:    cast.ToInt(m["min"]),
			Max:    cast.ToInt(m["max"]),
			Source: cast.ToString(m["source"]),
		})
	}
	return out
}

// dedupeHeadingTargets de-duplicates by (tag, target) case-insensitively.
func dedupeHeadingTargets(targets []store.HeadingTarget) []store.HeadingTarget {
	seen := map[string]bool{}
	var out []store.HeadingTarget
	for _, t := range targets {
		key := strings.ToLower(t.Tag) + "|" + strings.ToLower(t.Target)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// parseKeywordTargets merges exact-keyword placements and LSI
// placements into one slice, accepting both nested and flat shapes.
func parseKeywordTargets(merged map[string]any) []store.KeywordTarget {
	var out []store.KeywordTarget
	out = append(out, parseKeywordTargetGroup(merged["exactKeywordPlacements"], store.KeywordTargetExact)...)
	out = append(out, parseKeywordTargetGroup(merged["lsiPlacements"], store.KeywordTargetLSI)...)
	return out
}

func parseKeywordTargetGroup(raw any, kind store.KeywordTargetType) []store.KeywordTarget {
	var items []any
	if m := asMap(raw); m != nil {
		items = asAnySlice(m["placements"])
	} else {
		items = asAnySlice(raw)
	}

	var out []store.KeywordTarget
	for _, item := range items {
		m := asMap(item)
		if m == nil {
			continue
		}
		out = append(out, store.KeywordTarget{
			Signal:  cast.ToString(m["signal"]),
			Target:  cast.ToInt(m["target"]),
			Phrase:  cast.ToString(m["phrase"]),
			Comment: cast.ToString(m["comment"]),
			Type:    kind,
		})
	}
	return out
}

// parseWordCountBounds implements spec §4.8's precedence: prefer
// min/max of competitor word counts; otherwise
// {competitorsMin, competitorsMax} from the wordCount dict; otherwise
// +/-20% of target.
func parseWordCountBounds(merged map[string]any, competitors []store.Competitor, target int) (int, int) {
	if len(competitors) > 0 {
		min, max := competitors[0].WordCount, competitors[0].WordCount
		for _, c := range competitors[1:] {
			if c.WordCount < min {
				min = c.WordCount
			}
			if c.WordCount > max {
				max = c.WordCount
			}
		}
		if min > 0 || max > 0 {
			return min, max
		}
	}

	if wc := asMap(merged["wordCount"]); wc != nil {
		cMin := cast.ToInt(wc["competitorsMin"])
		cMax := cast.ToInt(wc["competitorsMax"])
		if cMin > 0 || cMax > 0 {
			return cMin, cMax
		}
	}

	if target > 0 {
		return int(float64(target) * 0.8), int(float64(target) * 1.2)
	}
	return 0, 0
}

// parsePageScoreTarget prefers the top-level pageScore field, else the
// mean of competitor page scores, per spec §4.8.
func parsePageScoreTarget(merged map[string]any, competitors []store.Competitor) float64 {
	if v, ok := merged["pageScore"]; ok {
		if f := cast.ToFloat64(v); f != 0 {
			return f
		}
	}
	if len(competitors) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range competitors {
		sum += c.PageScore
	}
	return sum / float64(len(competitors))
}
