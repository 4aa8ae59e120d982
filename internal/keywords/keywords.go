// Package keywords implements C7: pure keyword-selection algorithms
// (primary pick, secondary mix, Jaccard-based related-collection
// ranking and clustering). Every exported function here is
// side-effect free.
package keywords

import (
	"sort"
	"strings"

	"github.com/seoasis/contentforge/pkg/sets"
)

// Candidate is one keyword-volume entry considered by the selection
// algorithms.
type Candidate struct {
	Keyword     string
	Volume      int
	CPC         float64
	Competition float64
}

// Normalize lowercases and collapses whitespace, the comparison key
// every function below uses for exclusion/dedup checks.
func Normalize(keyword string) string {
	return strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
}

func normalizedSet(keywords []string) sets.Set[string] {
	s := sets.NewHashSet[string](len(keywords))
	for _, k := range keywords {
		s.Add(Normalize(k))
	}
	return s
}

// sortByVolumeThenLength sorts candidates by (-volume, len(keyword)),
// the tie-break rule spec §4.7 specifies for both primary and
// secondary selection.
func sortByVolumeThenLength(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Volume != c[j].Volume {
			return c[i].Volume > c[j].Volume
		}
		return len(c[i].Keyword) < len(c[j].Keyword)
	})
}

// PrimaryKeyword implements spec §4.7's primary-keyword pick:
// filter out excludedPrimaries (case-insensitive), sort by
// (-volume, len), return the first. If no candidate has positive
// volume, fall back to the first unexcluded candidate in input order.
func PrimaryKeyword(candidates []Candidate, excludedPrimaries []string) (Candidate, bool) {
	excluded := normalizedSet(excludedPrimaries)

	var eligible []Candidate
	for _, c := range candidates {
		if excluded.Contains(Normalize(c.Keyword)) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return Candidate{}, false
	}

	anyPositive := false
	for _, c := range eligible {
		if c.Volume > 0 {
			anyPositive = true
			break
		}
	}
	if !anyPositive {
		return eligible[0], true
	}

	sorted := append([]Candidate(nil), eligible...)
	sortByVolumeThenLength(sorted)
	return sorted[0], true
}

// SecondaryConfig tunes SecondaryKeywords per spec §4.7.
type SecondaryConfig struct {
	MinSpecific           int
	MaxSpecific           int
	MinBroader            int
	MaxBroader            int
	BroaderVolumeThreshold int // defaults to 1000 when zero
	Total                  int // defaults to 5 when zero
}

func (cfg SecondaryConfig) withDefaults() SecondaryConfig {
	if cfg.BroaderVolumeThreshold == 0 {
		cfg.BroaderVolumeThreshold = 1000
	}
	if cfg.Total == 0 {
		cfg.Total = 5
	}
	return cfg
}

// SecondaryKeywords implements spec §4.7's secondary-keyword mix:
// specific candidates first (up to MaxSpecific), then broader
// candidates from the full universe filling remaining slots up to
// Total, falling back to unpicked specifics if still short. Counts
// are re-derived from the normalized picked set at the end, per §9's
// open-question note on re-deriving specific/broader totals rather
// than trusting a pre-mutation membership check.
func SecondaryKeywords(primary string, specific, universe []Candidate, excludedPrimaries []string, cfg SecondaryConfig) []Candidate {
	cfg = cfg.withDefaults()
	excluded := normalizedSet(excludedPrimaries)
	primaryNorm := Normalize(primary)

	specificSet := sets.NewHashSet[string](len(specific))
	for _, c := range specific {
		specificSet.Add(Normalize(c.Keyword))
	}

	var eligibleSpecific []Candidate
	for _, c := range specific {
		n := Normalize(c.Keyword)
		if n == primaryNorm || excluded.Contains(n) || c.Volume <= 0 {
			continue
		}
		eligibleSpecific = append(eligibleSpecific, c)
	}
	sortByVolumeThenLength(eligibleSpecific)

	maxSpecific := cfg.MaxSpecific
	if maxSpecific > len(eligibleSpecific) {
		maxSpecific = len(eligibleSpecific)
	}
	picked := append([]Candidate(nil), eligibleSpecific[:maxSpecific]...)

	pickedSet := sets.NewHashSet[string](cfg.Total)
	for _, c := range picked {
		pickedSet.Add(Normalize(c.Keyword))
	}

	remaining := cfg.Total - len(picked)
	if remaining > 0 {
		var eligibleBroader []Candidate
		for _, c := range universe {
			n := Normalize(c.Keyword)
			if n == primaryNorm || excluded.Contains(n) || pickedSet.Contains(n) || specificSet.Contains(n) {
				continue
			}
			if c.Volume < cfg.BroaderVolumeThreshold {
				continue
			}
			eligibleBroader = append(eligibleBroader, c)
		}
		sortByVolumeThenLength(eligibleBroader)

		maxBroader := cfg.MaxBroader
		if maxBroader > remaining {
			maxBroader = remaining
		}
		if maxBroader > len(eligibleBroader) {
			maxBroader = len(eligibleBroader)
		}
		for _, c := range eligibleBroader[:maxBroader] {
			picked = append(picked, c)
			pickedSet.Add(Normalize(c.Keyword))
		}
	}

	if len(picked) < cfg.Total {
		for _, c := range eligibleSpecific[maxSpecific:] {
			if len(picked) >= cfg.Total {
				break
			}
			n := Normalize(c.Keyword)
			if pickedSet.Contains(n) {
				continue
			}
			picked = append(picked, c)
			pickedSet.Add(n)
		}
	}

	return picked
}

// RelatedCollection is a candidate collection scored against a source
// label set, used both by RelatedCollections and Cluster.
type RelatedCollection struct {
	ID     string
	Labels []string
}

// Scored pairs a RelatedCollection with its Jaccard score against the
// source set.
type Scored struct {
	Collection RelatedCollection
	Score      float64
}

// Jaccard computes |A∩B| / |A∪B| over two label sets.
func Jaccard(a, b []string) float64 {
	setA := normalizedSet(a)
	setB := normalizedSet(b)
	union := sets.Union(setA, setB)
	if union.Size() == 0 {
		return 0
	}
	intersection := sets.Intersection(setA, setB)
	return float64(intersection.Size()) / float64(union.Size())
}

// RelatedCollections implements spec §4.7's related-collections-by-
// Jaccard operation: score every candidate against source, keep
// those at or above threshold, sort descending, limit.
func RelatedCollections(source []string, candidates []RelatedCollection, threshold float64, limit int) []Scored {
	var out []Scored
	for _, c := range candidates {
		score := Jaccard(source, c.Labels)
		if score >= threshold {
			out = append(out, Scored{Collection: c, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Cluster implements spec §4.7's greedy single-pass clustering mode:
// any two collections with J >= clusterThreshold land in the same
// cluster. Clustering is order-dependent (first collection to match
// claims a cluster), matching a greedy single-pass algorithm.
func Cluster(collections []RelatedCollection, clusterThreshold float64) [][]RelatedCollection {
	var clusters [][]RelatedCollection
	assigned := make([]bool, len(collections))

	for i, c := range collections {
		if assigned[i] {
			continue
		}
		cluster := []RelatedCollection{c}
		assigned[i] = true
		for j := i + 1; j < len(collections); j++ {
			if assigned[j] {
				continue
			}
			if Jaccard(c.Labels, collections[j].Labels) >= clusterThreshold {
				cluster = append(cluster, collections[j])
				assigned[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}
