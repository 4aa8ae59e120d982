package taxonomy

import (
	"strings"

	"github.com/seoasis/contentforge/pkg/sets"
)

// Error codes per spec §4.10's Validator.
const (
	CodeInvalidLabels = "invalid_labels"
	CodeTooFewLabels  = "too_few_labels"
	CodeTooManyLabels = "too_many_labels"
	CodeNoTaxonomy    = "no_taxonomy"
)

const (
	minLabels = 2
	maxLabels = 5
)

// ValidationErrorDetail is one structured validator error.
type ValidationErrorDetail struct {
	Code    string
	Message string
	Details map[string]any
}

// ValidationResult is the shared validator's {valid, labels, errors}
// return shape, used for both AI assignment and user edits.
type ValidationResult struct {
	Valid  bool
	Labels []string
	Errors []ValidationErrorDetail
}

// normalizeLabels lowercases, trims, and de-duplicates while
// preserving first-seen order.
func normalizeLabels(labels []string) []string {
	seen := sets.NewHashSet[string](len(labels))
	var out []string
	for _, l := range labels {
		n := strings.ToLower(strings.TrimSpace(l))
		if n == "" || seen.Contains(n) {
			continue
		}
		seen.Add(n)
		out = append(out, n)
	}
	return out
}

// Validate implements spec §4.10's shared label validator: normalize,
// require count in [2, 5], require every label be in the taxonomy.
func Validate(labels []string, taxonomy []string) ValidationResult {
	if len(taxonomy) == 0 {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationErrorDetail{
				{Code: CodeNoTaxonomy, Message: "no taxonomy exists for this project"},
			},
		}
	}

	normalized := normalizeLabels(labels)
	taxonomySet := sets.NewHashSet[string](len(taxonomy))
	for _, t := range taxonomy {
		taxonomySet.Add(strings.ToLower(strings.TrimSpace(t)))
	}

	var errs []ValidationErrorDetail

	var invalid []string
	for _, l := range normalized {
		if !taxonomySet.Contains(l) {
			invalid = append(invalid, l)
		}
	}
	if len(invalid) > 0 {
		errs = append(errs, ValidationErrorDetail{
			Code:    CodeInvalidLabels,
			Message: "labels not present in taxonomy",
			Details: map[string]any{"labels": invalid},
		})
	}

	if len(normalized) < minLabels {
		errs = append(errs, ValidationErrorDetail{
			Code:    CodeTooFewLabels,
			Message: "fewer than the minimum number of labels",
			Details: map[string]any{"count": len(normalized), "min": minLabels},
		})
	}
	if len(normalized) > maxLabels {
		errs = append(errs, ValidationErrorDetail{
			Code:    CodeTooManyLabels,
			Message: "more than the maximum number of labels",
			Details: map[string]any{"count": len(normalized), "max": maxLabels},
		})
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Labels: normalized,
		Errors: errs,
	}
}
