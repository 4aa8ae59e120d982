// Package taxonomy implements C10: LLM-driven page-label taxonomy
// generation and assignment, with a shared validator used both for AI
// assignment and user edits.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/seoasis/contentforge/internal/providers/llm"
	"github.com/seoasis/contentforge/internal/store"
)

// Label is one taxonomy entry produced by generate_taxonomy.
type Label struct {
	Name        string   `json:"name" jsonschema_description:"A specific, concrete page-category label"`
	Description string   `json:"description" jsonschema_description:"What distinguishes pages in this label"`
	Examples    []string `json:"examples" jsonschema_description:"Example page titles or URLs that belong to this label"`
}

// TaxonomyResponse is the LLM's generate_taxonomy JSON shape.
type TaxonomyResponse struct {
	Labels    []Label `json:"labels"`
	Reasoning string  `json:"reasoning"`
}

// AssignmentResponse is the LLM's assign_labels JSON shape for one
// page.
type AssignmentResponse struct {
	Labels     []string `json:"labels"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

var (
	taxonomySchema   = generateSchema[TaxonomyResponse]()
	assignmentSchema = generateSchema[AssignmentResponse]()
)

func generateSchema[T any]() string {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(new(T))
	b, _ := json.Marshal(schema)
	return string(b)
}

const taxonomySystemPrompt = `You design a page-label taxonomy for an e-commerce or content site.
Produce between 2 and 12 labels. Every label must be specific and concrete to
the site's actual catalog and content — never generic labels such as
"Other", "Miscellaneous", "General", or "Uncategorized". Respond with JSON
matching the provided schema only, no prose outside the JSON object.`

// Service generates and assigns taxonomies via an LLM client.
type Service struct {
	llm    *llm.Client
	store  store.Store
	logger *slog.Logger
}

// New builds a taxonomy Service.
func New(llmClient *llm.Client, st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{llm: llmClient, store: st, logger: logger}
}

// pageSummary formats one completed CrawledPage into the compact line
// the taxonomy prompt expects: url, title and first H1. Meta
// description, product count and word count are not included.
func pageSummary(p *store.CrawledPage) string {
	firstH1 := ""
	if h1s, ok := p.Headings["h1"]; ok && len(h1s) > 0 {
		firstH1 = h1s[0]
	}
	return fmt.Sprintf("url=%s title=%q h1=%q", p.NormalizedURL, p.Title, firstH1)
}

// GenerateTaxonomy implements spec §4.10's generate_taxonomy(project_id):
// load completed pages, build a summary, submit to the LLM with a
// taxonomy-generation system prompt, parse the JSON response, and
// write it into project.phase_status.onboarding.taxonomy with a
// timestamp.
func (s *Service) GenerateTaxonomy(ctx context.Context, projectID uuid.UUID) (*TaxonomyResponse, error) {
	var pages []*store.CrawledPage
	if err := store.WithSession(ctx, s.store, func(sess store.Session) error {
		p, err := sess.ListCompletedPages(ctx, projectID)
		if err != nil {
			return err
		}
		pages = p
		return nil
	}); err != nil {
		return nil, err
	}

	var lines []string
	for _, p := range pages {
		lines = append(lines, pageSummary(p))
	}
	prompt := fmt.Sprintf("Pages:\n%s\n\nJSON schema:\n%s", strings.Join(lines, "\n"), taxonomySchema)

	res := s.llm.Complete(ctx, prompt, taxonomySystemPrompt, 2000, 0.2)
	if !res.Success {
		return nil, fmt.Errorf("taxonomy generation: llm call failed: %s", res.Error)
	}

	var out TaxonomyResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(res.Text)), &out); err != nil {
		return nil, fmt.Errorf("taxonomy generation: parse response: %w", err)
	}

	err := store.WithSession(ctx, s.store, func(sess store.Session) error {
		return sess.MergePhaseStatus(ctx, projectID, "onboarding", map[string]any{
			"taxonomy": map[string]any{
				"labels":       out.Labels,
				"reasoning":    out.Reasoning,
				"generated_at": time.Now().UTC().Format(time.RFC3339),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// loadTaxonomyNames reads the taxonomy label-name set previously
// written by GenerateTaxonomy out of project.phase_status.
func loadTaxonomyNames(project *store.Project) []string {
	onboarding, ok := project.PhaseStatus["onboarding"]
	if !ok {
		return nil
	}
	taxonomyBlob, ok := onboarding["taxonomy"].(map[string]any)
	if !ok {
		return nil
	}
	rawLabels, ok := taxonomyBlob["labels"].([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range rawLabels {
		if m, ok := item.(map[string]any); ok {
			if name, ok := m["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// AssignLabels implements spec §4.10's assign_labels(project_id): load
// the taxonomy, build a per-page prompt, parse the JSON response,
// validate via Validate, and persist to CrawledPage.Labels.
func (s *Service) AssignLabels(ctx context.Context, projectID uuid.UUID) error {
	var project *store.Project
	var pages []*store.CrawledPage
	if err := store.WithSession(ctx, s.store, func(sess store.Session) error {
		p, err := sess.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		project = p
		cp, err := sess.ListCompletedPages(ctx, projectID)
		if err != nil {
			return err
		}
		pages = cp
		return nil
	}); err != nil {
		return err
	}

	taxonomyNames := loadTaxonomyNames(project)
	if len(taxonomyNames) == 0 {
		return fmt.Errorf("taxonomy: %s", CodeNoTaxonomy)
	}

	for _, page := range pages {
		prompt := fmt.Sprintf(
			"Taxonomy labels: %s\n\nPage: %s\n\nAssign 2-5 labels from the taxonomy above. JSON schema:\n%s",
			strings.Join(taxonomyNames, ", "), pageSummary(page), assignmentSchema,
		)
		res := s.llm.Complete(ctx, prompt, "", 500, 0.1)
		if !res.Success {
			s.logger.Warn("taxonomy: label assignment failed, skipping page",
				slog.String("page_id", page.ID.String()), slog.String("error", res.Error))
			continue
		}

		var out AssignmentResponse
		if err := json.Unmarshal([]byte(llm.ExtractJSON(res.Text)), &out); err != nil {
			s.logger.Warn("taxonomy: failed to parse assignment response",
				slog.String("page_id", page.ID.String()), slog.Any("error", err))
			continue
		}

		validated := Validate(out.Labels, taxonomyNames)
		if !validated.Valid {
			s.logger.Warn("taxonomy: assignment failed validation",
				slog.String("page_id", page.ID.String()), slog.Any("errors", validated.Errors))
			continue
		}

		if err := store.WithSession(ctx, s.store, func(sess store.Session) error {
			return sess.SetCrawledPageLabels(ctx, page.ID, validated.Labels)
		}); err != nil {
			return err
		}
	}
	return nil
}
