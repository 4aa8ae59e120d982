package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/pkg/maps"
)

// session wraps one pgx.Tx. Every method issues its statements within
// that transaction; nothing is visible to other sessions until
// Commit.
type session struct {
	tx pgx.Tx
}

func (s *session) Commit(ctx context.Context) error   { return s.tx.Commit(ctx) }
func (s *session) Rollback(ctx context.Context) error { return s.tx.Rollback(ctx) }

func (s *session) GetProject(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT id, name, site_url, phase_status, brand_wizard_state
		FROM projects WHERE id = $1`, id)

	var p store.Project
	var phaseStatus, wizardState []byte
	if err := row.Scan(&p.ID, &p.Name, &p.SiteURL, &phaseStatus, &wizardState); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(phaseStatus, &p.PhaseStatus); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(wizardState, &p.BrandWizardState); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *session) MergePhaseStatus(ctx context.Context, projectID uuid.UUID, phase string, fields map[string]any) error {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.PhaseStatus == nil {
		p.PhaseStatus = map[string]map[string]any{}
	}
	existing := maps.HashMap[string, any](p.PhaseStatus[phase])
	if existing == nil {
		existing = maps.NewHashMap[string, any]()
	}
	existing.PutAll(maps.HashMap[string, any](fields))
	p.PhaseStatus[phase] = existing
	encoded, err := json.Marshal(p.PhaseStatus)
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, `UPDATE projects SET phase_status = $1 WHERE id = $2`, encoded, projectID)
	return err
}

func (s *session) ListApprovedPages(ctx context.Context, projectID uuid.UUID) ([]store.ApprovedPage, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT cp.id, cp.normalized_url, pk.primary_keyword, COALESCE(pc.status, 'pending')
		FROM crawled_pages cp
		JOIN page_keywords pk ON pk.crawled_page_id = cp.id AND pk.is_approved = true
		LEFT JOIN page_contents pc ON pc.crawled_page_id = cp.id
		WHERE cp.project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ApprovedPage
	for rows.Next() {
		var ap store.ApprovedPage
		var status string
		if err := rows.Scan(&ap.PageID, &ap.URL, &ap.Keyword, &status); err != nil {
			return nil, err
		}
		ap.ExistingContentStatus = store.PageContentStatus(status)
		out = append(out, ap)
	}
	return out, rows.Err()
}

func (s *session) GetCrawledPage(ctx context.Context, id uuid.UUID) (*store.CrawledPage, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT id, project_id, normalized_url, title, status, labels, headings
		FROM crawled_pages WHERE id = $1`, id)

	var p store.CrawledPage
	var headings []byte
	if err := row.Scan(&p.ID, &p.ProjectID, &p.NormalizedURL, &p.Title, &p.Status, &p.Labels, &headings); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("crawled_page %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	if len(headings) > 0 {
		if err := json.Unmarshal(headings, &p.Headings); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (s *session) SetCrawledPageLabels(ctx context.Context, id uuid.UUID, labels []string) error {
	_, err := s.tx.Exec(ctx, `UPDATE crawled_pages SET labels = $1 WHERE id = $2`, labels, id)
	return err
}

func (s *session) ListCompletedPages(ctx context.Context, projectID uuid.UUID) ([]*store.CrawledPage, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT cp.id, cp.project_id, cp.normalized_url, cp.title, cp.status, cp.labels, cp.headings
		FROM crawled_pages cp
		JOIN page_contents pc ON pc.crawled_page_id = cp.id
		WHERE cp.project_id = $1 AND pc.status = 'complete'`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.CrawledPage
	for rows.Next() {
		var p store.CrawledPage
		var headings []byte
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.NormalizedURL, &p.Title, &p.Status, &p.Labels, &headings); err != nil {
			return nil, err
		}
		if len(headings) > 0 {
			_ = json.Unmarshal(headings, &p.Headings)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *session) GetContentBrief(ctx context.Context, pageID uuid.UUID) (*store.ContentBrief, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT page_id, keyword, lsi_terms, related_searches, competitors,
		       related_questions, heading_targets, keyword_targets,
		       word_count_target, word_count_min, word_count_max,
		       page_score_target, raw_response, pop_task_id
		FROM content_briefs WHERE page_id = $1`, pageID)

	var b store.ContentBrief
	var lsi, related, competitors, headings, keywordTargets, raw []byte
	if err := row.Scan(&b.PageID, &b.Keyword, &lsi, &related, &competitors,
		&b.RelatedQuestions, &headings, &keywordTargets,
		&b.WordCountTarget, &b.WordCountMin, &b.WordCountMax,
		&b.PageScoreTarget, &raw, &b.PopTaskID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("content_brief %s: %w", pageID, store.ErrNotFound)
		}
		return nil, err
	}
	_ = json.Unmarshal(lsi, &b.LSITerms)
	_ = json.Unmarshal(related, &b.RelatedSearches)
	_ = json.Unmarshal(competitors, &b.Competitors)
	_ = json.Unmarshal(headings, &b.HeadingTargets)
	_ = json.Unmarshal(keywordTargets, &b.KeywordTargets)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &b.RawResponse)
	}
	return &b, nil
}

func (s *session) UpsertContentBrief(ctx context.Context, b *store.ContentBrief) error {
	lsi, _ := json.Marshal(b.LSITerms)
	related, _ := json.Marshal(b.RelatedSearches)
	competitors, _ := json.Marshal(b.Competitors)
	headings, _ := json.Marshal(b.HeadingTargets)
	keywordTargets, _ := json.Marshal(b.KeywordTargets)
	raw, _ := json.Marshal(b.RawResponse)

	_, err := s.tx.Exec(ctx, `
		INSERT INTO content_briefs (
			page_id, keyword, lsi_terms, related_searches, competitors,
			related_questions, heading_targets, keyword_targets,
			word_count_target, word_count_min, word_count_max,
			page_score_target, raw_response, pop_task_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (page_id) DO UPDATE SET
			keyword = EXCLUDED.keyword,
			lsi_terms = EXCLUDED.lsi_terms,
			related_searches = EXCLUDED.related_searches,
			competitors = EXCLUDED.competitors,
			related_questions = EXCLUDED.related_questions,
			heading_targets = EXCLUDED.heading_targets,
			keyword_targets = EXCLUDED.keyword_targets,
			word_count_target = EXCLUDED.word_count_target,
			word_count_min = EXCLUDED.word_count_min,
			word_count_max = EXCLUDED.word_count_max,
			page_score_target = EXCLUDED.page_score_target,
			raw_response = EXCLUDED.raw_response,
			pop_task_id = EXCLUDED.pop_task_id`,
		b.PageID, b.Keyword, lsi, related, competitors,
		b.RelatedQuestions, headings, keywordTargets,
		b.WordCountTarget, b.WordCountMin, b.WordCountMax,
		b.PageScoreTarget, raw, b.PopTaskID)
	return err
}

func (s *session) GetPageContent(ctx context.Context, pageID uuid.UUID) (*store.PageContent, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT crawled_page_id, status, page_title, meta_description,
		       top_description, bottom_description, word_count, is_approved,
		       approved_at, qa_results, generation_started_at, generation_completed_at
		FROM page_contents WHERE crawled_page_id = $1`, pageID)

	var c store.PageContent
	var qa []byte
	if err := row.Scan(&c.CrawledPageID, &c.Status, &c.PageTitle, &c.MetaDescription,
		&c.TopDescription, &c.BottomDescription, &c.WordCount, &c.IsApproved,
		&c.ApprovedAt, &qa, &c.GenerationStartedAt, &c.GenerationCompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("page_content %s: %w", pageID, store.ErrNotFound)
		}
		return nil, err
	}
	if len(qa) > 0 {
		var results store.QAResults
		if err := json.Unmarshal(qa, &results); err == nil {
			c.QAResults = &results
		}
	}
	return &c, nil
}

func (s *session) UpsertPageContent(ctx context.Context, c *store.PageContent) error {
	var qa []byte
	if c.QAResults != nil {
		qa, _ = json.Marshal(c.QAResults)
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO page_contents (
			crawled_page_id, status, page_title, meta_description,
			top_description, bottom_description, word_count, is_approved,
			approved_at, qa_results, generation_started_at, generation_completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (crawled_page_id) DO UPDATE SET
			status = EXCLUDED.status,
			page_title = EXCLUDED.page_title,
			meta_description = EXCLUDED.meta_description,
			top_description = EXCLUDED.top_description,
			bottom_description = EXCLUDED.bottom_description,
			word_count = EXCLUDED.word_count,
			is_approved = EXCLUDED.is_approved,
			approved_at = EXCLUDED.approved_at,
			qa_results = EXCLUDED.qa_results,
			generation_started_at = EXCLUDED.generation_started_at,
			generation_completed_at = EXCLUDED.generation_completed_at`,
		c.CrawledPageID, c.Status, c.PageTitle, c.MetaDescription,
		c.TopDescription, c.BottomDescription, c.WordCount, c.IsApproved,
		c.ApprovedAt, qa, c.GenerationStartedAt, c.GenerationCompletedAt)
	return err
}

func (s *session) ResetPagesToPending(ctx context.Context, pageIDs []uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE page_contents
		SET status = 'pending', generation_started_at = NULL, generation_completed_at = NULL
		WHERE crawled_page_id = ANY($1)`, pageIDs)
	return err
}

func (s *session) SetPageContentStatus(ctx context.Context, pageIDs []uuid.UUID, status store.PageContentStatus) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE page_contents SET status = $1 WHERE crawled_page_id = ANY($2)`, status, pageIDs)
	return err
}

func (s *session) AppendPromptLog(ctx context.Context, entry *store.PromptLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO prompt_logs (page_content_id, step, role, prompt_text, response_text, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.PageContentID, entry.Step, entry.Role, entry.PromptText, entry.ResponseText, entry.CreatedAt)
	return err
}

func (s *session) GetJob(ctx context.Context, id uuid.UUID) (*store.CrawlHistory, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT id, project_id, status, started_at, completed_at, updated_at,
		       pages_crawled, pages_failed, stats, error_log, error_message
		FROM crawl_history WHERE id = $1`, id)

	var j store.CrawlHistory
	var stats, errorLog []byte
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Status, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
		&j.PagesCrawled, &j.PagesFailed, &stats, &errorLog, &j.ErrorMessage); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	_ = json.Unmarshal(stats, &j.Stats)
	_ = json.Unmarshal(errorLog, &j.ErrorLog)
	return &j, nil
}

func (s *session) FindInterruptedJobs(ctx context.Context, staleSeconds int64) ([]*store.CrawlHistory, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, project_id, status, started_at, completed_at, updated_at,
		       pages_crawled, pages_failed, stats, error_log, error_message
		FROM crawl_history
		WHERE status IN ('pending', 'running')
		  AND updated_at < now() - ($1 || ' seconds')::interval`, staleSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.CrawlHistory
	for rows.Next() {
		var j store.CrawlHistory
		var stats, errorLog []byte
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Status, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
			&j.PagesCrawled, &j.PagesFailed, &stats, &errorLog, &j.ErrorMessage); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(stats, &j.Stats)
		_ = json.Unmarshal(errorLog, &j.ErrorLog)
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *session) UpdateJob(ctx context.Context, j *store.CrawlHistory) error {
	stats, _ := json.Marshal(j.Stats)
	errorLog, _ := json.Marshal(j.ErrorLog)
	_, err := s.tx.Exec(ctx, `
		UPDATE crawl_history SET
			status = $1, completed_at = $2, updated_at = now(),
			pages_crawled = $3, pages_failed = $4, stats = $5,
			error_log = $6, error_message = $7
		WHERE id = $8`,
		j.Status, j.CompletedAt, j.PagesCrawled, j.PagesFailed, stats, errorLog, j.ErrorMessage, j.ID)
	return err
}

func (s *session) GetBrandConfig(ctx context.Context, projectID uuid.UUID) (*store.BrandConfig, error) {
	row := s.tx.QueryRow(ctx, `
		SELECT project_id, brand_name, v2_schema FROM brand_configs WHERE project_id = $1`, projectID)

	var c store.BrandConfig
	var schema []byte
	if err := row.Scan(&c.ProjectID, &c.BrandName, &schema); err != nil {
		if err == pgx.ErrNoRows {
			return &store.BrandConfig{ProjectID: projectID, V2Schema: map[string]any{}}, nil
		}
		return nil, err
	}
	_ = json.Unmarshal(schema, &c.V2Schema)
	return &c, nil
}
