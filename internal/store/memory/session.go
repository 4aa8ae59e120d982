package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/pkg/maps"
)

// session is a copy-on-begin transactional scope: all reads/writes go
// against tx, which replaces the store's live data on Commit and is
// discarded on Rollback.
type session struct {
	store *Store
	tx    *data
	done  bool
}

func (s *session) Commit(_ context.Context) error {
	if s.done {
		return nil
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.live = s.tx
	s.done = true
	return nil
}

func (s *session) Rollback(_ context.Context) error {
	s.done = true
	return nil
}

func (s *session) GetProject(_ context.Context, id uuid.UUID) (*store.Project, error) {
	p, ok := s.tx.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *session) MergePhaseStatus(_ context.Context, projectID uuid.UUID, phase string, fields map[string]any) error {
	p, ok := s.tx.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, store.ErrNotFound)
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
	return nil
}

func (s *session) ListApprovedPages(_ context.Context, projectID uuid.UUID) ([]store.ApprovedPage, error) {
	var out []store.ApprovedPage
	for id, kw := range s.tx.pageKeywords {
		if !kw.IsApproved {
			continue
		}
		page, ok := s.tx.crawledPages[id]
		if !ok || page.ProjectID != projectID {
			continue
		}
		status := store.PageContentPending
		if pc, ok := s.tx.pageContents[id]; ok {
			status = pc.Status
		}
		out = append(out, store.ApprovedPage{
			PageID:                id,
			URL:                   page.NormalizedURL,
			Keyword:               kw.PrimaryKeyword,
			ExistingContentStatus: status,
		})
	}
	return out, nil
}

func (s *session) GetCrawledPage(_ context.Context, id uuid.UUID) (*store.CrawledPage, error) {
	p, ok := s.tx.crawledPages[id]
	if !ok {
		return nil, fmt.Errorf("crawled_page %s: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *session) SetCrawledPageLabels(_ context.Context, id uuid.UUID, labels []string) error {
	p, ok := s.tx.crawledPages[id]
	if !ok {
		return fmt.Errorf("crawled_page %s: %w", id, store.ErrNotFound)
	}
	p.Labels = labels
	return nil
}

func (s *session) ListCompletedPages(_ context.Context, projectID uuid.UUID) ([]*store.CrawledPage, error) {
	var out []*store.CrawledPage
	for _, p := range s.tx.crawledPages {
		if p.ProjectID != projectID {
			continue
		}
		pc, ok := s.tx.pageContents[p.ID]
		if !ok || pc.Status != store.PageContentComplete {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *session) GetContentBrief(_ context.Context, pageID uuid.UUID) (*store.ContentBrief, error) {
	b, ok := s.tx.briefs[pageID]
	if !ok {
		return nil, fmt.Errorf("content_brief %s: %w", pageID, store.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *session) UpsertContentBrief(_ context.Context, brief *store.ContentBrief) error {
	cp := *brief
	s.tx.briefs[brief.PageID] = &cp
	return nil
}

func (s *session) GetPageContent(_ context.Context, pageID uuid.UUID) (*store.PageContent, error) {
	c, ok := s.tx.pageContents[pageID]
	if !ok {
		return nil, fmt.Errorf("page_content %s: %w", pageID, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *session) UpsertPageContent(_ context.Context, content *store.PageContent) error {
	cp := *content
	s.tx.pageContents[content.CrawledPageID] = &cp
	return nil
}

func (s *session) ResetPagesToPending(_ context.Context, pageIDs []uuid.UUID) error {
	for _, id := range pageIDs {
		pc, ok := s.tx.pageContents[id]
		if !ok {
			pc = &store.PageContent{CrawledPageID: id}
			s.tx.pageContents[id] = pc
		}
		pc.Status = store.PageContentPending
		pc.GenerationStartedAt = nil
		pc.GenerationCompletedAt = nil
	}
	return nil
}

func (s *session) SetPageContentStatus(_ context.Context, pageIDs []uuid.UUID, status store.PageContentStatus) error {
	for _, id := range pageIDs {
		pc, ok := s.tx.pageContents[id]
		if !ok {
			pc = &store.PageContent{CrawledPageID: id}
			s.tx.pageContents[id] = pc
		}
		pc.Status = status
	}
	return nil
}

func (s *session) AppendPromptLog(_ context.Context, entry *store.PromptLog) error {
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.tx.promptLogs = append(s.tx.promptLogs, &cp)
	return nil
}

func (s *session) GetJob(_ context.Context, id uuid.UUID) (*store.CrawlHistory, error) {
	j, ok := s.tx.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (s *session) FindInterruptedJobs(_ context.Context, staleSeconds int64) ([]*store.CrawlHistory, error) {
	threshold := time.Now().Add(-time.Duration(staleSeconds) * time.Second)
	var out []*store.CrawlHistory
	for _, j := range s.tx.jobs {
		if j.Status.IsTerminal() {
			continue
		}
		if j.UpdatedAt.After(threshold) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (s *session) UpdateJob(_ context.Context, job *store.CrawlHistory) error {
	cp := *job
	s.tx.jobs[job.ID] = &cp
	return nil
}

func (s *session) GetBrandConfig(_ context.Context, projectID uuid.UUID) (*store.BrandConfig, error) {
	c, ok := s.tx.brandConfigs[projectID]
	if !ok {
		return &store.BrandConfig{ProjectID: projectID, V2Schema: map[string]any{}}, nil
	}
	cp := *c
	return &cp, nil
}
