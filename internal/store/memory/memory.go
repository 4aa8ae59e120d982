// Package memory implements internal/store.Store entirely in-process,
// for tests and local development. Transactions are implemented as a
// copy-on-begin / swap-on-commit snapshot, which is sufficient to
// exercise rollback semantics without a real database.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/seoasis/contentforge/internal/store"
)

type data struct {
	projects      map[uuid.UUID]*store.Project
	crawledPages  map[uuid.UUID]*store.CrawledPage
	pageKeywords  map[uuid.UUID]*store.PageKeywords
	briefs        map[uuid.UUID]*store.ContentBrief
	pageContents  map[uuid.UUID]*store.PageContent
	promptLogs    []*store.PromptLog
	jobs          map[uuid.UUID]*store.CrawlHistory
	brandConfigs  map[uuid.UUID]*store.BrandConfig
}

func newData() *data {
	return &data{
		projects:     map[uuid.UUID]*store.Project{},
		crawledPages: map[uuid.UUID]*store.CrawledPage{},
		pageKeywords: map[uuid.UUID]*store.PageKeywords{},
		briefs:       map[uuid.UUID]*store.ContentBrief{},
		pageContents: map[uuid.UUID]*store.PageContent{},
		jobs:         map[uuid.UUID]*store.CrawlHistory{},
		brandConfigs: map[uuid.UUID]*store.BrandConfig{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.projects {
		cp := *v
		c.projects[k] = &cp
	}
	for k, v := range d.crawledPages {
		cp := *v
		c.crawledPages[k] = &cp
	}
	for k, v := range d.pageKeywords {
		cp := *v
		c.pageKeywords[k] = &cp
	}
	for k, v := range d.briefs {
		cp := *v
		c.briefs[k] = &cp
	}
	for k, v := range d.pageContents {
		cp := *v
		c.pageContents[k] = &cp
	}
	c.promptLogs = append(c.promptLogs, d.promptLogs...)
	for k, v := range d.jobs {
		cp := *v
		c.jobs[k] = &cp
	}
	for k, v := range d.brandConfigs {
		cp := *v
		c.brandConfigs[k] = &cp
	}
	return c
}

// Store is an in-memory store.Store.
type Store struct {
	mu   sync.Mutex
	live *data
}

// New returns an empty Store. Use the Seed* helpers to populate it.
func New() *Store {
	return &Store{live: newData()}
}

func (s *Store) Begin(_ context.Context) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &session{store: s, tx: s.live.clone()}, nil
}

func (s *Store) Close() error { return nil }

// --- seed helpers for tests ---

func (s *Store) SeedProject(p *store.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.projects[p.ID] = p
}

func (s *Store) SeedCrawledPage(p *store.CrawledPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.crawledPages[p.ID] = p
}

func (s *Store) SeedPageKeywords(k *store.PageKeywords) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.pageKeywords[k.CrawledPageID] = k
}

func (s *Store) SeedPageContent(c *store.PageContent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.pageContents[c.CrawledPageID] = c
}

func (s *Store) SeedBrandConfig(c *store.BrandConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.brandConfigs[c.ProjectID] = c
}

func (s *Store) SeedJob(j *store.CrawlHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.jobs[j.ID] = j
}

func (s *Store) SeedContentBrief(b *store.ContentBrief) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.briefs[b.PageID] = b
}

// Snapshot returns a read-only clone, useful for assertions in tests.
func (s *Store) Snapshot() *data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.clone()
}
