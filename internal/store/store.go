package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound mirrors spec §7's NotFound(entity_type, id) kind at the
// storage boundary; callers wrap it with entity/id context.
var ErrNotFound = errors.New("not found")

// ErrDuplicate mirrors spec §7's DuplicateError — a uniqueness
// violation on upsert.
var ErrDuplicate = errors.New("duplicate")

// Session is a transactional scope: every read/write issued through
// it is part of one transaction that commits on Commit and rolls back
// on Rollback or on scope exit without a commit. Per-page scopes in
// C9 never share a Session (spec §5's ordering guarantee).
type Session interface {
	Projects
	CrawledPages
	ContentBriefs
	PageContents
	PromptLogs
	Jobs
	BrandConfigs

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens new transactional sessions against the durable store.
type Store interface {
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// WithSession runs fn inside a new Session, committing on success and
// rolling back (and propagating the error) on failure or panic. This
// is the one place per-page/per-phase code should reach for a scope,
// matching spec §9's "open a fresh transactional scope" language.
func WithSession(ctx context.Context, s Store, fn func(Session) error) (err error) {
	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = sess.Rollback(ctx)
			panic(r)
		}
	}()
	if err = fn(sess); err != nil {
		_ = sess.Rollback(ctx)
		return err
	}
	return sess.Commit(ctx)
}

type Projects interface {
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	MergePhaseStatus(ctx context.Context, projectID uuid.UUID, phase string, fields map[string]any) error
}

// ApprovedPage is the lightweight projection spec §4.9 step 1 loads.
type ApprovedPage struct {
	PageID                uuid.UUID
	URL                   string
	Keyword               string
	ExistingContentStatus PageContentStatus
}

type CrawledPages interface {
	ListApprovedPages(ctx context.Context, projectID uuid.UUID) ([]ApprovedPage, error)
	GetCrawledPage(ctx context.Context, id uuid.UUID) (*CrawledPage, error)
	SetCrawledPageLabels(ctx context.Context, id uuid.UUID, labels []string) error
	ListCompletedPages(ctx context.Context, projectID uuid.UUID) ([]*CrawledPage, error)
}

type ContentBriefs interface {
	GetContentBrief(ctx context.Context, pageID uuid.UUID) (*ContentBrief, error)
	UpsertContentBrief(ctx context.Context, brief *ContentBrief) error
}

type PageContents interface {
	GetPageContent(ctx context.Context, pageID uuid.UUID) (*PageContent, error)
	UpsertPageContent(ctx context.Context, content *PageContent) error
	ResetPagesToPending(ctx context.Context, pageIDs []uuid.UUID) error
	SetPageContentStatus(ctx context.Context, pageIDs []uuid.UUID, status PageContentStatus) error
}

type PromptLogs interface {
	AppendPromptLog(ctx context.Context, entry *PromptLog) error
}

type Jobs interface {
	GetJob(ctx context.Context, id uuid.UUID) (*CrawlHistory, error)
	FindInterruptedJobs(ctx context.Context, staleSeconds int64) ([]*CrawlHistory, error)
	UpdateJob(ctx context.Context, job *CrawlHistory) error
}

type BrandConfigs interface {
	GetBrandConfig(ctx context.Context, projectID uuid.UUID) (*BrandConfig, error)
}
