// Package pipeline implements C9: the two-phase content generation
// orchestrator at the heart of the system. Phase 1 prefetches briefs
// for every page needing generation with unbounded parallelism; Phase
// 2 processes each such page, strictly sequentially per page, through
// write and check, gated by a concurrency semaphore.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seoasis/contentforge/internal/brief"
	"github.com/seoasis/contentforge/internal/providers/llm"
	"github.com/seoasis/contentforge/internal/quality"
	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/pkg/ptr"
	"github.com/seoasis/contentforge/pkg/safe"
	xsync "github.com/seoasis/contentforge/pkg/sync"
)

// ErrAlreadyActive is returned by Run when the project already has a
// pipeline run in flight (spec §3 invariant 5, §4.9's duplicate guard).
var ErrAlreadyActive = errors.New("pipeline: a run is already active for this project")

// PipelinePageResult is one page's outcome (spec §4.9's result
// aggregation).
type PipelinePageResult struct {
	PageID  uuid.UUID
	URL     string
	Success bool
	Error   string
	Skipped bool
}

// PipelineResult is run_pipeline's return shape.
type PipelineResult struct {
	ProjectID   uuid.UUID
	TotalPages  int
	Succeeded   int
	Failed      int
	Skipped     int
	PageResults []PipelinePageResult
	StartedAt   time.Time
	CompletedAt time.Time
}

// Config tunes a Pipeline.
type Config struct {
	ContentGenerationConcurrency int
}

// Pipeline is the C9 orchestrator.
type Pipeline struct {
	store    store.Store
	brief    *brief.Orchestrator
	llm      *llm.Client
	registry *Registry
	progress *ProgressPublisher
	cfg      Config
	logger   *slog.Logger
}

// New builds a Pipeline. progressPub may be nil (no-op publisher).
func New(st store.Store, briefOrch *brief.Orchestrator, llmClient *llm.Client, registry *Registry, progressPub *ProgressPublisher, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.ContentGenerationConcurrency <= 0 {
		cfg.ContentGenerationConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Pipeline{
		store:    st,
		brief:    briefOrch,
		llm:      llmClient,
		registry: registry,
		progress: progressPub,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run implements spec §4.9's run_pipeline(project_id, force_refresh,
// refresh_briefs). The caller (HTTP layer) is expected to have
// already checked Registry.IsActive for the 409 response; Run itself
// re-checks with TryStart so the guard is atomic against races.
func (p *Pipeline) Run(ctx context.Context, projectID uuid.UUID, forceRefresh, refreshBriefs bool) (*PipelineResult, error) {
	if !p.registry.TryStart(projectID) {
		return nil, ErrAlreadyActive
	}
	defer p.registry.Finish(projectID)

	result := &PipelineResult{ProjectID: projectID, StartedAt: time.Now().UTC()}
	progress := newProgress(projectID)
	progress.setPhase("loading")

	var pages []store.ApprovedPage
	var brand *store.BrandConfig
	err := store.WithSession(ctx, p.store, func(sess store.Session) error {
		ap, err := sess.ListApprovedPages(ctx, projectID)
		if err != nil {
			return err
		}
		pages = ap

		bc, err := sess.GetBrandConfig(ctx, projectID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		brand = bc
		return nil
	})
	if err != nil {
		p.logger.Error("pipeline: failed to load approved pages", slog.String("project_id", projectID.String()), slog.Any("error", err))
		result.CompletedAt = time.Now().UTC()
		return result, err
	}
	result.TotalPages = len(pages)

	if forceRefresh {
		ids := make([]uuid.UUID, 0, len(pages))
		for _, pg := range pages {
			ids = append(ids, pg.PageID)
		}
		if len(ids) > 0 {
			if err := store.WithSession(ctx, p.store, func(sess store.Session) error {
				return sess.ResetPagesToPending(ctx, ids)
			}); err != nil {
				p.logger.Error("pipeline: force_refresh reset failed", slog.String("project_id", projectID.String()), slog.Any("error", err))
			}
		}
	}

	var phase1, skipped []store.ApprovedPage
	for _, pg := range pages {
		if forceRefresh || pg.ExistingContentStatus != store.PageContentComplete {
			phase1 = append(phase1, pg)
		} else {
			skipped = append(skipped, pg)
		}
	}

	for _, pg := range skipped {
		result.PageResults = append(result.PageResults, PipelinePageResult{PageID: pg.PageID, URL: pg.URL, Skipped: true})
		result.Skipped++
	}

	if len(phase1) > 0 {
		ids := make([]uuid.UUID, 0, len(phase1))
		for _, pg := range phase1 {
			ids = append(ids, pg.PageID)
		}
		if err := store.WithSession(ctx, p.store, func(sess store.Session) error {
			return sess.SetPageContentStatus(ctx, ids, store.PageContentGeneratingBrief)
		}); err != nil {
			p.logger.Error("pipeline: batch status set failed", slog.String("project_id", projectID.String()), slog.Any("error", err))
		}
	}

	progress.setPhase("briefing")
	p.prefetchBriefs(ctx, phase1, refreshBriefs, progress)

	progress.setPhase("writing")
	pageResults := p.runPhase2(ctx, projectID, phase1, brand, forceRefresh, progress)
	result.PageResults = append(result.PageResults, pageResults...)

	for _, r := range pageResults {
		switch {
		case r.Skipped:
			result.Skipped++
		case r.Success:
			result.Succeeded++
		default:
			result.Failed++
		}
	}

	result.CompletedAt = time.Now().UTC()
	_ = p.progress.Publish(ctx, ProgressEvent{ProjectID: projectID, Phase: "complete", Stored: progress.snapshot().Stored, At: result.CompletedAt})
	return result, nil
}

// prefetchBriefs implements spec §4.9's Phase 1: one concurrent,
// ungated task per page running C8 in its own transactional scope.
// Exceptions from a single fetch are swallowed (logged); Phase 2's
// per-page run retries the brief fetch from cache or fresh. Grounded
// on ai/rag/pipeline.go's retrieveByQueries errgroup fan-out.
func (p *Pipeline) prefetchBriefs(ctx context.Context, pages []store.ApprovedPage, refreshBriefs bool, progress *Progress) {
	if len(pages) == 0 || p.brief == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(pages))

	for _, pg := range pages {
		pg := pg
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					panicErr := safe.NewPanicError(r, debug.Stack())
					p.logger.Error("pipeline: phase 1 brief prefetch panicked",
						slog.String("page_id", pg.PageID.String()), slog.Any("error", panicErr))
				}
			}()
			outcome := p.brief.Fetch(gctx, pg.PageID, pg.Keyword, pg.URL, refreshBriefs)
			if err := outcome.Error(); err != nil {
				p.logger.Warn("pipeline: phase 1 brief prefetch failed, will retry in phase 2",
					slog.String("page_id", pg.PageID.String()), slog.Any("error", err))
				return nil
			}
			progress.incStored()
			return nil
		})
	}
	_ = g.Wait()
}

// runPhase2 implements spec §4.9's Phase 2: gated write+check, one
// page per goroutine slot, bounded by cfg.ContentGenerationConcurrency.
// Grounded on core/scheduler/scheduler.go's pkg/sync.Limiter gating.
func (p *Pipeline) runPhase2(ctx context.Context, projectID uuid.UUID, pages []store.ApprovedPage, brand *store.BrandConfig, forceRefresh bool, progress *Progress) []PipelinePageResult {
	if len(pages) == 0 {
		return nil
	}

	limiter := xsync.NewLimiter(p.cfg.ContentGenerationConcurrency)
	results := make([]PipelinePageResult, len(pages))

	var wg sync.WaitGroup
	for i, pg := range pages {
		i, pg := i, pg
		limiter.Acquire()
		wg.Add(1)
		safe.Go(func() {
			defer wg.Done()
			defer limiter.Release()
			results[i] = p.processPage(ctx, pg, brand, forceRefresh)
			if results[i].Success {
				progress.incStored()
			}
			_ = p.progress.Publish(ctx, ProgressEvent{
				ProjectID: projectID, Phase: "page_complete", PageID: pg.PageID,
				Status: statusLabel(results[i]), At: time.Now().UTC(),
			})
		}, func(err error) {
			p.logger.Error("pipeline: phase 2 page processing panicked",
				slog.String("page_id", pg.PageID.String()), slog.Any("error", err))
			results[i] = PipelinePageResult{PageID: pg.PageID, URL: pg.URL, Success: false, Error: err.Error()}
		})
	}
	wg.Wait()
	return results
}

func statusLabel(r PipelinePageResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "complete"
	default:
		return "failed"
	}
}

// processPage runs the per-page state machine of spec §4.9's table:
// generating_brief → writing → checking → complete, or failed at any
// step. Every error is captured into the returned result; nothing
// escapes this function (spec §9's "nothing escapes to the top
// level").
func (p *Pipeline) processPage(ctx context.Context, pg store.ApprovedPage, brand *store.BrandConfig, forceRefresh bool) PipelinePageResult {
	res := PipelinePageResult{PageID: pg.PageID, URL: pg.URL}

	content, err := p.loadOrInitContent(ctx, pg.PageID)
	if err != nil {
		return p.failPage(ctx, pg, fmt.Errorf("load content: %w", err))
	}

	content.Status = store.PageContentGeneratingBrief
	now := time.Now().UTC()
	content.GenerationStartedAt = ptr.Pointer(now)
	if err := p.saveContent(ctx, content); err != nil {
		return p.failPage(ctx, pg, fmt.Errorf("persist generating_brief: %w", err))
	}

	outcome := p.brief.Fetch(ctx, pg.PageID, pg.Keyword, pg.URL, forceRefresh)
	var pageBrief *store.ContentBrief
	if err := outcome.Error(); err == nil {
		pageBrief = outcome.Value().Brief
		p.logBrief(ctx, pg.PageID, pageBrief)
	} else {
		p.logger.Warn("pipeline: phase 2 brief fetch failed, writing without a brief",
			slog.String("page_id", pg.PageID.String()), slog.Any("error", err))
	}

	content.Status = store.PageContentWriting
	if err := p.saveContent(ctx, content); err != nil {
		return p.failPage(ctx, pg, fmt.Errorf("persist writing: %w", err))
	}

	written, completion, err := runWriter(ctx, p.llm, pg.Keyword, pg.URL, pageBrief, brand)
	p.logPrompt(ctx, pg.PageID, store.PromptStepWriting, buildWriterPrompt(pg.Keyword, pg.URL, pageBrief, brand), completion.Text)
	if err != nil {
		content.Status = store.PageContentFailed
		content.QAResults = &store.QAResults{Error: err.Error(), CheckedAt: time.Now().UTC()}
		_ = p.saveContent(ctx, content)
		res.Error = err.Error()
		return res
	}

	content.Edit(func(c *store.PageContent) {
		c.PageTitle = written.PageTitle
		c.MetaDescription = written.MetaDescription
		c.TopDescription = written.TopDescription
		c.BottomDescription = written.BottomDescription
	})
	content.WordCount = quality.WordCount(content)
	content.Status = store.PageContentChecking
	if err := p.saveContent(ctx, content); err != nil {
		return p.failPage(ctx, pg, fmt.Errorf("persist checking: %w", err))
	}

	rules := quality.RulesFromConfig(brand)
	quality.Run(content, rules)

	content.Status = store.PageContentComplete
	completedAt := time.Now().UTC()
	content.GenerationCompletedAt = ptr.Pointer(completedAt)
	if err := p.saveContent(ctx, content); err != nil {
		return p.failPage(ctx, pg, fmt.Errorf("persist complete: %w", err))
	}

	res.Success = true
	return res
}

func (p *Pipeline) loadOrInitContent(ctx context.Context, pageID uuid.UUID) (*store.PageContent, error) {
	var content *store.PageContent
	err := store.WithSession(ctx, p.store, func(sess store.Session) error {
		c, err := sess.GetPageContent(ctx, pageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				content = &store.PageContent{CrawledPageID: pageID, Status: store.PageContentPending}
				return nil
			}
			return err
		}
		content = c
		return nil
	})
	return content, err
}

func (p *Pipeline) saveContent(ctx context.Context, content *store.PageContent) error {
	return store.WithSession(ctx, p.store, func(sess store.Session) error {
		return sess.UpsertPageContent(ctx, content)
	})
}

func (p *Pipeline) logBrief(ctx context.Context, pageID uuid.UUID, b *store.ContentBrief) {
	if b == nil {
		return
	}
	entry := &store.PromptLog{
		PageContentID: pageID,
		Step:          store.PromptStepContentBrief,
		Role:          "system",
		PromptText:    fmt.Sprintf("keyword=%s", b.Keyword),
		ResponseText:  fmt.Sprintf("word_count_target=%d page_score_target=%.1f", b.WordCountTarget, b.PageScoreTarget),
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.WithSession(ctx, p.store, func(sess store.Session) error {
		return sess.AppendPromptLog(ctx, entry)
	}); err != nil {
		p.logger.Warn("pipeline: failed to append brief prompt log", slog.String("page_id", pageID.String()), slog.Any("error", err))
	}
}

func (p *Pipeline) logPrompt(ctx context.Context, pageID uuid.UUID, step store.PromptStep, promptText, responseText string) {
	entry := &store.PromptLog{
		PageContentID: pageID,
		Step:          step,
		Role:          "assistant",
		PromptText:    promptText,
		ResponseText:  responseText,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.WithSession(ctx, p.store, func(sess store.Session) error {
		return sess.AppendPromptLog(ctx, entry)
	}); err != nil {
		p.logger.Warn("pipeline: failed to append prompt log", slog.String("page_id", pageID.String()), slog.Any("error", err))
	}
}

// failPage implements spec §4.9's "uncaught exception → failed" row:
// open a fresh transactional scope so one corrupt session does not
// poison the whole run.
func (p *Pipeline) failPage(ctx context.Context, pg store.ApprovedPage, cause error) PipelinePageResult {
	p.logger.Error("pipeline: page failed", slog.String("page_id", pg.PageID.String()), slog.Any("error", cause))

	completedAt := time.Now().UTC()
	err := store.WithSession(ctx, p.store, func(sess store.Session) error {
		content, err := sess.GetPageContent(ctx, pg.PageID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			content = &store.PageContent{CrawledPageID: pg.PageID}
		}
		content.Status = store.PageContentFailed
		content.QAResults = &store.QAResults{Error: cause.Error(), CheckedAt: completedAt}
		content.GenerationCompletedAt = ptr.Pointer(completedAt)
		return sess.UpsertPageContent(ctx, content)
	})
	if err != nil {
		p.logger.Error("pipeline: failed to persist failure state in fresh scope",
			slog.String("page_id", pg.PageID.String()), slog.Any("error", err))
	}

	return PipelinePageResult{PageID: pg.PageID, URL: pg.URL, Success: false, Error: cause.Error()}
}
