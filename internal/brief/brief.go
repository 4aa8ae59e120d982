// Package brief implements C8: the content brief orchestrator. It
// checks for an existing ContentBrief, otherwise runs the pop
// three-step flow, parses the merged response into ContentBrief
// fields, and upserts the result — never raising an error to its
// caller (spec §4.8, §9's "exceptions-as-control-flow → result
// types" design note).
package brief

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/seoasis/contentforge/internal/providers/pop"
	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/pkg/result"
)

// Outcome is fetch()'s {success, brief?, error?, cached} return shape.
type Outcome struct {
	Brief  *store.ContentBrief
	Cached bool
}

// Orchestrator runs the brief-fetch flow for one page at a time.
type Orchestrator struct {
	pop    *pop.Client
	store  store.Store
	logger *slog.Logger
}

// New builds an Orchestrator.
func New(popClient *pop.Client, st store.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{pop: popClient, store: st, logger: logger}
}

// Fetch implements spec §4.8's fetch(page, keyword, url, force_refresh).
// All failures are captured into the returned result.Result's error,
// never as a Go error from this function itself — the page_id passed
// through qa_results/PromptLog context lives entirely in the caller
// (C9), which is why Fetch takes a raw pageID rather than a full page
// struct.
func (o *Orchestrator) Fetch(ctx context.Context, pageID uuid.UUID, keyword, url string, forceRefresh bool) result.Result[Outcome] {
	if !forceRefresh {
		var existing *store.ContentBrief
		err := store.WithSession(ctx, o.store, func(sess store.Session) error {
			b, err := sess.GetContentBrief(ctx, pageID)
			if err != nil {
				return err
			}
			existing = b
			return nil
		})
		if err == nil && existing != nil {
			return result.Value(Outcome{Brief: existing, Cached: true})
		}
	}

	if o.pop == nil || !o.pop.Available() {
		return result.Error[Outcome](errUnavailable)
	}

	merged, taskID, err := o.pop.Fetch(ctx, keyword, url)
	if err != nil {
		o.logger.Warn("brief: optimization provider fetch failed",
			slog.String("page_id", pageID.String()), slog.Any("error", err))
		return result.Error[Outcome](err)
	}

	parsed := ParseResponse(pageID, keyword, merged)
	parsed.PopTaskID = taskID

	if err := store.WithSession(ctx, o.store, func(sess store.Session) error {
		return sess.UpsertContentBrief(ctx, parsed)
	}); err != nil {
		return result.Error[Outcome](err)
	}

	return result.Value(Outcome{Brief: parsed, Cached: false})
}

var errUnavailable = unavailableErr{}

type unavailableErr struct{}

func (unavailableErr) Error() string { return "optimization provider is not configured" }

// asAnySlice coerces a loosely-typed JSON array field.
func asAnySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// asMap coerces a loosely-typed JSON object field.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
