// Package recovery implements C5: at startup (and on demand), scan for
// durable jobs stuck in a non-terminal status whose updated-at is
// stale, and transition them to a terminal status with recovery
// metadata attached. The scan itself may additionally run on a
// schedule via the adapted cron trigger in sweep.go.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/seoasis/contentforge/internal/store"
	"github.com/seoasis/contentforge/pkg/maps"
	"github.com/seoasis/contentforge/pkg/ptr"
)

// Result is the outcome of recovering one job, per spec §4.5.
type Result struct {
	JobID  uuid.UUID
	Action string // "recovered", "skipped", or "failed" (RecoverAll only)
	Status store.JobStatus
	Error  string
}

// Summary is recover_all()'s return shape per spec §4.5.
type Summary struct {
	TotalFound     int
	TotalRecovered int
	TotalFailed    int
	Results        []Result
	DurationMs     int64
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Service runs the recovery sweep against a durable store.
type Service struct {
	store          store.Store
	staleThreshold time.Duration
	logger         *slog.Logger
}

// New builds a recovery Service. staleThreshold is spec §6's
// stale_threshold_minutes, already converted to a duration.
func New(s store.Store, staleThreshold time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, staleThreshold: staleThreshold, logger: logger}
}

// FindInterrupted implements spec §4.5's find_interrupted(): jobs in a
// non-terminal status whose updated_at is older than the stale
// threshold.
func (svc *Service) FindInterrupted(ctx context.Context) ([]*store.CrawlHistory, error) {
	var out []*store.CrawlHistory
	err := store.WithSession(ctx, svc.store, func(sess store.Session) error {
		jobs, err := sess.FindInterruptedJobs(ctx, int64(svc.staleThreshold.Seconds()))
		if err != nil {
			return err
		}
		out = jobs
		return nil
	})
	return out, err
}

// RecoverOne implements spec §4.5's recover_one(id, mark_as_failed).
// If the job is not in a recoverable (non-terminal) status it returns
// a "skipped" Result and no error.
func (svc *Service) RecoverOne(ctx context.Context, id uuid.UUID, markAsFailed bool) (Result, error) {
	var res Result
	err := store.WithSession(ctx, svc.store, func(sess store.Session) error {
		job, err := sess.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			res = Result{JobID: id, Action: "skipped", Status: job.Status}
			return nil
		}

		previousStatus := job.Status
		newStatus := store.JobInterrupted
		if markAsFailed {
			newStatus = store.JobFailed
		}

		now := time.Now().UTC()
		job.Status = newStatus
		job.CompletedAt = ptr.Pointer(now)
		job.ErrorMessage = fmt.Sprintf(
			"job recovered after server restart: %d pages crawled before interruption",
			job.PagesCrawled,
		)
		stats := maps.HashMap[string, any](job.Stats)
		if stats == nil {
			stats = maps.NewHashMap[string, any]()
		}
		stats.Put("recovery", map[string]any{
			"interrupted":     true,
			"recovery_reason": "server_restart",
			"previous_status": string(previousStatus),
			"interrupted_at":  now.Format(time.RFC3339),
		})
		job.Stats = stats

		if err := sess.UpdateJob(ctx, job); err != nil {
			return err
		}
		res = Result{JobID: id, Action: "recovered", Status: newStatus}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// RecoverAll implements spec §4.5's recover_all(): find every
// interrupted job and recover each, tolerating per-job failures
// without aborting the sweep.
func (svc *Service) RecoverAll(ctx context.Context) (Summary, error) {
	started := time.Now().UTC()
	jobs, err := svc.FindInterrupted(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{TotalFound: len(jobs), StartedAt: started}
	for _, job := range jobs {
		res, err := svc.RecoverOne(ctx, job.ID, true)
		if err != nil {
			svc.logger.Warn("recovery: job recovery failed, continuing sweep",
				slog.String("job_id", job.ID.String()), slog.Any("error", err))
			summary.TotalFailed++
			summary.Results = append(summary.Results, Result{
				JobID: job.ID, Action: "failed", Error: err.Error(),
			})
			continue
		}
		if res.Action == "recovered" {
			summary.TotalRecovered++
		}
		summary.Results = append(summary.Results, res)
	}

	summary.CompletedAt = time.Now().UTC()
	summary.DurationMs = summary.CompletedAt.Sub(started).Milliseconds()
	svc.logger.Info("recovery sweep complete",
		slog.Int("total_found", summary.TotalFound),
		slog.Int("total_recovered", summary.TotalRecovered),
		slog.Int("total_failed", summary.TotalFailed),
		slog.Int64("duration_ms", summary.DurationMs),
	)
	return summary, nil
}
