package recovery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper runs a Service's RecoverAll on a cron schedule, adapted from
// the teacher's core/trigger/cron_trigger.go: a sync.Once-guarded
// scheduler whose single cron entry is the recovery sweep itself,
// rather than a generic list of worker.Worker callbacks. Implements
// core/job.Job so it can be started and stopped alongside the
// process's other background jobs.
type Sweeper struct {
	svc    *Service
	spec   string
	cron   *cron.Cron
	once   sync.Once
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewSweeper builds a Sweeper that fires svc.RecoverAll on the given
// cron spec (spec §6's recovery_sweep_cron, e.g. "0 */5 * * * *").
func NewSweeper(svc *Service, spec string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:    svc,
		spec:   spec,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the sweep job and starts the scheduler exactly
// once; repeated calls are no-ops.
func (sw *Sweeper) Start(ctx context.Context) error {
	var err error
	sw.once.Do(func() {
		nctx, cancel := context.WithCancel(ctx)
		_, err = sw.cron.AddFunc(sw.spec, func() {
			if _, err := sw.svc.RecoverAll(nctx); err != nil {
				sw.logger.Error("recovery: scheduled sweep failed", slog.Any("error", err))
			}
		})
		if err != nil {
			cancel()
			return
		}
		sw.cancel = cancel
		sw.cron.Start()
		go sw.listen(nctx)
	})
	return err
}

// Stop cancels the sweep's context and halts the cron scheduler.
func (sw *Sweeper) Stop() error {
	if sw.cancel != nil {
		sw.cancel()
	}
	return nil
}

func (sw *Sweeper) listen(ctx context.Context) {
	<-ctx.Done()
	sw.cron.Stop()
}
