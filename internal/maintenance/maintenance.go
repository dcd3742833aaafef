// Package maintenance runs background housekeeping for the store:
// periodic index rebuilds and optional auto-archival of completed runs.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harunnryd/kiroku/internal/config"
	"github.com/harunnryd/kiroku/internal/service"
	"github.com/harunnryd/kiroku/internal/store"
)

// Runner schedules the maintenance jobs on a cron runner.
type Runner struct {
	cron       *cron.Cron
	svc        *service.Service
	cfg        config.MaintenanceConfig
	minAge     time.Duration
	canArchive bool
}

// NewRunner creates a maintenance runner. canArchive gates the
// auto-archive job on object storage being configured.
func NewRunner(svc *service.Service, cfg config.MaintenanceConfig, canArchive bool) (*Runner, error) {
	minAge, err := config.DurationOrDefault(cfg.AutoArchiveMinAge, config.DefaultMaintenanceAutoArchiveMinAge)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cron:       cron.New(),
		svc:        svc,
		cfg:        cfg,
		minAge:     minAge,
		canArchive: canArchive,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.cfg.IndexRebuildSchedule, r.rebuildIndex); err != nil {
		return err
	}

	if r.cfg.AutoArchiveEnabled && r.canArchive {
		if _, err := r.cron.AddFunc(r.cfg.AutoArchiveSchedule, r.autoArchive); err != nil {
			return err
		}
		slog.Info("Auto-archive enabled",
			"schedule", r.cfg.AutoArchiveSchedule, "min_age", r.minAge)
	}

	r.cron.Start()
	slog.Info("Maintenance runner started", "index_schedule", r.cfg.IndexRebuildSchedule)
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Maintenance runner stop timed out")
	}
}

func (r *Runner) rebuildIndex() {
	res := r.svc.RebuildIndex()
	if res.Status != service.StatusSuccess {
		slog.Error("Scheduled index rebuild failed", "error", res.Error)
		return
	}
	slog.Debug("Scheduled index rebuild complete", "runs", res.Runs)
}

// autoArchive archives runs that finished long enough ago. The listing
// comes from the same index path user queries use; a stale index only
// delays archival until the next rebuild.
func (r *Runner) autoArchive() {
	res := r.svc.ListRuns(store.ListFilters{Status: "completed"}, 0)
	if res.Status != service.StatusSuccess {
		slog.Error("Auto-archive listing failed", "error", res.Error)
		return
	}

	cutoff := time.Now().Add(-r.minAge)
	for _, run := range res.Runs {
		updated, err := time.Parse(store.TimestampLayout, run.UpdatedAt)
		if err != nil || updated.After(cutoff) {
			continue
		}

		out := r.svc.ArchiveRun(context.Background(), run.RunID)
		if out.Status != service.StatusSuccess {
			slog.Error("Auto-archive failed", "run", run.RunID, "error", out.Error)
			continue
		}
		slog.Info("Run auto-archived", "run", run.RunID, "files", len(out.FilesArchived))
	}
}
