package storage

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionSweeper removes finished task directories past their retention
// age on a cron schedule. Running and paused tasks are never touched;
// abandoned uploads are swept on the same schedule.
type RetentionSweeper struct {
	tasks   *Store
	uploads *UploadStore
	maxAge  time.Duration
	logger  *slog.Logger
	runner  *cron.Cron
}

// NewRetentionSweeper creates a sweeper. uploads may be nil.
func NewRetentionSweeper(tasks *Store, uploads *UploadStore, maxAge time.Duration, logger *slog.Logger) *RetentionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionSweeper{
		tasks:   tasks,
		uploads: uploads,
		maxAge:  maxAge,
		logger:  logger.With("component", "retention"),
	}
}

// Start schedules the sweep with a 6-field cron expression (with seconds).
func (r *RetentionSweeper) Start(cronExpr string) error {
	runner := cron.New(cron.WithSeconds())
	if _, err := runner.AddFunc(cronExpr, r.Sweep); err != nil {
		return err
	}
	runner.Start()
	r.runner = runner
	r.logger.Info("retention sweeper started", "cron", cronExpr, "max_age", r.maxAge.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	if r.runner == nil {
		return
	}
	<-r.runner.Stop().Done()
	r.logger.Info("retention sweeper stopped")
}

// Sweep runs one pass. Errors are logged and never abort the remaining
// candidates.
func (r *RetentionSweeper) Sweep() {
	cutoff := time.Now().Add(-r.maxAge)
	removed := 0

	states, err := r.tasks.List()
	if err != nil {
		r.logger.Error("listing tasks for retention failed", "error", err)
		return
	}
	for _, state := range states {
		if !state.Status.IsTerminal() || state.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.tasks.Delete(state.ID); err != nil {
			r.logger.Warn("removing expired task failed", "task_id", state.ID, "error", err)
			continue
		}
		r.logger.Info("removed expired task", "task_id", state.ID, "status", string(state.Status))
		removed++
	}

	if r.uploads != nil {
		n, err := r.uploads.SweepOlderThan(r.maxAge)
		if err != nil {
			r.logger.Warn("sweeping uploads failed", "error", err)
		}
		removed += n
	}

	r.logger.Info("retention sweep finished", "removed", removed)
}
