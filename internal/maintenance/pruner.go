// Package maintenance runs periodic housekeeping jobs. Currently one job:
// pruning tags no artifact references anymore. Disabled unless a schedule
// is configured.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// TagPruner is the storage hook the pruner job calls.
type TagPruner interface {
	PruneOrphanTags(ctx context.Context) (int64, error)
}

// Pruner schedules the orphan-tag sweep on a cron expression.
type Pruner struct {
	store    TagPruner
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewPruner creates a Pruner. schedule is a five-field cron expression,
// e.g. "0 3 * * *" for a nightly sweep at 03:00.
func NewPruner(store TagPruner, schedule string, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:    store,
		schedule: schedule,
		logger:   logger,
		cron: cron.New(cron.WithParser(
			cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		)),
	}
}

// Start registers the sweep and begins the cron loop. Returns a stop
// function that waits for a running sweep to finish.
func (p *Pruner) Start(ctx context.Context) (func(), error) {
	if p.schedule == "" {
		return func() {}, nil
	}

	_, err := p.cron.AddFunc(p.schedule, func() {
		p.sweep(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}

	p.cron.Start()
	p.logger.Info("tag pruner started", slog.String("schedule", p.schedule))

	return func() {
		stopCtx := p.cron.Stop()
		<-stopCtx.Done()
		p.logger.Info("tag pruner stopped")
	}, nil
}

func (p *Pruner) sweep(ctx context.Context) {
	pruned, err := p.store.PruneOrphanTags(ctx)
	if err != nil {
		p.logger.Error("orphan tag sweep failed", slog.String("error", err.Error()))
		return
	}
	if pruned > 0 {
		p.logger.Info("orphan tags pruned", slog.Int64("count", pruned))
	}
}
