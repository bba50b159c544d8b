package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/series"
	"famcal/internal/storage"
)

// Generator pre-fills the occurrences table for every active series over a
// fixed horizon. It is a cache warmer layered on the virtual-instance
// pipeline, never a second source of truth: rows are derived through the
// same expand/reconcile/materialize path and keyed by the deterministic
// instance ID, so re-running the job is idempotent.
type Generator struct {
	svc         *series.Service
	repo        storage.Repository
	horizonDays int
	cron        *cron.Cron
}

func NewGenerator(svc *series.Service, repo storage.Repository, horizonDays int) *Generator {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	g := &Generator{
		svc:         svc,
		repo:        repo,
		horizonDays: horizonDays,
	}
	// Refill a series as soon as it is mutated, so the cache never serves
	// instances the edit invalidated.
	svc.Subscribe(func(ch series.Change) {
		for _, id := range ch.SeriesIDs {
			if err := g.FillSeries(context.Background(), id); err != nil {
				appLog.Error("batch: refill after change failed", err, "series_id", id)
			}
		}
	})
	return g
}

// Start schedules FillAll on the given cron expression.
func (g *Generator) Start(spec string) error {
	if g.cron != nil {
		return errors.New("batch: generator already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := g.FillAll(context.Background()); err != nil {
			appLog.Error("batch: scheduled fill failed", err)
		}
	}); err != nil {
		return fmt.Errorf("batch: bad cron spec %q: %w", spec, err)
	}
	c.Start()
	g.cron = c
	appLog.Info("batch generator started", "cron", spec, "horizon_days", g.horizonDays)
	return nil
}

// Stop halts the cron schedule and waits for a running job to finish.
func (g *Generator) Stop() {
	if g.cron == nil {
		return
	}
	<-g.cron.Stop().Done()
	g.cron = nil
}

// FillAll refreshes the pre-filled occurrences of every active series.
func (g *Generator) FillAll(ctx context.Context) error {
	list, err := g.repo.ListSeries(ctx, storage.SeriesFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("batch: list series: %w", err)
	}
	var failed int
	for _, sr := range list {
		if err := g.FillSeries(ctx, sr.ID); err != nil {
			failed++
			appLog.Error("batch: fill series failed", err, "series_id", sr.ID)
		}
	}
	appLog.Info("batch fill complete", "series", len(list), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("batch: %d of %d series failed to fill", failed, len(list))
	}
	return nil
}

// FillSeries replaces the cached occurrences of one series from today
// through the horizon. Dates before today are left untouched.
func (g *Generator) FillSeries(ctx context.Context, seriesID string) error {
	today := model.DateOf(time.Now())
	horizon := today.AddDate(0, 0, g.horizonDays)

	sr, err := g.svc.Get(ctx, seriesID)
	if err != nil {
		return err
	}
	if !sr.Active {
		// A deactivated series keeps its past but serves nothing upcoming.
		if err := g.repo.DeleteOccurrencesFrom(ctx, seriesID, today); err != nil {
			return fmt.Errorf("clear cached occurrences: %w", err)
		}
		return nil
	}

	instances, err := g.svc.Instances(ctx, seriesID, today, horizon)
	if err != nil {
		return err
	}
	if err := g.repo.DeleteOccurrencesFrom(ctx, seriesID, today); err != nil {
		return fmt.Errorf("clear cached occurrences: %w", err)
	}
	for _, inst := range instances {
		if err := g.repo.UpsertOccurrence(ctx, inst); err != nil {
			return fmt.Errorf("upsert occurrence %s: %w", inst.ID, err)
		}
	}
	appLog.Debug("series pre-filled", "series_id", seriesID, "instances", len(instances))
	return nil
}
