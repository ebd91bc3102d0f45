package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
	"github.com/cvsdeals/promocrawl/internal/sources"
)

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// DriverConfig controls pipeline-wide behavior.
type DriverConfig struct {
	// Concurrency bounds how many sources crawl at once. Sources share no
	// mutable state, so anything >1 is safe; 0 or 1 means sequential.
	Concurrency int
	// DeactivateStale, when set, marks rows a source stopped listing as
	// inactive after that source's crawl completed without a fatal error.
	DeactivateStale bool
}

// Driver runs every configured source adapter, feeds its output to the
// persistence batcher, and aggregates the per-run report. No error escapes
// Run: source failures are contained and reported.
type Driver struct {
	cfg      DriverConfig
	adapters []sources.Adapter
	batcher  *Batcher
	store    catalog.Store
	clock    catalog.Clock
	ids      IDGenerator
	logger   *zap.Logger
}

// NewDriver constructs a Driver.
func NewDriver(
	cfg DriverConfig,
	adapters []sources.Adapter,
	batcher *Batcher,
	store catalog.Store,
	clock catalog.Clock,
	ids IDGenerator,
	logger *zap.Logger,
) (*Driver, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one source adapter is required")
	}
	if batcher == nil {
		return nil, fmt.Errorf("batcher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:      cfg,
		adapters: adapters,
		batcher:  batcher,
		store:    store,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}, nil
}

// Run performs one full synchronous pass over all sources.
func (d *Driver) Run(ctx context.Context) catalog.RunReport {
	started := d.clock.Now()
	report := catalog.RunReport{
		RunID:     d.runID(),
		StartedAt: started,
		Sources:   make([]catalog.SourceReport, len(d.adapters)),
	}

	sem := make(chan struct{}, d.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, adapter := range d.adapters {
		wg.Add(1)
		go func(idx int, a sources.Adapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			report.Sources[idx] = d.runSource(ctx, a, started)
		}(i, adapter)
	}
	wg.Wait()

	report.Duration = d.clock.Now().Sub(started)
	d.logSummary(report)
	return report
}

// runSource contains a single source end to end; a fatal adapter error
// contributes zero items without touching other sources.
func (d *Driver) runSource(ctx context.Context, adapter sources.Adapter, runStart time.Time) catalog.SourceReport {
	src := adapter.Source()
	sr := catalog.SourceReport{Source: src}

	result, err := adapter.Crawl(ctx)
	if err != nil {
		catalog.SourceFailures.WithLabelValues(string(src)).Inc()
		d.logger.Error("source crawl failed", zap.String("source", string(src)), zap.Error(err))
		sr.Err = err.Error()
		return sr
	}
	sr.Extracted = result.Extracted
	sr.Dropped = result.Dropped
	sr.Normalized = len(result.Items)

	persist := d.batcher.Persist(ctx, result.Items)
	sr.Persisted = persist.Persisted
	sr.FailedBatches = persist.FailedBatches
	catalog.ItemsPersisted.WithLabelValues(string(src)).Add(float64(persist.Persisted))

	if d.cfg.DeactivateStale && d.store != nil && persist.FailedBatches == 0 {
		deactivated, err := d.store.DeactivateStale(ctx, src, runStart)
		if err != nil {
			d.logger.Warn("stale-row deactivation failed",
				zap.String("source", string(src)), zap.Error(err))
		} else {
			sr.Deactivated = deactivated
		}
	}
	return sr
}

func (d *Driver) runID() string {
	if d.ids == nil {
		return ""
	}
	id, err := d.ids.NewID()
	if err != nil {
		d.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func (d *Driver) logSummary(report catalog.RunReport) {
	for _, sr := range report.Sources {
		d.logger.Info("source finished",
			zap.String("run_id", report.RunID),
			zap.String("source", string(sr.Source)),
			zap.Int("extracted", sr.Extracted),
			zap.Int("normalized", sr.Normalized),
			zap.Int("dropped", sr.Dropped),
			zap.Int("persisted", sr.Persisted),
			zap.Int("failed_batches", sr.FailedBatches),
			zap.Int64("deactivated", sr.Deactivated),
			zap.String("error", sr.Err),
		)
	}
	d.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", report.Duration),
		zap.Int("sources", len(report.Sources)),
	)
}
