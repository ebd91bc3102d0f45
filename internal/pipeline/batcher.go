// Package pipeline composes source adapters, batched persistence, and
// per-run reporting.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// DefaultBatchSize matches the store's practical request-size limit.
const DefaultBatchSize = 50

// PersistReport summarizes one Persist call.
type PersistReport struct {
	Batches       int
	FailedBatches int
	Persisted     int
}

// Batcher splits normalized items into fixed-size batches and writes each
// through the catalog store. Persistence is best-effort per batch: a failed
// batch is logged and counted, later batches are still attempted.
type Batcher struct {
	store     catalog.Store
	batchSize int
	retry     RetryPolicy
	logger    *zap.Logger
}

// NewBatcher constructs a Batcher.
func NewBatcher(store catalog.Store, batchSize int, retry RetryPolicy, logger *zap.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		store:     store,
		batchSize: batchSize,
		retry:     retry,
		logger:    logger,
	}
}

// Persist writes items batch by batch and reports what made it through.
func (b *Batcher) Persist(ctx context.Context, items []catalog.NormalizedItem) PersistReport {
	report := PersistReport{}
	for start := 0; start < len(items); start += b.batchSize {
		end := start + b.batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		report.Batches++

		if err := b.upsertWithRetry(ctx, batch); err != nil {
			report.FailedBatches++
			catalog.BatchFailures.Inc()
			b.logger.Error("batch upsert failed",
				zap.Int("batch", report.Batches),
				zap.Int("rows", len(batch)),
				zap.Error(err))
			continue
		}
		report.Persisted += len(batch)
	}
	return report
}

func (b *Batcher) upsertWithRetry(ctx context.Context, batch []catalog.NormalizedItem) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = b.store.UpsertBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if !b.retry.ShouldRetry(err, attempt+1) {
			return err
		}
		wait := b.retry.Backoff(attempt)
		b.logger.Warn("batch upsert retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
