// Package sources implements one crawl adapter per catalog source site.
// Each adapter owns its page traversal strategy, field extraction, and
// promotion-badge vocabulary; markup coupling never leaks past this package.
package sources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// Result is the outcome of one source crawl.
type Result struct {
	Items     []catalog.NormalizedItem
	Extracted int
	Dropped   int
}

// Adapter crawls one source site end to end and returns normalized items.
// A returned error is fatal for this source only; the pipeline driver
// contains it.
type Adapter interface {
	Source() catalog.Source
	Crawl(ctx context.Context) (Result, error)
}

func normalizeResult(raws []catalog.RawItem, spec catalog.NormalizeSpec, clock catalog.Clock) Result {
	items, dropped := catalog.NormalizeAll(raws, spec, clock.Now())
	catalog.ItemsExtracted.WithLabelValues(string(spec.Source)).Add(float64(len(raws)))
	catalog.ItemsDropped.WithLabelValues(string(spec.Source)).Add(float64(dropped))
	return Result{
		Items:     catalog.DedupeByKey(items),
		Extracted: len(raws),
		Dropped:   dropped,
	}
}

func validateClock(clock catalog.Clock) error {
	if clock == nil {
		return fmt.Errorf("clock is required")
	}
	return nil
}

// ensureLogger keeps a nil logger from panicking on the warning paths.
func ensureLogger(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
