package catalog

import (
	"context"
	"time"
)

// Session is one exclusively-owned rendered-page session. Implementations
// wrap a real browser tab; extraction scripts run against the live DOM and
// must return only serializable data.
type Session interface {
	// Navigate loads the URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a script against the rendered page and unmarshals the
	// serialized result into out.
	Evaluate(ctx context.Context, script string, out any) error

	// Click activates the first element matching the selector. It reports
	// whether the element was found; absence is not an error.
	Click(ctx context.Context, selector string) (bool, error)

	// Settle waits for asynchronously loaded content to stabilize, bounded
	// by the session's settle timeout.
	Settle(ctx context.Context) error

	// Close releases the underlying tab. Must be called on every exit path.
	Close()
}

// SessionFactory hands out fresh sessions, one per source crawl.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Store is the external catalog persistence capability.
type Store interface {
	// UpsertBatch writes one batch keyed on (source, title), overwriting
	// all mutable fields on conflict.
	UpsertBatch(ctx context.Context, items []NormalizedItem) error

	// DeactivateStale marks rows of the source last observed before the
	// cutoff as inactive and returns how many rows changed.
	DeactivateStale(ctx context.Context, source Source, before time.Time) (int64, error)

	// Close releases the connection pool.
	Close()
}

// Clock returns the current time (injected so tests can pin it).
type Clock interface {
	Now() time.Time
}
