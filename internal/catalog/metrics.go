package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsExtracted counts raw items pulled from source pages.
	ItemsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promocrawl_items_extracted_total",
		Help: "Raw items extracted from source pages.",
	}, []string{"source"})
	// ItemsDropped counts items discarded during normalization.
	ItemsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promocrawl_items_dropped_total",
		Help: "Items dropped for missing or unparseable required fields.",
	}, []string{"source"})
	// ItemsPersisted counts items written through the catalog store.
	ItemsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promocrawl_items_persisted_total",
		Help: "Items successfully upserted into the catalog store.",
	}, []string{"source"})
	// BatchFailures counts store batches rejected after retries.
	BatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promocrawl_batch_failures_total",
		Help: "Upsert batches that failed after all retry attempts.",
	})
	// SourceFailures counts source crawls that ended with a fatal error.
	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promocrawl_source_failures_total",
		Help: "Source crawls aborted by a fatal error.",
	}, []string{"source"})
)
