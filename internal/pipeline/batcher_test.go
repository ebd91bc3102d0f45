package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// fakeStore records every batch and fails the configured calls.
type fakeStore struct {
	mu         sync.Mutex
	batches    [][]catalog.NormalizedItem
	failCalls  map[int]error // 1-based call index -> error
	stale      map[catalog.Source]int64
	staleErr   error
	staleCalls int
}

func (s *fakeStore) UpsertBatch(_ context.Context, items []catalog.NormalizedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]catalog.NormalizedItem(nil), items...))
	if err, ok := s.failCalls[len(s.batches)]; ok {
		return err
	}
	return nil
}

func (s *fakeStore) DeactivateStale(_ context.Context, source catalog.Source, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleCalls++
	if s.staleErr != nil {
		return 0, s.staleErr
	}
	return s.stale[source], nil
}

func (s *fakeStore) Close() {}

// noRetry keeps batcher tests fast and deterministic.
type noRetry struct{}

func (noRetry) ShouldRetry(error, int) bool { return false }
func (noRetry) Backoff(int) time.Duration   { return 0 }

func makeItems(n int) []catalog.NormalizedItem {
	items := make([]catalog.NormalizedItem, n)
	for i := range items {
		items[i] = catalog.NormalizedItem{
			Source: catalog.SourceCU,
			Title:  fmt.Sprintf("상품-%d", i),
			Price:  1000 + i,
		}
	}
	return items
}

func TestPersistSplitsIntoFixedBatches(t *testing.T) {
	t.Parallel()

	fake := &fakeStore{}
	b := NewBatcher(fake, 50, noRetry{}, zap.NewNop())

	report := b.Persist(context.Background(), makeItems(120))
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 120, report.Persisted)
	assert.Zero(t, report.FailedBatches)

	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 50)
	assert.Len(t, fake.batches[1], 50)
	assert.Len(t, fake.batches[2], 20)
}

func TestPersistSingleBatchForSmallInput(t *testing.T) {
	t.Parallel()

	fake := &fakeStore{}
	b := NewBatcher(fake, 50, noRetry{}, zap.NewNop())

	report := b.Persist(context.Background(), makeItems(4))
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 4, report.Persisted)
	require.Len(t, fake.batches, 1)
	assert.Len(t, fake.batches[0], 4)
}

// A failure on batch 2 of 3 must not short-circuit batch 3.
func TestPersistContinuesPastFailedBatch(t *testing.T) {
	t.Parallel()

	fake := &fakeStore{failCalls: map[int]error{2: fmt.Errorf("store rejected batch")}}
	b := NewBatcher(fake, 10, noRetry{}, zap.NewNop())

	report := b.Persist(context.Background(), makeItems(30))
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 20, report.Persisted)
	assert.Len(t, fake.batches, 3, "all batches attempted")
}

func TestPersistRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fake := &fakeStore{failCalls: map[int]error{1: fmt.Errorf("timeout")}}
	policy := &ExponentialRetryPolicy{maxAttempts: 3, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}
	b := NewBatcher(fake, 10, policy, zap.NewNop())

	report := b.Persist(context.Background(), makeItems(5))
	assert.Zero(t, report.FailedBatches)
	assert.Equal(t, 5, report.Persisted)
	assert.Len(t, fake.batches, 2, "first attempt failed, retry succeeded")
}

func TestPersistEmptyInput(t *testing.T) {
	t.Parallel()

	fake := &fakeStore{}
	b := NewBatcher(fake, 50, noRetry{}, zap.NewNop())

	report := b.Persist(context.Background(), nil)
	assert.Zero(t, report.Batches)
	assert.Empty(t, fake.batches)
}
