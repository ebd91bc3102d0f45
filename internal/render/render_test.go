package render

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewFactoryDefaults(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if f.cfg.NavTimeout != 30*time.Second {
		t.Fatalf("expected default nav timeout, got %v", f.cfg.NavTimeout)
	}
	if f.cfg.SettleTimeout != 5*time.Second {
		t.Fatalf("expected default settle timeout, got %v", f.cfg.SettleTimeout)
	}
	if f.cfg.SettlePoll != 250*time.Millisecond {
		t.Fatalf("expected default settle poll, got %v", f.cfg.SettlePoll)
	}
	if f.cfg.SettleQuiet != 1500*time.Millisecond {
		t.Fatalf("expected default settle quiet window, got %v", f.cfg.SettleQuiet)
	}
	if f.limiter != nil {
		t.Fatal("expected no session limiter when MaxParallel is unset")
	}
}

func TestNewFactoryLimiterCapacity(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(Config{MaxParallel: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if cap(f.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(f.limiter))
	}
}

func TestFactoryAcquireRelease(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(Config{MaxParallel: 1}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if err := f.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire should get the slot: %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.acquire(canceled); err == nil {
		t.Fatal("expected error when waiting for an occupied slot with a canceled context")
	}

	f.release()
	if err := f.acquire(context.Background()); err != nil {
		t.Fatalf("released slot should be reusable: %v", err)
	}
}

func TestWaitDomainBudget(t *testing.T) {
	t.Parallel()

	f, err := NewFactory(Config{DomainQPS: 1000}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	if err := f.waitDomainBudget(ctx, "https://cu.example/products"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.waitDomainBudget(ctx, "https://cu.example/products?page=2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.waitDomainBudget(ctx, "https://gs25.example/event-goods"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hosts := 0
	f.domainLimiters.Range(func(_, _ any) bool {
		hosts++
		return true
	})
	if hosts != 2 {
		t.Fatalf("expected one limiter per host, got %d", hosts)
	}

	if err := f.waitDomainBudget(ctx, "https://cu\x7f.example/"); err == nil {
		t.Fatal("expected error for an unparseable url")
	}
}

func TestForwardCancelPropagatesParentCancellation(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation did not reach the child")
	}
}

func TestForwardCancelStopDetaches(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	stop()
	cancelParent()

	select {
	case <-child.Done():
		t.Fatal("child canceled after stop")
	case <-time.After(50 * time.Millisecond):
	}
}

// scriptedReads serves a fixed size sequence, repeating the last entry.
func scriptedReads(sizes []int) (func() (int, error), func() int) {
	idx := 0
	last := 0
	read := func() (int, error) {
		if idx < len(sizes) {
			last = sizes[idx]
			idx++
		}
		return last, nil
	}
	return read, func() int { return last }
}

// Content that starts mutating only a few polls after an interaction must
// still be captured: a single unchanged poll pair is not stability.
func TestSettleLoopWaitsOutLateContent(t *testing.T) {
	t.Parallel()

	read, lastSize := scriptedReads([]int{100, 100, 100, 200, 250, 250})
	err := settleLoop(context.Background(), 2*time.Millisecond, 20*time.Millisecond, read)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := lastSize(); got != 250 {
		t.Fatalf("settled on stale content: last observed size %d, want 250", got)
	}
}

func TestSettleLoopHoldsForQuietWindow(t *testing.T) {
	t.Parallel()

	read, _ := scriptedReads([]int{100})
	start := time.Now()
	if err := settleLoop(context.Background(), 2*time.Millisecond, 25*time.Millisecond, read); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned after %v, before the quiet window elapsed", elapsed)
	}
}

// The ceiling accepts the page as-is even if the size never stabilizes.
func TestSettleLoopCeilingAcceptsUnstableContent(t *testing.T) {
	t.Parallel()

	size := 0
	read := func() (int, error) {
		size++
		return size, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := settleLoop(ctx, 2*time.Millisecond, time.Hour, read); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("ceiling did not bound the wait: %v", elapsed)
	}
}

func TestSettleLoopPropagatesReadErrors(t *testing.T) {
	t.Parallel()

	read := func() (int, error) { return 0, fmt.Errorf("tab crashed") }
	if err := settleLoop(context.Background(), time.Millisecond, time.Millisecond, read); err == nil {
		t.Fatal("expected read error to propagate")
	}
}
