// Package render provides the chromedp-backed rendered-page capability
// consumed by the browser-driven source adapters.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// Config controls browser behavior for all sessions of one run.
type Config struct {
	UserAgent     string
	NavTimeout    time.Duration
	SettleTimeout time.Duration
	SettlePoll    time.Duration
	SettleQuiet   time.Duration
	DomainQPS     float64
	MaxParallel   int
}

// Factory owns the shared browser allocator and hands out one tab per
// source crawl. It implements catalog.SessionFactory.
type Factory struct {
	cfg            Config
	allocator      context.Context
	allocCancel    context.CancelFunc
	limiter        chan struct{}
	domainLimiters sync.Map
	logger         *zap.Logger
}

// NewFactory launches the headless browser allocator.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 5 * time.Second
	}
	if cfg.SettlePoll <= 0 {
		cfg.SettlePoll = 250 * time.Millisecond
	}
	if cfg.SettleQuiet <= 0 {
		cfg.SettleQuiet = 1500 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Factory{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Close tears down the browser allocator.
func (f *Factory) Close() {
	if f == nil {
		return
	}
	f.allocCancel()
}

// NewSession opens a fresh tab. The caller owns it exclusively and must
// Close it on every exit path.
func (f *Factory) NewSession(ctx context.Context) (catalog.Session, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	s := &session{
		factory:   f,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
	}
	if f.cfg.UserAgent != "" {
		if err := chromedp.Run(tabCtx,
			network.Enable(),
			emulation.SetUserAgentOverride(f.cfg.UserAgent),
		); err != nil {
			s.Close()
			return nil, fmt.Errorf("session warmup: %w", err)
		}
	}
	return s, nil
}

func (f *Factory) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session slot wait canceled: %w", ctx.Err())
	}
}

func (f *Factory) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Factory) waitDomainBudget(ctx context.Context, rawURL string) error {
	if f.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse navigation url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := f.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait domain limiter: %w", err)
	}
	return nil
}

// session is one exclusively-owned browser tab.
type session struct {
	factory   *Factory
	tabCtx    context.Context
	tabCancel context.CancelFunc
	closeOnce sync.Once
}

// Navigate loads the URL and waits for the body to be ready, bounded by the
// configured per-navigation timeout.
func (s *session) Navigate(ctx context.Context, rawURL string) error {
	if err := s.factory.waitDomainBudget(ctx, rawURL); err != nil {
		return err
	}
	taskCtx, cancel := s.taskContext(ctx, s.factory.cfg.NavTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return nil
}

// Evaluate runs the script in the page and unmarshals the serialized result.
func (s *session) Evaluate(ctx context.Context, script string, out any) error {
	taskCtx, cancel := s.taskContext(ctx, s.factory.cfg.NavTimeout)
	defer cancel()

	if err := chromedp.Run(taskCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// Click activates the first matching element. Absence is reported, not an
// error, so pagination can stop cleanly when the control disappears.
func (s *session) Click(ctx context.Context, selector string) (bool, error) {
	taskCtx, cancel := s.taskContext(ctx, s.factory.cfg.NavTimeout)
	defer cancel()

	var present bool
	probe := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := chromedp.Run(taskCtx, chromedp.Evaluate(probe, &present)); err != nil {
		return false, fmt.Errorf("probe selector %s: %w", selector, err)
	}
	if !present {
		return false, nil
	}
	if err := chromedp.Run(taskCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return false, fmt.Errorf("click %s: %w", selector, err)
	}
	return true, nil
}

// Settle polls the DOM until its size holds steady for the configured quiet
// window, bounded by the settle timeout. A single unchanged poll pair is not
// stability: after a load-more click or an in-page page swap the triggering
// request has usually not started mutating the DOM yet, so accepting the
// pre-interaction size would hand stale content to extraction. The timeout
// is a ceiling that accepts the page as-is, not an error.
func (s *session) Settle(ctx context.Context) error {
	taskCtx, cancel := s.taskContext(ctx, s.factory.cfg.SettleTimeout)
	defer cancel()

	const sizeScript = "document.body ? document.body.innerHTML.length : 0"
	read := func() (int, error) {
		var size int
		if err := chromedp.Run(taskCtx, chromedp.Evaluate(sizeScript, &size)); err != nil {
			return 0, err
		}
		return size, nil
	}
	if err := settleLoop(taskCtx, s.factory.cfg.SettlePoll, s.factory.cfg.SettleQuiet, read); err != nil {
		return fmt.Errorf("settle probe: %w", err)
	}
	return nil
}

// settleLoop polls read until the observed value has not changed for quiet,
// or ctx expires. Every change restarts the quiet window, so content that
// begins loading after the first poll still gets captured.
func settleLoop(ctx context.Context, poll, quiet time.Duration, read func() (int, error)) error {
	prev, err := read()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	quietSince := time.Now()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Ceiling reached; content is as stable as it will get.
			return nil
		case <-ticker.C:
			cur, err := read()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
			if cur != prev {
				prev = cur
				quietSince = time.Now()
				continue
			}
			if time.Since(quietSince) >= quiet {
				return nil
			}
		}
	}
}

// Close releases the tab and its parallelism slot. Safe to call more than
// once.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.tabCancel()
		s.factory.release()
	})
}

func (s *session) taskContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := forwardCancel(ctx, cancel)
	return taskCtx, func() {
		stop()
		cancel()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
