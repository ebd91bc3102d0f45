package sources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// cuExtractScript pulls every product card currently in the CU listing.
// Cards missing a name or price element are skipped in-page so only
// complete raw records cross the serialization boundary.
const cuExtractScript = `(() => {
	const items = [];
	document.querySelectorAll('.prodListWrap ul li').forEach((li) => {
		const name = li.querySelector('.prodName');
		const price = li.querySelector('.prodPrice span');
		if (!name || !price) {
			return;
		}
		const img = li.querySelector('.photo img');
		const tag = li.querySelector('.tag');
		items.push({
			name: name.textContent.trim(),
			priceText: price.textContent.trim(),
			imageRef: img ? img.getAttribute('src') || '' : '',
			promotionTag: tag ? tag.textContent.trim() : '',
		});
	});
	return items;
})()`

// CUConfig tunes the CU adapter.
type CUConfig struct {
	EntryURL      string
	MoreSelector  string
	MaxMoreClicks int
}

// CUAdapter crawls the CU promotional listing. CU paginates by expanding
// the same page through a "load more" control, so extraction after each
// click re-reads the accumulated list and repeated cards are filtered out
// as they accumulate.
type CUAdapter struct {
	cfg      CUConfig
	sessions catalog.SessionFactory
	clock    catalog.Clock
	logger   *zap.Logger
}

// NewCU constructs the CU adapter.
func NewCU(cfg CUConfig, sessions catalog.SessionFactory, clock catalog.Clock, logger *zap.Logger) (*CUAdapter, error) {
	if cfg.EntryURL == "" {
		return nil, fmt.Errorf("cu entry url is required")
	}
	if cfg.MoreSelector == "" {
		cfg.MoreSelector = "a.prodListBtn"
	}
	if cfg.MaxMoreClicks <= 0 {
		cfg.MaxMoreClicks = 3
	}
	if err := validateClock(clock); err != nil {
		return nil, err
	}
	return &CUAdapter{cfg: cfg, sessions: sessions, clock: clock, logger: ensureLogger(logger)}, nil
}

// Source implements Adapter.
func (a *CUAdapter) Source() catalog.Source { return catalog.SourceCU }

// Crawl implements Adapter using bounded click-expansion pagination.
func (a *CUAdapter) Crawl(ctx context.Context) (Result, error) {
	sess, err := a.sessions.NewSession(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("cu session: %w", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, a.cfg.EntryURL); err != nil {
		return Result{}, fmt.Errorf("cu navigate: %w", err)
	}
	if err := sess.Settle(ctx); err != nil {
		return Result{}, fmt.Errorf("cu settle: %w", err)
	}

	// The listing accumulates across expansions and each extraction re-reads
	// the whole list, so snapshots repeat earlier cards. Each card counts
	// once no matter how many snapshots it appears in.
	var raws []catalog.RawItem
	seen := make(map[catalog.RawItem]struct{})
	accumulate := func(page []catalog.RawItem) {
		for _, raw := range page {
			if _, ok := seen[raw]; ok {
				continue
			}
			seen[raw] = struct{}{}
			raws = append(raws, raw)
		}
	}

	page, err := a.extract(ctx, sess)
	if err != nil {
		return Result{}, err
	}
	accumulate(page)

	for i := 0; i < a.cfg.MaxMoreClicks; i++ {
		found, err := sess.Click(ctx, a.cfg.MoreSelector)
		if err != nil {
			// Pagination failure ends traversal; items already
			// collected are retained.
			a.logger.Warn("cu load-more click failed, keeping partial results",
				zap.Int("clicks", i), zap.Error(err))
			break
		}
		if !found {
			break
		}
		if err := sess.Settle(ctx); err != nil {
			a.logger.Warn("cu settle failed after click", zap.Error(err))
			break
		}
		page, err := a.extract(ctx, sess)
		if err != nil {
			a.logger.Warn("cu extraction failed after click, keeping partial results",
				zap.Int("clicks", i+1), zap.Error(err))
			break
		}
		accumulate(page)
	}

	return normalizeResult(raws, a.normalizeSpec(), a.clock), nil
}

func (a *CUAdapter) extract(ctx context.Context, sess catalog.Session) ([]catalog.RawItem, error) {
	var raws []catalog.RawItem
	if err := sess.Evaluate(ctx, cuExtractScript, &raws); err != nil {
		return nil, fmt.Errorf("cu extract: %w", err)
	}
	return raws, nil
}

func (a *CUAdapter) normalizeSpec() catalog.NormalizeSpec {
	return catalog.NormalizeSpec{
		Source:           catalog.SourceCU,
		SourceURL:        a.cfg.EntryURL,
		PlaceholderToken: "no_img",
		PromotionRules: []catalog.PromotionRule{
			{Contains: "1+1", Promotion: catalog.PromotionOnePlusOne},
			{Contains: "2+1", Promotion: catalog.PromotionTwoPlusOne},
			{Contains: "증정", Promotion: catalog.PromotionBonusGift},
		},
	}
}
