package sources

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// gs25ExtractScript reads the event-goods list of the currently loaded page.
// The gift badge sometimes appears as a dedicated flag element instead of
// badge text, so both are folded into the promotion tag.
const gs25ExtractScript = `(() => {
	const items = [];
	document.querySelectorAll('.prod_list > li').forEach((li) => {
		const title = li.querySelector('.tit');
		const price = li.querySelector('.price .cost');
		if (!title || !price) {
			return;
		}
		const img = li.querySelector('.img img');
		const badge = li.querySelector('.flg .badge');
		let tag = badge ? badge.textContent.trim() : '';
		if (!tag && li.querySelector('.flg_gift')) {
			tag = '덤증정';
		}
		items.push({
			name: title.textContent.trim(),
			priceText: price.textContent.trim(),
			imageRef: img ? img.getAttribute('src') || '' : '',
			promotionTag: tag,
		});
	});
	return items;
})()`

// gs25MovePageScript invokes the site's own paging controller; the listing
// swaps in place, there is no URL per page.
const gs25MovePageScript = `(() => {
	if (typeof goodsPageController === 'undefined') {
		return false;
	}
	goodsPageController.movePage(%d);
	return true;
})()`

// GS25Config tunes the GS25 adapter.
type GS25Config struct {
	EntryURL string
	MaxPages int
}

// GS25Adapter crawls the GS25 event-goods listing using bounded
// programmatic paging.
type GS25Adapter struct {
	cfg      GS25Config
	sessions catalog.SessionFactory
	clock    catalog.Clock
	logger   *zap.Logger
}

// NewGS25 constructs the GS25 adapter.
func NewGS25(cfg GS25Config, sessions catalog.SessionFactory, clock catalog.Clock, logger *zap.Logger) (*GS25Adapter, error) {
	if cfg.EntryURL == "" {
		return nil, fmt.Errorf("gs25 entry url is required")
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if err := validateClock(clock); err != nil {
		return nil, err
	}
	return &GS25Adapter{cfg: cfg, sessions: sessions, clock: clock, logger: ensureLogger(logger)}, nil
}

// Source implements Adapter.
func (a *GS25Adapter) Source() catalog.Source { return catalog.SourceGS25 }

// Crawl implements Adapter. Pages are visited strictly in order and results
// accumulate across pages; a paging failure keeps what was collected so far.
func (a *GS25Adapter) Crawl(ctx context.Context) (Result, error) {
	sess, err := a.sessions.NewSession(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("gs25 session: %w", err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, a.cfg.EntryURL); err != nil {
		return Result{}, fmt.Errorf("gs25 navigate: %w", err)
	}

	var raws []catalog.RawItem
	for page := 1; page <= a.cfg.MaxPages; page++ {
		if err := sess.Settle(ctx); err != nil {
			a.logger.Warn("gs25 settle failed, keeping partial results",
				zap.Int("page", page), zap.Error(err))
			break
		}
		var items []catalog.RawItem
		if err := sess.Evaluate(ctx, gs25ExtractScript, &items); err != nil {
			if page == 1 {
				return Result{}, fmt.Errorf("gs25 extract page 1: %w", err)
			}
			a.logger.Warn("gs25 extraction failed, keeping partial results",
				zap.Int("page", page), zap.Error(err))
			break
		}
		raws = append(raws, items...)

		if page == a.cfg.MaxPages {
			break
		}
		var moved bool
		script := fmt.Sprintf(gs25MovePageScript, page+1)
		if err := sess.Evaluate(ctx, script, &moved); err != nil || !moved {
			a.logger.Warn("gs25 paging affordance unavailable, stopping early",
				zap.Int("page", page), zap.Error(err))
			break
		}
	}

	return normalizeResult(raws, a.normalizeSpec(), a.clock), nil
}

func (a *GS25Adapter) normalizeSpec() catalog.NormalizeSpec {
	return catalog.NormalizeSpec{
		Source:    catalog.SourceGS25,
		SourceURL: a.cfg.EntryURL,
		PromotionRules: []catalog.PromotionRule{
			{Contains: "1+1", Promotion: catalog.PromotionOnePlusOne},
			{Contains: "2+1", Promotion: catalog.PromotionTwoPlusOne},
			{Contains: "덤", Promotion: catalog.PromotionBonusGift},
		},
	}
}
