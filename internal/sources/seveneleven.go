package sources

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

// noDataMarker is the in-band "no results" message the listing endpoints
// return instead of an empty fragment.
const noDataMarker = "데이터가 없습니다"

// SevenElevenConfig tunes the 7-Eleven adapter.
type SevenElevenConfig struct {
	BaseURL   string
	UserAgent string
	PageSize  int
	MaxPages  int
}

// sevenListing is one paginated AJAX listing on the 7-Eleven site.
type sevenListing struct {
	name string
	path string
	// referer the endpoint insists on before serving fragments.
	referer string
	// extraForm carries listing-specific form fields (the promotion tab).
	extraForm map[string]string
	// promotionTag overrides the badge for tab-scoped listings where the
	// tab itself determines the promotion.
	promotionTag string
	// fixedCategory bypasses keyword classification for category-scoped
	// listings.
	fixedCategory catalog.Category
}

// SevenElevenAdapter crawls 7-Eleven listings. Unlike CU and GS25 the site
// serves server-rendered HTML fragments over form-POST endpoints, so this
// adapter drives a plain HTTP client instead of a browser session.
type SevenElevenAdapter struct {
	cfg    SevenElevenConfig
	post   func(ctx context.Context, url string, referer string, form map[string]string) ([]byte, error)
	clock  catalog.Clock
	logger *zap.Logger
}

// NewSevenEleven constructs the 7-Eleven adapter with a colly-backed client.
func NewSevenEleven(cfg SevenElevenConfig, clock catalog.Clock, logger *zap.Logger) (*SevenElevenAdapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.7-eleven.co.kr"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if err := validateClock(clock); err != nil {
		return nil, err
	}
	a := &SevenElevenAdapter{cfg: cfg, clock: clock, logger: ensureLogger(logger)}
	a.post = a.collyPost
	return a, nil
}

// Source implements Adapter.
func (a *SevenElevenAdapter) Source() catalog.Source { return catalog.SourceSevenEleven }

func (a *SevenElevenAdapter) listings() []sevenListing {
	return []sevenListing{
		{
			name:          "dosirak",
			path:          "/product/dosirakNewMoreAjax.asp",
			referer:       a.cfg.BaseURL + "/product/bestdosirakList.asp",
			fixedCategory: catalog.CategoryMeal,
		},
		{
			name:         "one-plus-one",
			path:         "/product/listMoreAjax.asp",
			referer:      a.cfg.BaseURL + "/product/presentList.asp",
			extraForm:    map[string]string{"pTab": "1"},
			promotionTag: "1+1",
		},
		{
			name:         "two-plus-one",
			path:         "/product/listMoreAjax.asp",
			referer:      a.cfg.BaseURL + "/product/presentList.asp",
			extraForm:    map[string]string{"pTab": "2"},
			promotionTag: "2+1",
		},
	}
}

// Crawl implements Adapter using bounded AJAX form paging per listing.
// A listing that stops serving fragments ends early; other listings and
// already-collected items are unaffected.
func (a *SevenElevenAdapter) Crawl(ctx context.Context) (Result, error) {
	total := Result{}
	anyListingServed := false
	for _, listing := range a.listings() {
		raws, err := a.crawlListing(ctx, listing)
		if err != nil {
			a.logger.Warn("seven-eleven listing failed, keeping partial results",
				zap.String("listing", listing.name), zap.Error(err))
		}
		if len(raws) > 0 {
			anyListingServed = true
		}
		part := normalizeResult(raws, a.normalizeSpec(listing), a.clock)
		total.Items = append(total.Items, part.Items...)
		total.Extracted += part.Extracted
		total.Dropped += part.Dropped
	}
	if !anyListingServed && total.Extracted == 0 {
		return Result{}, fmt.Errorf("seven-eleven: no listing served any items")
	}
	total.Items = catalog.DedupeByKey(total.Items)
	return total, nil
}

func (a *SevenElevenAdapter) crawlListing(ctx context.Context, listing sevenListing) ([]catalog.RawItem, error) {
	var raws []catalog.RawItem
	for page := 1; page <= a.cfg.MaxPages; page++ {
		form := map[string]string{
			"intPageSize": strconv.Itoa(a.cfg.PageSize),
			"intCurrPage": strconv.Itoa(page),
		}
		for k, v := range listing.extraForm {
			form[k] = v
		}
		body, err := a.post(ctx, a.cfg.BaseURL+listing.path, listing.referer, form)
		if err != nil {
			if page == 1 {
				return raws, fmt.Errorf("fetch page 1: %w", err)
			}
			a.logger.Warn("seven-eleven page fetch failed, stopping listing early",
				zap.String("listing", listing.name), zap.Int("page", page), zap.Error(err))
			return raws, nil
		}
		items, err := ExtractSevenElevenItems(body)
		if err != nil {
			return raws, fmt.Errorf("parse page %d: %w", page, err)
		}
		if len(items) == 0 {
			return raws, nil
		}
		if listing.promotionTag != "" {
			for i := range items {
				items[i].PromotionTag = listing.promotionTag
			}
		}
		raws = append(raws, items...)
	}
	return raws, nil
}

// ExtractSevenElevenItems parses one HTML fragment returned by a 7-Eleven
// listing endpoint. Cards missing a name or price node are skipped rather
// than emitted as partial records.
func ExtractSevenElevenItems(fragment []byte) ([]catalog.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	var items []catalog.RawItem
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if strings.Contains(li.Text(), noDataMarker) {
			return
		}
		name := strings.TrimSpace(li.Find("div.tit_product").First().Text())
		price := strings.TrimSpace(li.Find("div.price span").First().Text())
		if name == "" || price == "" {
			return
		}
		img, _ := li.Find("div.pic_product img").First().Attr("src")
		var tags []string
		li.Find("ul.tag_list_01 li").Each(func(_ int, tag *goquery.Selection) {
			if text := strings.TrimSpace(tag.Text()); text != "" {
				tags = append(tags, text)
			}
		})
		items = append(items, catalog.RawItem{
			Name:         name,
			PriceText:    price,
			ImageRef:     img,
			PromotionTag: strings.Join(tags, " "),
		})
	})
	return items, nil
}

func (a *SevenElevenAdapter) normalizeSpec(listing sevenListing) catalog.NormalizeSpec {
	return catalog.NormalizeSpec{
		Source:        catalog.SourceSevenEleven,
		SourceURL:     listing.referer,
		ImageBaseURL:  a.cfg.BaseURL,
		FixedCategory: listing.fixedCategory,
		PromotionRules: []catalog.PromotionRule{
			{Contains: "1+1", Promotion: catalog.PromotionOnePlusOne},
			{Contains: "2+1", Promotion: catalog.PromotionTwoPlusOne},
			{Contains: "증정", Promotion: catalog.PromotionBonusGift},
		},
	}
}

// collyPost issues one form POST through colly and returns the raw fragment.
// The endpoints are picky about looking like the site's own XHR calls.
func (a *SevenElevenAdapter) collyPost(ctx context.Context, url string, referer string, form map[string]string) ([]byte, error) {
	collector := colly.NewCollector(
		colly.UserAgent(a.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	var body []byte
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", referer)
		r.Headers.Set("X-Requested-With", "XMLHttpRequest")
		r.Headers.Set("Accept", "*/*")
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Post(url, form)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("post %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", url, err)
		}
	}
	return body, nil
}
