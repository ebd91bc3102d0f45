package sources

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

const sevenFragmentFixture = `
<ul>
	<li>
		<a href="javascript:fncGoView('111');">
			<div class="pic_product"><img src="/upload/product/111.jpg" alt=""></div>
			<div class="infowrap">
				<div class="tit_product">주먹밥 참치마요</div>
				<div class="price"><span>2,200</span>원</div>
			</div>
			<ul class="tag_list_01"><li>1+1</li></ul>
		</a>
	</li>
	<li>
		<a href="javascript:fncGoView('112');">
			<div class="pic_product"><img src="https://cdn.7-eleven.example/112.jpg" alt=""></div>
			<div class="infowrap">
				<div class="tit_product">톡톡 스파클링 워터</div>
				<div class="price"><span>1,800</span>원</div>
			</div>
		</a>
	</li>
	<li>
		<div class="infowrap">
			<div class="tit_product">이름만 있는 상품</div>
		</div>
	</li>
</ul>`

const sevenEmptyFixture = `<ul><li>등록된 데이터가 없습니다.</li></ul>`

func TestExtractSevenElevenItems(t *testing.T) {
	t.Parallel()

	items, err := ExtractSevenElevenItems([]byte(sevenFragmentFixture))
	require.NoError(t, err)
	require.Len(t, items, 2, "card without a price is skipped, not emitted partially")

	assert.Equal(t, "주먹밥 참치마요", items[0].Name)
	assert.Equal(t, "2,200", items[0].PriceText)
	assert.Equal(t, "/upload/product/111.jpg", items[0].ImageRef)
	assert.Equal(t, "1+1", items[0].PromotionTag)

	assert.Equal(t, "톡톡 스파클링 워터", items[1].Name)
	assert.Empty(t, items[1].PromotionTag)
}

func TestExtractSevenElevenItemsNoData(t *testing.T) {
	t.Parallel()

	items, err := ExtractSevenElevenItems([]byte(sevenEmptyFixture))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func newSevenForTest(t *testing.T) *SevenElevenAdapter {
	t.Helper()
	adapter, err := NewSevenEleven(SevenElevenConfig{
		BaseURL:  "https://www.7-eleven.co.kr",
		PageSize: 10,
		MaxPages: 3,
	}, fixedClock{testNow}, zap.NewNop())
	require.NoError(t, err)
	return adapter
}

func TestSevenElevenCrawl(t *testing.T) {
	t.Parallel()

	adapter := newSevenForTest(t)
	var requests []string
	adapter.post = func(_ context.Context, url, _ string, form map[string]string) ([]byte, error) {
		requests = append(requests, fmt.Sprintf("%s?page=%s&tab=%s", url, form["intCurrPage"], form["pTab"]))
		// Serve one full page per listing, then an empty one.
		if form["intCurrPage"] == "1" {
			return []byte(sevenFragmentFixture), nil
		}
		return []byte(sevenEmptyFixture), nil
	}

	result, err := adapter.Crawl(context.Background())
	require.NoError(t, err)

	// 3 listings x 2 items per first page.
	assert.Equal(t, 6, result.Extracted)
	assert.Zero(t, result.Dropped)
	// Same two products repeat across listings; dedupe keeps the last
	// occurrence per natural key.
	require.Len(t, result.Items, 2)

	byTitle := map[string]catalog.NormalizedItem{}
	for _, item := range result.Items {
		assert.Equal(t, catalog.SourceSevenEleven, item.Source)
		byTitle[item.Title] = item
	}
	// Last listing visited is the 2+1 tab, whose tab overrides badges.
	assert.Equal(t, catalog.PromotionTwoPlusOne, byTitle["주먹밥 참치마요"].Promotion)
	assert.Equal(t, "https://www.7-eleven.co.kr/upload/product/111.jpg", byTitle["주먹밥 참치마요"].ImageURL,
		"site-relative image resolves against the source host")

	// Each listing stops after its first empty page.
	assert.Len(t, requests, 6)
}

func TestSevenElevenCrawlListingFailureKeepsOthers(t *testing.T) {
	t.Parallel()

	adapter := newSevenForTest(t)
	adapter.post = func(_ context.Context, url, _ string, form map[string]string) ([]byte, error) {
		if form["pTab"] == "1" {
			return nil, fmt.Errorf("HTTP 500")
		}
		if form["intCurrPage"] == "1" {
			return []byte(sevenFragmentFixture), nil
		}
		return []byte(sevenEmptyFixture), nil
	}

	result, err := adapter.Crawl(context.Background())
	require.NoError(t, err, "one failing listing must not fail the source")
	assert.Equal(t, 4, result.Extracted)
}

func TestSevenElevenCrawlAllListingsFailingIsFatal(t *testing.T) {
	t.Parallel()

	adapter := newSevenForTest(t)
	adapter.post = func(_ context.Context, _, _ string, _ map[string]string) ([]byte, error) {
		return nil, fmt.Errorf("connection refused")
	}

	_, err := adapter.Crawl(context.Background())
	require.Error(t, err)
}

func TestSevenElevenDosirakListingIsFixedCategory(t *testing.T) {
	t.Parallel()

	adapter := newSevenForTest(t)
	adapter.post = func(_ context.Context, url, _ string, form map[string]string) ([]byte, error) {
		// Only the dosirak listing serves items.
		if form["pTab"] != "" {
			return []byte(sevenEmptyFixture), nil
		}
		if form["intCurrPage"] == "1" {
			return []byte(sevenFragmentFixture), nil
		}
		return []byte(sevenEmptyFixture), nil
	}

	result, err := adapter.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, catalog.CategoryMeal, item.Category,
			"lunch-box listing overrides keyword classification")
	}
}
