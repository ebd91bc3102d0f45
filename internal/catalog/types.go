// Package catalog defines the core types shared across the ingestion pipeline.
package catalog

import (
	"time"
)

// Source identifies the originating store brand. Values are stable and
// assigned by configuration, never inferred from page content.
type Source string

// Known catalog sources.
const (
	SourceCU          Source = "CU"
	SourceGS25        Source = "GS25"
	SourceSevenEleven Source = "SEVEN_ELEVEN"
)

// BrandID returns the numeric brand identifier persisted alongside rows.
func (s Source) BrandID() int {
	switch s {
	case SourceCU:
		return 1
	case SourceGS25:
		return 2
	case SourceSevenEleven:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the source is one of the known brands.
func (s Source) Valid() bool {
	return s.BrandID() != 0
}

// Category is one of a fixed closed set of product category labels.
type Category string

// Category labels. The vocabulary matches what downstream consumers filter on.
const (
	CategoryMeal      Category = "간편식사"
	CategoryBeverage  Category = "음료"
	CategorySnack     Category = "과자"
	CategoryNoodle    Category = "라면"
	CategoryIceCream  Category = "아이스크림"
	CategoryHousehold Category = "생활용품"
	CategoryEtc       Category = "기타"
)

// Promotion is the normalized promotion type inferred from source badges.
type Promotion string

// Promotion values. Free-text badge vocabulary never persists past
// normalization.
const (
	PromotionNone       Promotion = "NONE"
	PromotionOnePlusOne Promotion = "ONE_PLUS_ONE"
	PromotionTwoPlusOne Promotion = "TWO_PLUS_ONE"
	PromotionBonusGift  Promotion = "BONUS_GIFT"
)

// RawItem is a single product as extracted from a rendered source page,
// before any normalization. Optional fields may be empty.
type RawItem struct {
	Name         string `json:"name"`
	PriceText    string `json:"priceText"`
	ImageRef     string `json:"imageRef"`
	PromotionTag string `json:"promotionTag"`
}

// NormalizedItem is the unit handed to the persistence layer. It is
// constructed once per run and is immutable afterwards. (Source, Title) is
// the natural key: re-ingesting the same title for the same source updates
// the existing row in place.
type NormalizedItem struct {
	Source     Source
	Title      string
	Price      int
	ImageURL   string // empty means no usable image; stored as NULL
	Category   Category
	Promotion  Promotion
	IsActive   bool
	SourceURL  string
	ObservedAt time.Time
}

// Key returns the natural key used for in-run deduplication.
func (n NormalizedItem) Key() string {
	return string(n.Source) + "\x00" + n.Title
}

// SourceReport aggregates the outcome of one source's crawl and persistence.
type SourceReport struct {
	Source        Source
	Extracted     int
	Normalized    int
	Dropped       int
	Persisted     int
	FailedBatches int
	Deactivated   int64
	Err           string
}

// RunReport is the per-run summary produced by the pipeline driver.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Sources   []SourceReport
}
