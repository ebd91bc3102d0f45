package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PromotionRule maps a badge substring to a normalized promotion. Badge
// vocabularies differ per source, so each adapter carries its own rule set.
type PromotionRule struct {
	Contains  string
	Promotion Promotion
}

// MatchPromotion resolves a free-text badge against an ordered rule set.
// An empty tag or a tag matching no rule yields PromotionNone.
func MatchPromotion(tag string, rules []PromotionRule) Promotion {
	if tag == "" {
		return PromotionNone
	}
	for _, r := range rules {
		if strings.Contains(tag, r.Contains) {
			return r.Promotion
		}
	}
	return PromotionNone
}

// NormalizeSpec carries the per-source knobs needed to turn a RawItem into a
// NormalizedItem.
type NormalizeSpec struct {
	Source           Source
	SourceURL        string
	ImageBaseURL     string
	PlaceholderToken string
	PromotionRules   []PromotionRule

	// FixedCategory, when set, overrides keyword classification. Some
	// listings are category-scoped at the source (e.g. a lunch-box tab).
	FixedCategory Category
}

// ParsePrice parses locale-formatted price text such as "1,500원" into a
// non-negative integer amount. Failure is a per-item error, never a sentinel
// value.
func ParsePrice(text string) (int, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "원")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("empty price text")
	}
	price, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %d", price)
	}
	return price, nil
}

// ResolveImageURL normalizes an extracted image reference. Protocol-relative
// references become absolute secure URLs; site-relative references are
// resolved against baseURL; a reference containing the source's known
// no-image placeholder token collapses to empty (stored as NULL) rather than
// a broken link.
func ResolveImageURL(ref, placeholderToken, baseURL string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if placeholderToken != "" && strings.Contains(ref, placeholderToken) {
		return ""
	}
	switch {
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case baseURL != "":
		return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(ref, "/")
	default:
		return ""
	}
}

// Normalize converts one raw item. Items missing a required field (name,
// parseable price) return an error so callers can drop and count them.
func Normalize(raw RawItem, spec NormalizeSpec, now time.Time) (NormalizedItem, error) {
	title := strings.TrimSpace(raw.Name)
	if title == "" {
		return NormalizedItem{}, fmt.Errorf("missing item name")
	}
	price, err := ParsePrice(raw.PriceText)
	if err != nil {
		return NormalizedItem{}, fmt.Errorf("item %q: %w", title, err)
	}

	category := spec.FixedCategory
	if category == "" {
		category = Classify(title)
	}

	return NormalizedItem{
		Source:     spec.Source,
		Title:      title,
		Price:      price,
		ImageURL:   ResolveImageURL(raw.ImageRef, spec.PlaceholderToken, spec.ImageBaseURL),
		Category:   category,
		Promotion:  MatchPromotion(raw.PromotionTag, spec.PromotionRules),
		IsActive:   true,
		SourceURL:  spec.SourceURL,
		ObservedAt: now,
	}, nil
}

// NormalizeAll converts a raw item sequence, dropping items that fail
// normalization and reporting how many were dropped.
func NormalizeAll(raws []RawItem, spec NormalizeSpec, now time.Time) ([]NormalizedItem, int) {
	items := make([]NormalizedItem, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		item, err := Normalize(raw, spec, now)
		if err != nil {
			dropped++
			continue
		}
		items = append(items, item)
	}
	return items, dropped
}

// DedupeByKey removes in-run duplicates by natural key, keeping the last
// occurrence so later pages win. A single run must never conflict with
// itself at upsert time.
func DedupeByKey(items []NormalizedItem) []NormalizedItem {
	seen := make(map[string]int, len(items))
	out := make([]NormalizedItem, 0, len(items))
	for _, item := range items {
		if idx, ok := seen[item.Key()]; ok {
			out[idx] = item
			continue
		}
		seen[item.Key()] = len(out)
		out = append(out, item)
	}
	return out
}
