package catalog

import "strings"

// categoryRule maps a keyword set to a category label. Rules are evaluated
// in order and the first rule whose keyword set contains a substring of the
// title wins, so ordering is load-bearing: keyword sets are not disjoint.
type categoryRule struct {
	category Category
	keywords []string
}

// categoryRules is the fixed classification table. Do not reorder.
var categoryRules = []categoryRule{
	{CategoryMeal, []string{"도시락", "김밥", "삼각", "주먹밥", "버거", "샌드위치"}},
	{CategoryBeverage, []string{"아메리카노", "라떼", "우유", "티", "에이드", "워터", "음료"}},
	{CategorySnack, []string{"칩", "쿠키", "스낵", "젤리", "초코", "사탕", "껌"}},
	{CategoryNoodle, []string{"면", "라면", "우동", "국수"}},
	{CategoryIceCream, []string{"바", "콘", "파르페", "빙수", "아이스"}},
	{CategoryHousehold, []string{"생리대", "치약", "칫솔", "샴푸", "린스", "비누", "휴지"}},
}

// Classify maps a product title to a category by ordered keyword matching.
// Titles matching no rule fall into the catch-all category.
func Classify(title string) Category {
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(title, kw) {
				return rule.category
			}
		}
	}
	return CategoryEtc
}
