// Package mastery joins the achievement catalog, account progress and the
// category tree into UI-ready records.
package mastery

import (
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
)

type CategoryRef struct {
	CategoryID    int    `json:"categoryId"`
	CategoryName  string `json:"categoryName"`
	CategoryOrder int    `json:"categoryOrder"`
}

// CategoryIndex maps an achievement id to the category that lists it.
type CategoryIndex map[int]CategoryRef

type EnrichedAchievement struct {
	domain.Achievement
	Progress      *domain.AccountAchievement `json:"progress,omitempty"`
	MasteryRegion domain.Region              `json:"masteryRegion,omitempty"`
	Category      *CategoryRef               `json:"category,omitempty"`
}

func (e EnrichedAchievement) Done() bool {
	return e.Progress != nil && e.Progress.Done
}

// CategoryName falls back to the Uncategorized bucket.
func (e EnrichedAchievement) CategoryName() string {
	if e.Category == nil {
		return constants.UncategorizedName
	}
	return e.Category.CategoryName
}

func (e EnrichedAchievement) CategoryOrder() int {
	if e.Category == nil {
		return constants.OrderSentinel
	}
	return e.Category.CategoryOrder
}

func (e EnrichedAchievement) CategoryID() int {
	if e.Category == nil {
		return constants.UncategorizedID
	}
	return e.Category.CategoryID
}

// DeriveRegion reads the region of the first Mastery reward. Every consumer
// that needs a region goes through here.
func DeriveRegion(a domain.Achievement) (domain.Region, bool) {
	for _, r := range a.Rewards {
		if r.Type == domain.RewardTypeMastery && r.Region != "" {
			return r.Region, true
		}
	}
	return "", false
}

// IsMastery reports whether a grants a mastery point.
func IsMastery(a domain.Achievement) bool {
	for _, r := range a.Rewards {
		if r.Type == domain.RewardTypeMastery {
			return true
		}
	}
	return false
}

// BuildCategoryIndex flattens categories into a reverse lookup. When an
// achievement is listed by several categories the last one wins.
func BuildCategoryIndex(categories []domain.Category) CategoryIndex {
	index := make(CategoryIndex)
	for _, c := range categories {
		ref := CategoryRef{CategoryID: c.ID, CategoryName: c.Name, CategoryOrder: c.Order}
		for _, id := range c.Achievements {
			index[id] = ref
		}
	}
	return index
}

// Enrich returns one record per input achievement, in input order. Inputs are
// not modified; a nil index leaves every record uncategorized.
func Enrich(achievements []domain.Achievement, progressByID domain.ProgressByID, index CategoryIndex) []EnrichedAchievement {
	out := make([]EnrichedAchievement, len(achievements))
	for i, a := range achievements {
		e := EnrichedAchievement{Achievement: a}
		if p, ok := progressByID[a.ID]; ok {
			e.Progress = &p
		}
		if region, ok := DeriveRegion(a); ok {
			e.MasteryRegion = region
		}
		if ref, ok := index[a.ID]; ok {
			e.Category = &ref
		}
		out[i] = e
	}
	return out
}

// RegionGroups is region -> category name -> achievements.
type RegionGroups map[domain.Region]map[string][]EnrichedAchievement

// GroupByRegionThenCategory partitions enriched records by region and then
// category name. Records without a region are dropped; leaf lists keep input
// order.
func GroupByRegionThenCategory(enriched []EnrichedAchievement) RegionGroups {
	groups := make(RegionGroups)
	for _, e := range enriched {
		if e.MasteryRegion == "" {
			continue
		}
		byCategory, ok := groups[e.MasteryRegion]
		if !ok {
			byCategory = make(map[string][]EnrichedAchievement)
			groups[e.MasteryRegion] = byCategory
		}
		name := e.CategoryName()
		byCategory[name] = append(byCategory[name], e)
	}
	return groups
}

type RegionPoints struct {
	Earned int `json:"earned"`
	Total  int `json:"total"`
}

type PointSummary struct {
	Earned   int                            `json:"earned"`
	Total    int                            `json:"total"`
	ByRegion map[domain.Region]RegionPoints `json:"byRegion"`
}

// SummarizePoints counts one point per achievement. Achievements without a
// region count toward the totals but toward no region.
func SummarizePoints(achievements []domain.Achievement, progressByID domain.ProgressByID) PointSummary {
	summary := PointSummary{ByRegion: make(map[domain.Region]RegionPoints)}
	for _, a := range achievements {
		done := progressByID[a.ID].Done

		summary.Total++
		if done {
			summary.Earned++
		}

		region, ok := DeriveRegion(a)
		if !ok {
			continue
		}
		rp := summary.ByRegion[region]
		rp.Total++
		if done {
			rp.Earned++
		}
		summary.ByRegion[region] = rp
	}
	return summary
}
