package mastery

import (
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	"sort"
)

const UngroupedID = "ungrouped"

// Aggregates are always computed over every member, never a filtered subset.
type Aggregates struct {
	TotalCount     int `json:"totalCount"`
	CompletedCount int `json:"completedCount"`
	TotalPoints    int `json:"totalPoints"`
	EarnedPoints   int `json:"earnedPoints"`
}

func (g *Aggregates) Add(e EnrichedAchievement) {
	g.TotalCount++
	done := e.Done()
	if done {
		g.CompletedCount++
	}
	if e.MasteryRegion != "" {
		g.TotalPoints++
		if done {
			g.EarnedPoints++
		}
	}
}

func (g *Aggregates) Merge(o Aggregates) {
	g.TotalCount += o.TotalCount
	g.CompletedCount += o.CompletedCount
	g.TotalPoints += o.TotalPoints
	g.EarnedPoints += o.EarnedPoints
}

type EnrichedCategory struct {
	ID           int                   `json:"id"`
	Name         string                `json:"name"`
	Order        int                   `json:"order"`
	Icon         string                `json:"icon,omitempty"`
	Achievements []EnrichedAchievement `json:"achievements"`
	Aggregates
}

type EnrichedGroup struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Order      int                `json:"order"`
	Categories []EnrichedCategory `json:"categories"`
	Aggregates
}

// BuildHierarchy nests enriched achievements under their categories and the
// categories under their groups. Categories without members are left out.
// Achievements with no category land in an Uncategorized category, and
// categories no group claims land in a trailing ungrouped group.
func BuildHierarchy(enriched []EnrichedAchievement, categories []domain.Category, groups []domain.Group) []EnrichedGroup {
	meta := make(map[int]domain.Category, len(categories))
	for _, c := range categories {
		meta[c.ID] = c
	}

	byCategory := make(map[int]*EnrichedCategory)
	var categoryOrder []int
	for _, e := range enriched {
		id := e.CategoryID()
		cat, ok := byCategory[id]
		if !ok {
			cat = &EnrichedCategory{ID: id, Name: e.CategoryName(), Order: e.CategoryOrder()}
			if m, ok := meta[id]; ok {
				cat.Icon = m.Icon
			}
			byCategory[id] = cat
			categoryOrder = append(categoryOrder, id)
		}
		cat.Achievements = append(cat.Achievements, e)
		cat.Add(e)
	}

	claimed := make(map[int]bool)
	var out []EnrichedGroup
	for _, g := range groups {
		eg := EnrichedGroup{ID: g.ID, Name: g.Name, Order: g.Order}
		for _, cid := range g.Categories {
			cat, ok := byCategory[cid]
			if !ok || claimed[cid] {
				continue
			}
			claimed[cid] = true
			eg.Categories = append(eg.Categories, *cat)
			eg.Merge(cat.Aggregates)
		}
		if len(eg.Categories) == 0 {
			continue
		}
		SortCategories(eg.Categories)
		out = append(out, eg)
	}

	rest := EnrichedGroup{ID: UngroupedID, Name: constants.UncategorizedName, Order: constants.OrderSentinel}
	for _, cid := range categoryOrder {
		if claimed[cid] {
			continue
		}
		cat := byCategory[cid]
		rest.Categories = append(rest.Categories, *cat)
		rest.Merge(cat.Aggregates)
	}
	if len(rest.Categories) > 0 {
		SortCategories(rest.Categories)
		out = append(out, rest)
	}

	SortGroups(out)
	return out
}

// SortCategories orders by Order ascending, ties by name.
func SortCategories(cats []EnrichedCategory) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Order != cats[j].Order {
			return cats[i].Order < cats[j].Order
		}
		return cats[i].Name < cats[j].Name
	})
}

func SortGroups(groups []EnrichedGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Order < groups[j].Order
	})
}
