package view

import (
	"fmt"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/mastery"
	"sort"
)

// RequiredCounts is the hand-curated number of mastery achievements a player
// needs per region. It does not follow the size of the live catalog.
var RequiredCounts = map[domain.Region]int{
	domain.RegionTyria:   49,
	domain.RegionMaguuma: 56,
	domain.RegionDesert:  61,
	domain.RegionTundra:  28,
	domain.RegionJade:    38,
	domain.RegionSky:     30,
	domain.RegionWild:    28,
}

// GoalCount is the denominator for a region's completion ratio. Regions
// missing from RequiredCounts fall back to their real total.
func GoalCount(region domain.Region, goal Goal, total int) int {
	if goal == GoalRequired {
		if n, ok := RequiredCounts[region]; ok {
			return n
		}
	}
	return total
}

type RegionView struct {
	Region         domain.Region  `json:"region"`
	Categories     []CategoryView `json:"categories"`
	DisplayedCount int            `json:"displayedCount"`
	GoalCount      int            `json:"goalCount"`
	Percentage     int            `json:"percentage"`
	IsComplete     bool           `json:"isComplete"`
	mastery.Aggregates
}

// Ratio renders "completed/goal".
func (r RegionView) Ratio() string {
	return fmt.Sprintf("%d/%d", r.CompletedCount, r.GoalCount)
}

// BuildRegionViews groups enriched achievements by region and category and
// filters each display list. Display lists and aggregates come out of the
// same pass: every member is counted, only displayed members are listed.
// Known regions are always present, in release order; unknown region tags
// follow alphabetically.
func BuildRegionViews(enriched []mastery.EnrichedAchievement, opts Options) []RegionView {
	grouped := mastery.GroupByRegionThenCategory(enriched)

	regions := append([]domain.Region(nil), domain.Regions...)
	known := make(map[domain.Region]bool, len(regions))
	for _, r := range regions {
		known[r] = true
	}
	var extra []domain.Region
	for r := range grouped {
		if !known[r] {
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	regions = append(regions, extra...)

	out := make([]RegionView, 0, len(regions))
	for _, region := range regions {
		rv := RegionView{Region: region, Categories: []CategoryView{}}
		for _, named := range grouped[region] {
			for _, members := range splitByCategoryID(named) {
				cv := CategoryView{
					ID:    members[0].CategoryID(),
					Name:  members[0].CategoryName(),
					Order: members[0].CategoryOrder(),
				}
				for _, e := range members {
					cv.Aggregates.Add(e)
				}
				cv.Achievements = FilterAchievements(members, opts)
				cv.DisplayedCount = len(cv.Achievements)

				rv.Aggregates.Merge(cv.Aggregates)
				rv.DisplayedCount += cv.DisplayedCount
				rv.Categories = append(rv.Categories, cv)
			}
		}
		sortCategoryViews(rv.Categories)

		rv.GoalCount = GoalCount(region, opts.Goal, rv.TotalCount)
		rv.IsComplete = rv.GoalCount > 0 && rv.CompletedCount >= rv.GoalCount
		rv.Percentage = mastery.Percentage(min(rv.CompletedCount, rv.GoalCount), rv.GoalCount)
		out = append(out, rv)
	}
	return out
}

// splitByCategoryID separates members that share a category name but belong
// to different categories. Member order is kept within each part.
func splitByCategoryID(members []mastery.EnrichedAchievement) [][]mastery.EnrichedAchievement {
	index := make(map[int]int)
	var out [][]mastery.EnrichedAchievement
	for _, e := range members {
		i, ok := index[e.CategoryID()]
		if !ok {
			i = len(out)
			index[e.CategoryID()] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], e)
	}
	return out
}

func sortCategoryViews(cats []CategoryView) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Order != cats[j].Order {
			return cats[i].Order < cats[j].Order
		}
		if cats[i].Name != cats[j].Name {
			return cats[i].Name < cats[j].Name
		}
		return cats[i].ID < cats[j].ID
	})
}
