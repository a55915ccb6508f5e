// Package view derives filtered, display-ready views over enriched
// achievements. Filters decide what is shown; counts always come from the
// complete member set.
package view

import (
	"fmt"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/mastery"
	"sort"
)

type Completion string

const (
	CompletionAll        Completion = "all"
	CompletionIncomplete Completion = "incomplete"
)

type Goal string

const (
	GoalAll      Goal = "all"
	GoalRequired Goal = "required"
)

// Apply sets the completion toggle in f.
func (c Completion) Apply(f *domain.FilterSettings) error {
	switch c {
	case CompletionAll, CompletionIncomplete:
	default:
		return fmt.Errorf("unknown completion filter %q", c)
	}
	f.HideCompleted = c == CompletionIncomplete
	return nil
}

// Apply sets the goal toggle in f.
func (g Goal) Apply(f *domain.FilterSettings) error {
	switch g {
	case GoalAll, GoalRequired:
	default:
		return fmt.Errorf("unknown goal %q", g)
	}
	f.RequiredOnly = g == GoalRequired
	return nil
}

type HiddenSet map[int]struct{}

func NewHiddenSet(ids []int) HiddenSet {
	set := make(HiddenSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (h HiddenSet) Has(id int) bool {
	_, ok := h[id]
	return ok
}

// IDs returns the members in ascending order.
func (h HiddenSet) IDs() []int {
	ids := make([]int, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type Options struct {
	Completion Completion
	Goal       Goal
	Hidden     HiddenSet
	ShowHidden bool
}

func OptionsFromSettings(settings domain.FilterSettings, hidden []int) Options {
	opts := Options{
		Completion: CompletionAll,
		Goal:       GoalAll,
		Hidden:     NewHiddenSet(hidden),
		ShowHidden: settings.ShowHidden,
	}
	if settings.HideCompleted {
		opts.Completion = CompletionIncomplete
	}
	if settings.RequiredOnly {
		opts.Goal = GoalRequired
	}
	return opts
}

// IsHidden reports whether e is in the hidden set and still incomplete.
// Completed achievements are never hidden.
func IsHidden(e mastery.EnrichedAchievement, hidden HiddenSet) bool {
	return !e.Done() && hidden.Has(e.ID)
}

// IsDisplayed applies the completion filter and the hidden filter.
func IsDisplayed(e mastery.EnrichedAchievement, opts Options) bool {
	if opts.Completion == CompletionIncomplete && e.Done() {
		return false
	}
	if !opts.ShowHidden && IsHidden(e, opts.Hidden) {
		return false
	}
	return true
}

type AchievementView struct {
	mastery.EnrichedAchievement
	Stats    mastery.ProgressStats `json:"stats"`
	IsHidden bool                  `json:"isHidden"`
}

func NewAchievementView(e mastery.EnrichedAchievement, hidden HiddenSet) AchievementView {
	return AchievementView{
		EnrichedAchievement: e,
		Stats:               mastery.ComputeProgress(e.Achievement, e.Progress),
		IsHidden:            IsHidden(e, hidden),
	}
}

// FilterAchievements returns the displayed subset of list, incomplete first.
func FilterAchievements(list []mastery.EnrichedAchievement, opts Options) []AchievementView {
	out := make([]AchievementView, 0, len(list))
	for _, e := range list {
		if !IsDisplayed(e, opts) {
			continue
		}
		out = append(out, NewAchievementView(e, opts.Hidden))
	}
	return PartitionIncompleteFirst(out)
}

// PartitionIncompleteFirst moves completed achievements after incomplete ones.
// Relative order inside each side is kept.
func PartitionIncompleteFirst(list []AchievementView) []AchievementView {
	out := make([]AchievementView, 0, len(list))
	for _, v := range list {
		if !v.Done() {
			out = append(out, v)
		}
	}
	for _, v := range list {
		if v.Done() {
			out = append(out, v)
		}
	}
	return out
}

type CategoryView struct {
	ID             int               `json:"id"`
	Name           string            `json:"name"`
	Order          int               `json:"order"`
	Achievements   []AchievementView `json:"achievements"`
	DisplayedCount int               `json:"displayedCount"`
	mastery.Aggregates
}

type GroupView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Order      int            `json:"order"`
	Categories []CategoryView `json:"categories"`
	mastery.Aggregates
}

// FilterHierarchy applies opts to the display lists of a built hierarchy.
// Aggregates are carried over untouched.
func FilterHierarchy(groups []mastery.EnrichedGroup, opts Options) []GroupView {
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		gv := GroupView{
			ID:         g.ID,
			Name:       g.Name,
			Order:      g.Order,
			Aggregates: g.Aggregates,
			Categories: make([]CategoryView, 0, len(g.Categories)),
		}
		for _, c := range g.Categories {
			shown := FilterAchievements(c.Achievements, opts)
			gv.Categories = append(gv.Categories, CategoryView{
				ID:             c.ID,
				Name:           c.Name,
				Order:          c.Order,
				Achievements:   shown,
				DisplayedCount: len(shown),
				Aggregates:     c.Aggregates,
			})
		}
		out = append(out, gv)
	}
	return out
}
