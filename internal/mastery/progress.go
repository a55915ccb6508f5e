package mastery

import (
	"mastery-tracker/internal/domain"
	"math"
)

type ProgressStats struct {
	CompletedBits  int  `json:"completedBits"`
	TotalBits      int  `json:"totalBits"`
	Current        int  `json:"current"`
	Max            int  `json:"max"`
	Percentage     int  `json:"percentage"`
	HasProgressBar bool `json:"hasProgressBar"`
	IsComplete     bool `json:"isComplete"`
}

// ComputeProgress derives display progress for a single achievement. Bit
// based achievements count completed bits; a done record without bits counts
// as every bit complete. Others use current/max, and a missing or zero max
// leaves a plain done/not-done indicator at 0%.
func ComputeProgress(a domain.Achievement, p *domain.AccountAchievement) ProgressStats {
	stats := ProgressStats{IsComplete: p != nil && p.Done}

	if total := len(a.Bits); total > 0 {
		stats.TotalBits = total
		stats.HasProgressBar = true
		switch {
		case p == nil:
		case p.Done:
			stats.CompletedBits = total
		default:
			stats.CompletedBits = countBitsIn(p.Bits, func(i int) bool { return i >= 0 && i < total })
		}
		stats.Percentage = Percentage(stats.CompletedBits, total)
		return stats
	}

	if p == nil || p.Max == nil || *p.Max <= 0 {
		return stats
	}
	stats.Max = *p.Max
	stats.HasProgressBar = true
	if p.Current != nil {
		stats.Current = *p.Current
	} else if p.Done {
		stats.Current = stats.Max
	}
	stats.Percentage = Percentage(stats.Current, stats.Max)
	return stats
}

// Percentage is round(part/whole*100), 0 when whole is not positive.
func Percentage(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// countBitsIn counts distinct bit indices accepted by keep.
func countBitsIn(bits []int, keep func(int) bool) int {
	seen := make(map[int]struct{}, len(bits))
	for _, b := range bits {
		if !keep(b) {
			continue
		}
		seen[b] = struct{}{}
	}
	return len(seen)
}

// CountBitsIn counts the distinct completed bits that fall inside indices.
func CountBitsIn(completed []int, indices []int) int {
	set := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	return countBitsIn(completed, func(i int) bool {
		_, ok := set[i]
		return ok
	})
}
