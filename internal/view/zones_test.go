package view

import (
	"mastery-tracker/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regionalExplorer() domain.Achievement {
	return domain.Achievement{
		ID:   135,
		Name: "Explorer: Kryta",
		Bits: []domain.Bit{
			{Type: "Text", Text: "Queensdale: Shaemoor"},
			{Type: "Text", Text: "Kessex Hills: Cereboth Canyon"},
			{Type: "Text", Text: "Queensdale: Shire of Beetletun"},
		},
	}
}

func TestLoadZones(t *testing.T) {
	zones, err := LoadZones()
	require.NoError(t, err)
	require.NotEmpty(t, zones)

	for _, z := range zones {
		assert.NotEmpty(t, z.Name)
		assert.NotEmpty(t, z.Achievements)
	}
	assert.Equal(t, "Queensdale", zones[0].Name)
	assert.True(t, zones[0].Achievements[0].Regional)
}

func TestZoneAchievementIDs(t *testing.T) {
	zones := []ZoneConfig{
		{Name: "Queensdale", Achievements: []ZoneAchievement{{ID: 135, Regional: true}}},
		{Name: "Verdant Brink", Achievements: []ZoneAchievement{{ID: 2465}, {ID: 2460}}},
		{Name: "Kessex Hills", Achievements: []ZoneAchievement{{ID: 135, Regional: true}}},
	}
	assert.Equal(t, []int{135, 2460, 2465}, ZoneAchievementIDs(zones))
	assert.Empty(t, ZoneAchievementIDs(nil))

	loaded, err := LoadZones()
	require.NoError(t, err)
	assert.Contains(t, ZoneAchievementIDs(loaded), 135)
}

func TestParseZones_Invalid(t *testing.T) {
	_, err := ParseZones([]byte("zones:\n  - region: Tyria\n    achievements:\n      - id: 1\n"))
	assert.ErrorContains(t, err, "has no name")

	_, err = ParseZones([]byte("zones:\n  - name: Nowhere\n"))
	assert.ErrorContains(t, err, "lists no achievements")

	_, err = ParseZones([]byte("zones: [unterminated"))
	assert.Error(t, err)
}

func TestZoneBitIndices(t *testing.T) {
	a := regionalExplorer()
	assert.Equal(t, []int{0, 2}, ZoneBitIndices(a, "Queensdale"))
	assert.Equal(t, []int{1}, ZoneBitIndices(a, "Kessex Hills"))
	assert.Empty(t, ZoneBitIndices(a, "Gendarran Fields"))
}

func TestCompletedZoneBits(t *testing.T) {
	indices := []int{0, 2}
	assert.Equal(t, 0, CompletedZoneBits(indices, nil))
	assert.Equal(t, 1, CompletedZoneBits(indices, &domain.AccountAchievement{Bits: []int{1, 2}}))
	assert.Equal(t, 2, CompletedZoneBits(indices, &domain.AccountAchievement{Done: true}))
}

func TestBuildZoneToExplorerMap(t *testing.T) {
	zones := []ZoneConfig{
		{Name: "Queensdale", Region: domain.RegionTyria, Achievements: []ZoneAchievement{{ID: 135, Regional: true}}},
		{Name: "Gendarran Fields", Region: domain.RegionTyria, Achievements: []ZoneAchievement{{ID: 135, Regional: true}}},
		{Name: "Verdant Brink", Region: domain.RegionMaguuma, Achievements: []ZoneAchievement{{ID: 2000}}},
		{Name: "Unknown", Region: domain.RegionSky, Achievements: []ZoneAchievement{{ID: 9999}}},
	}
	dedicated := domain.Achievement{ID: 2000, Name: "Verdant Brink Explorer"}
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		dedicated.Bits = append(dedicated.Bits, domain.Bit{Type: "Text", Text: text})
	}
	achievements := map[int]domain.Achievement{135: regionalExplorer(), 2000: dedicated}

	t.Run("partial progress", func(t *testing.T) {
		progress := domain.ProgressByID{
			135:  {ID: 135, Bits: []int{0, 1}},
			2000: {ID: 2000, Bits: []int{4}},
		}
		out := BuildZoneToExplorerMap(zones, achievements, progress)

		require.Len(t, out["Queensdale"], 1)
		qd := out["Queensdale"][0]
		assert.Equal(t, []int{0, 2}, qd.BitIndices)
		assert.Equal(t, 2, qd.TotalBits)
		assert.Equal(t, 1, qd.CompletedBits)
		assert.Equal(t, 50, qd.Percentage)
		assert.False(t, qd.IsComplete)

		assert.NotContains(t, out, "Gendarran Fields")
		assert.NotContains(t, out, "Unknown")

		require.Len(t, out["Verdant Brink"], 1)
		vb := out["Verdant Brink"][0]
		assert.Equal(t, 5, vb.TotalBits)
		assert.Equal(t, 1, vb.CompletedBits)
		assert.Equal(t, 20, vb.Percentage)
	})

	t.Run("done without bits", func(t *testing.T) {
		progress := domain.ProgressByID{
			135:  {ID: 135, Done: true},
			2000: {ID: 2000, Done: true},
		}
		out := BuildZoneToExplorerMap(zones, achievements, progress)

		assert.Equal(t, 2, out["Queensdale"][0].CompletedBits)
		assert.True(t, out["Queensdale"][0].IsComplete)
		assert.Equal(t, 5, out["Verdant Brink"][0].CompletedBits)
		assert.Equal(t, 100, out["Verdant Brink"][0].Percentage)
	})

	t.Run("no progress", func(t *testing.T) {
		out := BuildZoneToExplorerMap(zones, achievements, nil)
		assert.Equal(t, 0, out["Queensdale"][0].CompletedBits)
		assert.Equal(t, 0, out["Verdant Brink"][0].Percentage)
	})
}
