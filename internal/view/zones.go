package view

import (
	_ "embed"
	"fmt"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/mastery"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed zones.yaml
var zonesYAML []byte

type ZoneAchievement struct {
	ID       int  `yaml:"id"`
	Regional bool `yaml:"regional"`
}

type ZoneConfig struct {
	Name         string            `yaml:"name"`
	Region       domain.Region     `yaml:"region"`
	Achievements []ZoneAchievement `yaml:"achievements"`
}

type zoneFile struct {
	Zones []ZoneConfig `yaml:"zones"`
}

// LoadZones returns the embedded zone configuration.
func LoadZones() ([]ZoneConfig, error) {
	return ParseZones(zonesYAML)
}

func ParseZones(data []byte) ([]ZoneConfig, error) {
	var f zoneFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse zone config: %w", err)
	}
	for i, z := range f.Zones {
		if z.Name == "" {
			return nil, fmt.Errorf("zone %d has no name", i)
		}
		if len(z.Achievements) == 0 {
			return nil, fmt.Errorf("zone %q lists no achievements", z.Name)
		}
	}
	return f.Zones, nil
}

// ZoneAchievementIDs lists every achievement id the zones track, ascending
// and without duplicates.
func ZoneAchievementIDs(zones []ZoneConfig) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, z := range zones {
		for _, za := range z.Achievements {
			if seen[za.ID] {
				continue
			}
			seen[za.ID] = true
			ids = append(ids, za.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

type ZoneExplorer struct {
	Zone          string `json:"zone"`
	AchievementID int    `json:"achievementId"`
	Name          string `json:"name"`
	Regional      bool   `json:"regional"`
	BitIndices    []int  `json:"bitIndices,omitempty"`
	TotalBits     int    `json:"totalBits"`
	CompletedBits int    `json:"completedBits"`
	Percentage    int    `json:"percentage"`
	IsComplete    bool   `json:"isComplete"`
}

// ZoneBitIndices returns the indices of bits whose text starts with
// "<zone>: ".
func ZoneBitIndices(a domain.Achievement, zone string) []int {
	prefix := zone + ": "
	var out []int
	for i, b := range a.Bits {
		if strings.HasPrefix(b.Text, prefix) {
			out = append(out, i)
		}
	}
	return out
}

// CompletedZoneBits counts how many of indices are complete. A done record
// completes every index even when the API left its bit list out.
func CompletedZoneBits(indices []int, p *domain.AccountAchievement) int {
	if p == nil {
		return 0
	}
	if p.Done {
		return len(indices)
	}
	return mastery.CountBitsIn(p.Bits, indices)
}

// BuildZoneToExplorerMap resolves exploration progress per configured zone.
// Dedicated achievements count all of their bits; regional ones only the
// bits attributed to the zone. A regional achievement with no bits for the
// zone is left out, and zones with nothing tracked are absent from the map.
func BuildZoneToExplorerMap(zones []ZoneConfig, achievements map[int]domain.Achievement, progressByID domain.ProgressByID) map[string][]ZoneExplorer {
	out := make(map[string][]ZoneExplorer)
	for _, zone := range zones {
		for _, za := range zone.Achievements {
			a, ok := achievements[za.ID]
			if !ok {
				continue
			}
			var p *domain.AccountAchievement
			if rec, ok := progressByID[a.ID]; ok {
				p = &rec
			}

			ex := ZoneExplorer{Zone: zone.Name, AchievementID: a.ID, Name: a.Name, Regional: za.Regional}
			if za.Regional {
				ex.BitIndices = ZoneBitIndices(a, zone.Name)
				if len(ex.BitIndices) == 0 {
					continue
				}
				ex.TotalBits = len(ex.BitIndices)
				ex.CompletedBits = CompletedZoneBits(ex.BitIndices, p)
				ex.Percentage = mastery.Percentage(ex.CompletedBits, ex.TotalBits)
				ex.IsComplete = ex.CompletedBits >= ex.TotalBits
			} else {
				stats := mastery.ComputeProgress(a, p)
				ex.TotalBits = stats.TotalBits
				ex.CompletedBits = stats.CompletedBits
				ex.Percentage = stats.Percentage
				ex.IsComplete = stats.IsComplete
			}
			out[zone.Name] = append(out[zone.Name], ex)
		}
	}
	return out
}
