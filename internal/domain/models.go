package domain

import "time"

type Region string

const (
	RegionTyria   Region = "Tyria"
	RegionMaguuma Region = "Maguuma"
	RegionDesert  Region = "Desert"
	RegionTundra  Region = "Tundra"
	RegionJade    Region = "Jade"
	RegionSky     Region = "Sky"
	RegionWild    Region = "Wild"
)

// Regions in release order.
var Regions = []Region{
	RegionTyria,
	RegionMaguuma,
	RegionDesert,
	RegionTundra,
	RegionJade,
	RegionSky,
	RegionWild,
}

const RewardTypeMastery = "Mastery"

type Achievement struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Requirement   string   `json:"requirement"`
	LockedText    string   `json:"locked_text,omitempty"`
	Icon          string   `json:"icon,omitempty"`
	Type          string   `json:"type,omitempty"`
	Flags         []string `json:"flags,omitempty"`
	Bits          []Bit    `json:"bits,omitempty"`
	Tiers         []Tier   `json:"tiers,omitempty"`
	Prerequisites []int    `json:"prerequisites,omitempty"`
	Rewards       []Reward `json:"rewards,omitempty"`
}

type Bit struct {
	Type string `json:"type"`
	ID   int    `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

type Tier struct {
	Count  int `json:"count"`
	Points int `json:"points"`
}

type Reward struct {
	Type   string `json:"type"`
	ID     int    `json:"id,omitempty"`
	Count  int    `json:"count,omitempty"`
	Region Region `json:"region,omitempty"`
}

// AccountAchievement is one progress record from /account/achievements.
// Bits is omitted by the API once Done is true; a nil Bits on a done record
// means every bit is complete.
type AccountAchievement struct {
	ID       int   `json:"id"`
	Done     bool  `json:"done"`
	Current  *int  `json:"current,omitempty"`
	Max      *int  `json:"max,omitempty"`
	Bits     []int `json:"bits,omitempty"`
	Repeated *int  `json:"repeated,omitempty"`
	Unlocked *bool `json:"unlocked,omitempty"`
}

type Category struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Order        int    `json:"order"`
	Icon         string `json:"icon,omitempty"`
	Achievements []int  `json:"achievements"`
}

type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	Categories  []int  `json:"categories"`
}

type ProgressByID map[int]AccountAchievement

func IndexProgress(records []AccountAchievement) ProgressByID {
	out := make(ProgressByID, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out
}

type FilterSettings struct {
	HideCompleted bool `json:"hideCompleted"`
	RequiredOnly  bool `json:"requiredOnly"`
	ShowHidden    bool `json:"showHidden"`
}

func DefaultFilterSettings() FilterSettings {
	return FilterSettings{HideCompleted: false, RequiredOnly: true, ShowHidden: false}
}

// IDIndex is the persisted list of mastery achievement ids and when it was
// built, in epoch milliseconds.
type IDIndex struct {
	IDs     []int `json:"ids"`
	BuiltAt int64 `json:"builtAt"`
	Bundled bool  `json:"bundled"`
}

type IndexBuild struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"` // running, succeeded or failed
	IDCount    int       `json:"idCount"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
